// Package identity resolves the different ways a participant can be referenced
// (raw id, embedded user object, email) into one canonical identifier.
//
// Resolution happens once at the API boundary. Everything past it compares
// ID values only.
package identity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ID is a canonical participant identifier.
type ID string

// String returns the identifier as a plain string.
func (id ID) String() string { return string(id) }

// IsZero reports whether the identifier is empty.
func (id ID) IsZero() bool { return id == "" }

// objectKeys are checked in order when a reference is an embedded object.
var objectKeys = []string{"id", "_id", "uid"}

type refKind int

const (
	kindNone refKind = iota
	kindID
	kindEmail
)

// Ref is a participant reference as supplied by a caller. It unmarshals from
// either a JSON string (raw id or email) or a JSON object carrying one of
// id, _id, uid or email.
type Ref struct {
	kind  refKind
	value string
}

// ByID builds a reference from a raw identifier.
func ByID(id string) Ref {
	return Ref{kind: kindID, value: strings.TrimSpace(id)}
}

// ByEmail builds a reference from an email address.
func ByEmail(email string) Ref {
	return Ref{kind: kindEmail, value: strings.TrimSpace(email)}
}

// Parse builds a reference from a free-form string. Strings that look like an
// email address are treated as one; everything else is a raw id.
func Parse(s string) Ref {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}
	}
	if looksLikeEmail(s) {
		return ByEmail(s)
	}
	return ByID(s)
}

// FromObject builds a reference from an embedded user object.
func FromObject(obj map[string]any) Ref {
	for _, key := range objectKeys {
		if v, ok := stringField(obj, key); ok {
			return ByID(v)
		}
	}
	if v, ok := stringField(obj, "email"); ok {
		return ByEmail(v)
	}
	return Ref{}
}

// Canonical returns the canonical identifier for the reference.
// The second return value is false when the reference cannot be resolved.
func (r Ref) Canonical() (ID, bool) {
	switch r.kind {
	case kindID:
		if r.value == "" {
			return "", false
		}
		return ID(r.value), true
	case kindEmail:
		email := strings.ToLower(r.value)
		if !looksLikeEmail(email) {
			return "", false
		}
		return ID(email), true
	}
	return "", false
}

// IsEmail reports whether the reference was given as an email address.
func (r Ref) IsEmail() bool { return r.kind == kindEmail }

// String returns the raw value of the reference.
func (r Ref) String() string { return r.value }

// UnmarshalJSON accepts a string or an object.
func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = Ref{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Parse(s)
		return nil
	case '{':
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*r = FromObject(obj)
		return nil
	}
	return fmt.Errorf("identity: unsupported reference %s", string(data))
}

// MarshalJSON renders the reference as its raw string.
func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.value)
}

// Normalize resolves any supported reference shape into a canonical ID.
// Supported inputs: string, ID, Ref, *Ref, map[string]any and fmt.Stringer.
func Normalize(v any) (ID, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case ID:
		return Parse(string(t)).Canonical()
	case string:
		return Parse(t).Canonical()
	case Ref:
		return t.Canonical()
	case *Ref:
		if t == nil {
			return "", false
		}
		return t.Canonical()
	case map[string]any:
		return FromObject(t).Canonical()
	case fmt.Stringer:
		return Parse(t.String()).Canonical()
	}
	return "", false
}

// Equal reports whether two references resolve to the same identifier.
// Unresolvable references are never equal to anything.
func Equal(a, b any) bool {
	ida, ok := Normalize(a)
	if !ok {
		return false
	}
	idb, ok := Normalize(b)
	if !ok {
		return false
	}
	return ida == idb
}

func stringField(obj map[string]any, key string) (string, bool) {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return "", false
	}
	var s string
	switch t := raw.(type) {
	case string:
		s = t
	case fmt.Stringer:
		s = t.String()
	case float64:
		s = fmt.Sprintf("%.0f", t)
	default:
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func looksLikeEmail(s string) bool {
	at := strings.IndexByte(s, '@')
	return at > 0 && at < len(s)-1 && strings.IndexByte(s[at+1:], '@') < 0 && !strings.ContainsAny(s, " \t")
}
