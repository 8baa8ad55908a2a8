// Package auth authenticates API callers with HS256 JWTs and resolves who
// is an administrator.
//
// Tokens carry the user id in sub, plus optional email and role claims.
// Admin rights come from the role claim or from the static admin directory.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mbd888/homeescrow/internal/identity"
)

var (
	ErrMissingToken = errors.New("authentication token required")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Role is the platform role of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the authenticated caller.
type User struct {
	ID    identity.ID `json:"id"`
	Email string      `json:"email,omitempty"`
	Role  Role        `json:"role"`
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// Claims are the JWT claims issued for API users.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  Role   `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates tokens and resolves the caller.
type Verifier struct {
	secret    []byte
	issuer    string
	directory *Directory
}

// NewVerifier creates a verifier for HS256 tokens signed with secret.
// directory may be nil.
func NewVerifier(secret, issuer string, directory *Directory) *Verifier {
	if directory == nil {
		directory = NewDirectory(nil)
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, directory: directory}
}

// Directory returns the admin directory used by the verifier.
func (v *Verifier) Directory() *Directory { return v.directory }

// Verify parses and validates a raw token.
func (v *Verifier) Verify(raw string) (User, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	if raw == "" {
		return User{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return User{}, ErrInvalidToken
	}

	id, ok := identity.Normalize(claims.Subject)
	if !ok {
		return User{}, ErrInvalidToken
	}
	user := User{ID: id, Email: strings.ToLower(strings.TrimSpace(claims.Email)), Role: RoleUser}
	if claims.Role == RoleAdmin || v.directory.IsAdmin(id) {
		user.Role = RoleAdmin
	}
	return user, nil
}

// Issue signs a token for user valid for ttl. Used by the dev token
// command and tests.
func (v *Verifier) Issue(user User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Directory is the static set of administrator ids configured at startup.
type Directory struct {
	admins map[identity.ID]struct{}
	order  []identity.ID
}

// NewDirectory builds a directory from raw ids or emails.
func NewDirectory(ids []string) *Directory {
	d := &Directory{admins: make(map[identity.ID]struct{}, len(ids))}
	for _, raw := range ids {
		id, ok := identity.Normalize(raw)
		if !ok {
			continue
		}
		if _, dup := d.admins[id]; dup {
			continue
		}
		d.admins[id] = struct{}{}
		d.order = append(d.order, id)
	}
	return d
}

// IsAdmin reports whether id is a configured administrator.
func (d *Directory) IsAdmin(id identity.ID) bool {
	_, ok := d.admins[id]
	return ok
}

// AdminIDs returns the configured administrators in configuration order.
func (d *Directory) AdminIDs(ctx context.Context) ([]identity.ID, error) {
	out := make([]identity.ID, len(d.order))
	copy(out, d.order)
	return out, nil
}
