// Package idgen generates transaction ids, human-readable escrow references
// and random tokens.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// ReferencePrefix prefixes every escrow reference code.
const ReferencePrefix = "ESC-"

// New returns a random UUIDv4 string.
func New() string {
	return uuid.NewString()
}

// Reference returns a human-readable escrow code such as ESC-9F2A61C04B7E.
func Reference() string {
	return ReferencePrefix + strings.ToUpper(Hex(6))
}

// WithPrefix returns prefix followed by 24 random hex chars.
func WithPrefix(prefix string) string {
	return prefix + Hex(12)
}

// Hex returns numBytes random bytes, hex encoded.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
