// Package id generates the opaque identifiers querygrid hands out: request
// and trace ids, token session ids and span ids.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a time-ordered UUIDv7 string, falling back to a random UUIDv4
// when the clock source fails.
func New() string {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return v.String()
}

// Short returns 16 random hex characters, the width of a span id.
func Short() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// Valid reports whether s is a UUID in canonical form.
func Valid(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
