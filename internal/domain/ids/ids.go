// Package ids mints and checks the identifiers used across the tenant schema.
// Entities are keyed by ULIDs; reply and exchange tokens are random Crockford
// base32 strings.
package ids

import (
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"
)

var ErrInvalidULID = errors.New("invalid ULID")

// New returns a fresh ULID. ulid.Make is monotonic within a millisecond, so
// ids minted in one request sort in creation order.
func New() string {
	return ulid.Make().String()
}

// IsULID reports whether value, ignoring surrounding space and case, is a
// 26-character ULID that fits in 128 bits.
func IsULID(value string) bool {
	value = strings.TrimSpace(value)
	if len(value) != ulid.EncodedSize {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(value))
	return err == nil
}

func ValidateULID(value string) error {
	if !IsULID(value) {
		return ErrInvalidULID
	}
	return nil
}

// Normalize upper-cases and trims a ULID taken from user input.
func Normalize(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}
