// Package id provides time-ordered UUIDv7 identifiers for every entity.
package id

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ID is a type alias for UUID, used across all entities.
type ID = uuid.UUID

// ErrNil is returned by Parse for the all-zero UUID.
var ErrNil = errors.New("nil id")

// New generates a new UUIDv7. Falls back to a random v4 if the clock source fails.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Parse reads an id from user input. Surrounding whitespace is ignored and
// the nil UUID is rejected, since no stored row carries it.
func Parse(s string) (ID, error) {
	v, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, err
	}
	if v == uuid.Nil {
		return uuid.Nil, ErrNil
	}
	return v, nil
}

// Nil returns zero-value UUID.
func Nil() ID {
	return uuid.Nil
}

// IsNil checks if ID is zero-value.
func IsNil(v ID) bool {
	return v == uuid.Nil
}

// Ptr returns a pointer to a copy of v, or nil for the zero value.
func Ptr(v ID) *ID {
	if IsNil(v) {
		return nil
	}
	return &v
}
