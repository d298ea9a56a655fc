package idgen

import (
	"errors"
	"fmt"
)

// Common errors for ID generation.
var (
	// ErrInvalidCharacter is returned when decoding encounters a byte outside the alphabet.
	ErrInvalidCharacter = errors.New("invalid base62 character")

	// ErrInvalidFormat is returned when decoding an empty string.
	ErrInvalidFormat = errors.New("invalid base62 format: empty string")

	// ErrOverflow is returned when a decoded value does not fit in 64 bits.
	ErrOverflow = errors.New("base62 value overflows uint64")

	// ErrInvalidLength is returned when a sampler is asked for a non-positive length.
	ErrInvalidLength = errors.New("token length must be positive")

	// ErrInvalidNodeID is returned when the node ID is out of valid range (0-1023).
	ErrInvalidNodeID = errors.New("node ID must be between 0 and 1023")

	// ErrClockMovedBackwards is returned when the system clock moves backwards.
	ErrClockMovedBackwards = errors.New("clock moved backwards, refusing to generate ID")
)

// CharacterError reports the offending byte and its position in the input.
type CharacterError struct {
	Char byte
	Pos  int
}

func (e *CharacterError) Error() string {
	return fmt.Sprintf("invalid base62 character %q at position %d", e.Char, e.Pos)
}

// Unwrap lets callers match with errors.Is(err, ErrInvalidCharacter).
func (e *CharacterError) Unwrap() error {
	return ErrInvalidCharacter
}
