// Package idgen turns numbers and random samples into Base62 short codes.
package idgen

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// DefaultCodeLength is the default length for generated short codes.
const DefaultCodeLength = 7

// Sampler draws random candidate tokens from the Base62 alphabet.
type Sampler interface {
	// Sample returns a token of exactly length symbols.
	Sample(length int) (string, error)
}

// NanoidSampler samples uniformly from Alphabet using go-nanoid.
// It holds no state and is safe for concurrent use.
type NanoidSampler struct{}

// NewSampler returns the default random sampler.
func NewSampler() *NanoidSampler {
	return &NanoidSampler{}
}

// Sample creates a new random Base62 token.
func (NanoidSampler) Sample(length int) (string, error) {
	if length < 1 {
		return "", ErrInvalidLength
	}
	return gonanoid.Generate(Alphabet, length)
}

// SamplerFunc adapts a plain function to the Sampler interface.
type SamplerFunc func(length int) (string, error)

// Sample calls f(length).
func (f SamplerFunc) Sample(length int) (string, error) {
	return f(length)
}
