package idgen

import (
	"math/bits"
	"strings"
)

// Alphabet is the Base62 symbol set: 0-9, A-Z, a-z (62 characters).
// The ordering is part of the token format: reordering it changes which
// sequential ID every previously issued token decodes to.
const Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const base = 62

// maxEncodedLen is the length of Encode(math.MaxUint64).
const maxEncodedLen = 11

// charToValue maps each byte to its numeric value for fast decoding.
var charToValue [256]int8

func init() {
	// Initialize all values to -1 (invalid)
	for i := range charToValue {
		charToValue[i] = -1
	}
	for i := 0; i < len(Alphabet); i++ {
		charToValue[Alphabet[i]] = int8(i)
	}
}

// Encode converts a uint64 to its shortest Base62 string.
// Zero encodes to "0"; no other value has a leading zero symbol.
func Encode(n uint64) string {
	if n == 0 {
		return Alphabet[:1]
	}

	// Digits are written right to left so no reversal is needed.
	var buf [maxEncodedLen]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = Alphabet[n%base]
		n /= base
	}

	return string(buf[i:])
}

// EncodeWithPadding converts a uint64 to a Base62 string with minimum length.
// If the encoded string is shorter than minLength, it's left-padded with zeros.
func EncodeWithPadding(n uint64, minLength int) string {
	encoded := Encode(n)
	if len(encoded) >= minLength {
		return encoded
	}
	return strings.Repeat(Alphabet[:1], minLength-len(encoded)) + encoded
}

// Decode converts a Base62 string back to a uint64.
func Decode(s string) (uint64, error) {
	if len(s) == 0 {
		return 0, ErrInvalidFormat
	}

	var result uint64
	for i := 0; i < len(s); i++ {
		val := charToValue[s[i]]
		if val < 0 {
			return 0, &CharacterError{Char: s[i], Pos: i}
		}

		hi, lo := bits.Mul64(result, base)
		if hi != 0 {
			return 0, ErrOverflow
		}
		sum, carry := bits.Add64(lo, uint64(val), 0)
		if carry != 0 {
			return 0, ErrOverflow
		}
		result = sum
	}

	return result, nil
}

// IsValid checks if a string contains only valid Base62 characters.
func IsValid(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if charToValue[s[i]] < 0 {
			return false
		}
	}
	return true
}

// MaxValueForLength returns the largest value whose encoding fits in length
// symbols, saturating at math.MaxUint64.
func MaxValueForLength(length int) uint64 {
	if length <= 0 {
		return 0
	}
	if length >= maxEncodedLen {
		return ^uint64(0)
	}
	v := uint64(1)
	for i := 0; i < length; i++ {
		v *= base
	}
	return v - 1
}
