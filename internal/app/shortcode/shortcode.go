// Package shortcode generates and allocates the short codes links are
// addressed by.
package shortcode

import (
	"crypto/rand"
	"errors"
	"regexp"
)

const (
	// DefaultLength is the length of generated codes.
	DefaultLength = 7
	// MaxAliasLength bounds user-chosen aliases.
	MaxAliasLength = 32

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// largest multiple of len(alphabet) that fits in a byte; bytes at or above
	// it are rejected so every symbol is equally likely.
	rejectAbove = 256 - 256%len(alphabet)
)

var (
	// ErrTaken is returned by a reserve function when the code is already assigned.
	ErrTaken = errors.New("short code already taken")
	// ErrInvalidAlias signals a custom alias with a forbidden character or length.
	ErrInvalidAlias = errors.New("custom alias must be 1-32 characters of letters, digits, '-' or '_'")

	aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Generator produces random candidate codes.
type Generator interface {
	Generate() string
}

// RandomGenerator draws fixed-length codes from an alphanumeric alphabet
// using crypto/rand.
type RandomGenerator struct {
	Length int
}

// NewRandomGenerator returns a generator for DefaultLength codes.
func NewRandomGenerator() *RandomGenerator {
	return &RandomGenerator{Length: DefaultLength}
}

// Generate returns a new random code.
func (g *RandomGenerator) Generate() string {
	n := g.Length
	if n <= 0 {
		n = DefaultLength
	}

	code := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(code) < n {
		if _, err := rand.Read(buf); err != nil {
			// crypto/rand.Read does not fail on supported platforms.
			panic(err)
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			code = append(code, alphabet[int(b)%len(alphabet)])
			if len(code) == n {
				break
			}
		}
	}
	return string(code)
}

// ValidateAlias checks a user-supplied alias.
func ValidateAlias(alias string) error {
	if alias == "" || len(alias) > MaxAliasLength || !aliasPattern.MatchString(alias) {
		return ErrInvalidAlias
	}
	return nil
}
