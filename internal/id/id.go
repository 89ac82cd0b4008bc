package id

import (
	"context"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// DefaultLength gives 22 symbols of the 64-symbol nanoid alphabet, i.e. 132
// random bits from crypto/rand.
const DefaultLength = 22

// minLength keeps ids at or above 128 bits of entropy.
const minLength = DefaultLength

// Generator produces unique, URL-safe identifiers.
type Generator struct {
	length int
}

// New returns a Generator with the provided length. Lengths below the
// 128-bit floor are raised to DefaultLength.
func New(length int) *Generator {
	if length < minLength {
		length = DefaultLength
	}
	return &Generator{length: length}
}

// Generate returns a new identifier.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	v, err := gonanoid.New(g.length)
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return v, nil
}
