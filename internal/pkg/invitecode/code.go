package invitecode

import (
	"fmt"

	nanoid "github.com/jaevor/go-nanoid"
)

const (
	Length   = 10
	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

// Generator produces short URL-safe invite codes.
type Generator struct {
	next func() string
}

func New() (*Generator, error) {
	next, err := nanoid.CustomASCII(alphabet, Length)
	if err != nil {
		return nil, fmt.Errorf("failed to init invite code generator: %w", err)
	}
	return &Generator{next: next}, nil
}

func (g *Generator) NewCode() string {
	return g.next()
}
