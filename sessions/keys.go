package sessions

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	keyAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	keyLength   = 32
)

// NewKey generates a random session key.
func NewKey() (string, error) {
	return gonanoid.Generate(keyAlphabet, keyLength)
}
