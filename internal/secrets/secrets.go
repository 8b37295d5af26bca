// Package secrets seals and opens stored server credentials so that
// plain-text secrets never reach the database. Sealing uses NaCl secretbox
// with a random 24-byte nonce prepended to the ciphertext.
package secrets

import (
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// ErrInvalidCiphertext indicates the sealed blob is truncated or was not
// produced with the current key.
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

const nonceSize = 24

// Sealer encrypts and decrypts secrets with a fixed 32-byte key.
type Sealer struct {
	key *[32]byte
}

// NewSealer creates a Sealer with the given key.
func NewSealer(key *[32]byte) *Sealer {
	return &Sealer{key: key}
}

// Seal encrypts plaintext and returns nonce||ciphertext.
func (s *Sealer) Seal(plaintext string) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], []byte(plaintext), &nonce, s.key), nil
}

// Open decrypts a blob produced by Seal.
func (s *Sealer) Open(sealed []byte) (string, error) {
	if len(sealed) < nonceSize {
		return "", ErrInvalidCiphertext
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, s.key)
	if !ok {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}
