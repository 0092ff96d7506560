package utils

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrBlobCorrupted is returned when a sealed blob fails authentication
var ErrBlobCorrupted = errors.New("sealed blob corrupted or key mismatch")

// BlobSealer encrypts photo payloads at rest with XChaCha20-Poly1305.
// The photo id is bound as associated data so blobs cannot be swapped
// between rows.
type BlobSealer struct {
	aead cipher.AEAD
}

// NewBlobSealer creates a sealer from a 32-byte key
func NewBlobSealer(key []byte) (*BlobSealer, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init blob sealer: %w", err)
	}
	return &BlobSealer{aead: aead}, nil
}

// Seal returns nonce || ciphertext
func (s *BlobSealer) Seal(photoID string, plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plain, []byte(photoID)), nil
}

// Open reverses Seal
func (s *BlobSealer) Open(photoID string, sealed []byte) ([]byte, error) {
	if len(sealed) < s.aead.NonceSize() {
		return nil, ErrBlobCorrupted
	}
	nonce, ct := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ct, []byte(photoID))
	if err != nil {
		return nil, ErrBlobCorrupted
	}
	return plain, nil
}
