// Package cryptox encrypts file content at rest with AES-256-GCM.
// One symmetric key per deployment; every blob gets a fresh random
// nonce, recorded next to the algorithm identifier in metadata so a
// future key rotation can coexist with old records.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// Algorithm is the identifier written into metadata. Decrypt
	// refuses anything else so silently-corrupted metadata cannot
	// route ciphertext through the wrong primitive.
	Algorithm = "AES-256-GCM"

	keySize   = 32
	nonceSize = 12

	currentKeyVersion = "1"
)

// ErrIntegrity is returned when the GCM tag does not verify: tampered
// ciphertext, a different key, or corrupted metadata. Callers must
// treat it as terminal; plaintext is never returned alongside it.
var ErrIntegrity = errors.New("cryptox: integrity check failed")

// Metadata carries everything except the key that decryption needs.
// It is stored as JSON in the record's cipher_metadata column.
type Metadata struct {
	Algorithm  string `json:"algorithm"`
	Nonce      string `json:"nonce"` // hex
	KeyVersion string `json:"key_version"`
}

// Cipher holds the deployment key. Read-only after construction and
// safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// New builds a Cipher from a 32-byte key.
func New(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("cryptox: key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// NewFromHex builds a Cipher from a hex-encoded key, the form the key
// takes in configuration.
func NewFromHex(hexKey string) (*Cipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("cryptox: key is not valid hex: %w", err)
	}
	return New(key)
}

// Encrypt seals plaintext under a fresh random nonce. Nonce reuse
// under one key breaks GCM, so the nonce always comes from
// crypto/rand and never from the caller.
func (c *Cipher) Encrypt(plaintext []byte) ([]byte, Metadata, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, Metadata{}, err
	}

	ciphertext := c.aead.Seal(nil, nonce, plaintext, nil)

	return ciphertext, Metadata{
		Algorithm:  Algorithm,
		Nonce:      hex.EncodeToString(nonce),
		KeyVersion: currentKeyVersion,
	}, nil
}

// Decrypt opens ciphertext produced by Encrypt. Any authentication
// failure surfaces as ErrIntegrity.
func (c *Cipher) Decrypt(ciphertext []byte, meta Metadata) ([]byte, error) {
	if meta.Algorithm != Algorithm {
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrIntegrity, meta.Algorithm)
	}
	nonce, err := hex.DecodeString(meta.Nonce)
	if err != nil || len(nonce) != nonceSize {
		return nil, fmt.Errorf("%w: bad nonce", ErrIntegrity)
	}

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}
