// Package crypto provides ciphertext-at-rest handling for PII columns.
//
// full_name and identity_document are stored as opaque byte strings encrypted
// with XChaCha20-Poly1305. The key lives only in process memory, loaded from
// configuration at startup; boot fails if it is absent or shorter than 32
// bytes. Decryption happens only at the API response boundary.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// MinKeyLength is the minimum accepted key material length in bytes.
const MinKeyLength = 32

// ErrKeyTooShort is returned when the configured key is shorter than 32 bytes.
var ErrKeyTooShort = errors.New("encryption key must be at least 32 bytes")

// Cipher encrypts and decrypts PII values with a process-wide key.
type Cipher struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

// NewCipher derives the AEAD key from the configured key material.
// Key material longer than 32 bytes is folded through SHA-256 so operators
// can rotate to passphrase-style secrets without truncation surprises.
func NewCipher(keyMaterial []byte) (*Cipher, error) {
	if len(keyMaterial) < MinKeyLength {
		return nil, ErrKeyTooShort
	}
	key := sha256.Sum256(keyMaterial)
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext into nonce||ciphertext.
func (c *Cipher) Encrypt(plaintext string) ([]byte, error) {
	if plaintext == "" {
		return nil, nil
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return append(nonce, sealed...), nil
}

// Decrypt opens nonce||ciphertext produced by Encrypt.
func (c *Cipher) Decrypt(ciphertext []byte) (string, error) {
	if len(ciphertext) == 0 {
		return "", nil
	}
	if len(ciphertext) < chacha20poly1305.NonceSizeX {
		return "", errors.New("ciphertext shorter than nonce")
	}
	nonce := ciphertext[:chacha20poly1305.NonceSizeX]
	opened, err := c.aead.Open(nil, nonce, ciphertext[chacha20poly1305.NonceSizeX:], nil)
	if err != nil {
		return "", fmt.Errorf("open ciphertext: %w", err)
	}
	return string(opened), nil
}
