package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// Cipher seals and opens credential secrets with AES-256-GCM under a single
// process-wide master key. The master key never touches the relational
// store; only Cipher.Encrypt's output does.
type Cipher struct {
	gcm cipher.AEAD
}

// NewCipher builds a Cipher from a master key. The key must be exactly 32
// bytes (AES-256); config.Config.Validate enforces a ≥32 byte SECRET_KEY
// before this is ever called, so callers pass key[:32].
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("secret: master key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secret: failed to init AES block cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secret: failed to init GCM mode: %w", err)
	}
	return &Cipher{gcm: gcm}, nil
}

// Encrypt seals plaintext, prefixing the random nonce to the returned blob
// so Decrypt is self-describing and needs no side-channel for it.
func (c *Cipher) Encrypt(plaintext string) ([]byte, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("secret: failed to generate nonce: %w", err)
	}
	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealed, nil
}

// Decrypt opens a blob produced by Encrypt. A tampered or truncated blob, or
// one sealed under a different key, returns an error rather than a silent
// empty string.
func (c *Cipher) Decrypt(blob []byte) (string, error) {
	nonceSize := c.gcm.NonceSize()
	if len(blob) < nonceSize {
		return "", fmt.Errorf("secret: ciphertext shorter than nonce size")
	}
	nonce, sealed := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("secret: failed to open ciphertext: %w", err)
	}
	return string(plaintext), nil
}
