package source

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Credential cipher errors.
var (
	ErrInvalidCiphertext = errors.New("convene: invalid credential ciphertext")
	ErrDecryptionFailed  = errors.New("convene: credential decryption failed")
)

const cipherInfo = "convene-source-credentials"

// Cipher encrypts source credentials at rest with AES-256-GCM. The key is
// derived from a master secret with HKDF-SHA256.
//
// A nil *Cipher passes values through unchanged.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives a Cipher from a base64 master key. An empty key returns
// a nil Cipher.
func NewCipher(masterKey string) (*Cipher, error) {
	if masterKey == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil {
		return nil, fmt.Errorf("convene: decode master key: %w", err)
	}
	if len(raw) < 16 {
		return nil, errors.New("convene: master key must be at least 16 bytes")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, raw, nil, []byte(cipherInfo)), key); err != nil {
		return nil, fmt.Errorf("convene: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("convene: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("convene: create gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if c == nil || plaintext == "" {
		return plaintext, nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("convene: generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if c == nil || ciphertext == "" {
		return ciphertext, nil
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	ns := c.aead.NonceSize()
	if len(data) < ns+c.aead.Overhead() {
		return "", ErrInvalidCiphertext
	}
	plain, err := c.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	return string(plain), nil
}

// Credential returns the decrypted credential of src.
func (c *Cipher) Credential(src *EventSource) (string, error) {
	return c.Decrypt(src.Credential)
}
