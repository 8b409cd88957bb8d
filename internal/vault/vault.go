// Package vault encrypts per-tenant platform access tokens at rest.
package vault

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

	"whatsapp-crm/internal/apperr"
)

const keyInfo = "whatsapp-crm/access-token/v1"

var ErrMalformedBlob = errors.New("malformed encrypted token")

type Vault struct {
	aead cipher.AEAD
}

// New derives an AES-256 key from secret. Any non-empty secret works; the
// derivation spreads short secrets over the full key length.
func New(secret string) (*Vault, error) {
	if secret == "" {
		return nil, apperr.Configuration("ENCRYPTION_KEY is not configured")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Vault{aead: aead}, nil
}

// Encrypt returns base64(nonce || ciphertext).
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (v *Vault) Decrypt(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", ErrMalformedBlob
	}
	ns := v.aead.NonceSize()
	if len(raw) < ns {
		return "", ErrMalformedBlob
	}
	plaintext, err := v.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt token: %w", err)
	}
	return string(plaintext), nil
}
