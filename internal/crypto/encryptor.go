// Package crypto provides at-rest encryption for secrets that fall back to
// database storage when the OS keyring is unavailable.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
)

const keyFileName = "credentials.key"

// Encryptor seals and opens secrets with a per-install ChaCha20-Poly1305 key
// held in a owner-only-readable file under the data directory.
type Encryptor struct {
	aead chacha20poly1305.AEAD
}

// NewEncryptor loads the install's key from dataDir, generating one on first
// use.
func NewEncryptor(dataDir string) (*Encryptor, error) {
	key, err := loadOrCreateKey(filepath.Join(dataDir, keyFileName))
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("initializing cipher: %w", err)
	}

	return &Encryptor{aead: aead}, nil
}

// Encrypt returns a base64 string containing the nonce and ciphertext.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (e *Encryptor) Decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}

	nonceSize := e.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, data := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, data, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}

	return string(plaintext), nil
}

func loadOrCreateKey(path string) ([]byte, error) {
	if data, err := os.ReadFile(path); err == nil {
		if len(data) == chacha20poly1305.KeySize {
			return data, nil
		}
		return nil, fmt.Errorf("key file %s has wrong size", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}

	if err := os.WriteFile(path, key, 0600); err != nil {
		return nil, fmt.Errorf("writing key file: %w", err)
	}

	return key, nil
}
