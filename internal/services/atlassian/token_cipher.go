package atlassian

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/jiralink/internal/common"
	"golang.org/x/crypto/chacha20poly1305"
)

// TokenCipher seals OAuth tokens with XChaCha20-Poly1305 before they reach storage
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher creates a cipher from a 32-byte key
func NewTokenCipher(key []byte) (*TokenCipher, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("invalid token key: %w", err)
	}
	return &TokenCipher{aead: aead}, nil
}

// LoadTokenCipher resolves the key from config, then from the key file.
// A missing key file is created with a random key and 0600 permissions.
func LoadTokenCipher(config common.SecurityConfig) (*TokenCipher, error) {
	if config.TokenKey != "" {
		key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(config.TokenKey))
		if err != nil {
			return nil, fmt.Errorf("failed to decode token_key: %w", err)
		}
		return NewTokenCipher(key)
	}

	if config.TokenKeyFile == "" {
		return nil, errors.New("neither token_key nor token_key_file is set")
	}

	data, err := os.ReadFile(config.TokenKeyFile)
	if err == nil {
		key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", config.TokenKeyFile, err)
		}
		return NewTokenCipher(key)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", config.TokenKeyFile, err)
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate token key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(config.TokenKeyFile), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(config.TokenKeyFile, []byte(base64.StdEncoding.EncodeToString(key)), 0600); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", config.TokenKeyFile, err)
	}
	return NewTokenCipher(key)
}

// Encrypt returns base64(nonce || ciphertext). Empty input stays empty.
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt
func (c *TokenCipher) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode token: %w", err)
	}
	if len(sealed) < c.aead.NonceSize() {
		return "", errors.New("encrypted token is too short")
	}

	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt token: %w", err)
	}
	return string(plaintext), nil
}
