package encryptor

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	saltSize  = 16
	nonceSize = chacha20poly1305.NonceSize
	keySize   = chacha20poly1305.KeySize
	scryptN   = 32768
	scryptR   = 8
	scryptP   = 1
)

// Cipher names persisted in file metadata.
const (
	NameChaCha20Poly1305 = "chacha20poly1305"
	NameLegacyAESCBC     = "aes-256-cbc-legacy"
)

// ErrEncryptionUnavailable means a block could not be encrypted with the
// given key material.
var ErrEncryptionUnavailable = errors.New("encryption unavailable")

// Cipher encrypts and decrypts block payloads keyed by a file's access key.
type Cipher interface {
	Name() string
	Encrypt(plaintext []byte, key string) ([]byte, error)
	Decrypt(ciphertext []byte, key string) ([]byte, error)
}

// New returns the cipher for a configured mode: "aead" (default) or "legacy".
func New(mode string) (Cipher, error) {
	switch strings.ToLower(mode) {
	case "", "aead", NameChaCha20Poly1305:
		return &chaCha20Poly1305Cipher{}, nil
	case "legacy", NameLegacyAESCBC:
		return &legacyCipher{}, nil
	default:
		return nil, fmt.Errorf("unknown cipher mode %q", mode)
	}
}

// ForName maps a persisted cipher name back to its implementation. Metadata
// written before the name was recorded used the legacy cipher.
func ForName(name string) (Cipher, error) {
	if name == "" {
		return &legacyCipher{}, nil
	}
	return New(name)
}

// chaCha20Poly1305Cipher derives a key per block with scrypt and a random
// salt, then seals with a random nonce. Output is salt || nonce || sealed.
type chaCha20Poly1305Cipher struct{}

func (c *chaCha20Poly1305Cipher) Name() string { return NameChaCha20Poly1305 }

func (c *chaCha20Poly1305Cipher) deriveKey(password string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keySize)
}

func (c *chaCha20Poly1305Cipher) Encrypt(plaintext []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: empty key", ErrEncryptionUnavailable)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("%w: failed to generate salt: %v", ErrEncryptionUnavailable, err)
	}

	key, err := c.deriveKey(password, salt)
	if err != nil {
		return nil, fmt.Errorf("%w: key derivation failed: %v", ErrEncryptionUnavailable, err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create AEAD cipher: %v", ErrEncryptionUnavailable, err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: failed to generate nonce: %v", ErrEncryptionUnavailable, err)
	}

	result := make([]byte, 0, saltSize+nonceSize+len(plaintext)+aead.Overhead())
	result = append(result, salt...)
	result = append(result, nonce...)
	return aead.Seal(result, nonce, plaintext, nil), nil
}

func (c *chaCha20Poly1305Cipher) Decrypt(ciphertext []byte, password string) ([]byte, error) {
	if len(ciphertext) < saltSize+nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	salt := ciphertext[:saltSize]
	nonce := ciphertext[saltSize : saltSize+nonceSize]
	sealed := ciphertext[saltSize+nonceSize:]

	key, err := c.deriveKey(password, salt)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}
