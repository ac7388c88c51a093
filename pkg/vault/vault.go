// Package vault provides symmetric encryption of a Task's device
// descriptor at rest, per spec §4.2. It is grounded on
// golang.org/x/crypto/chacha20poly1305, the AEAD dependency declared (but
// unexercised) in dataparency-dev/AI-delegation's go.mod — Taskara is the
// component that actually wires it in.
package vault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required secret length: 32 bytes for XChaCha20-Poly1305.
const KeySize = chacha20poly1305.KeySize

// Vault encrypts/decrypts the bytes of a Task's canonical device JSON.
type Vault struct {
	aead chacha20poly1305.AEAD
}

// New constructs a Vault from an already-acquired 32-byte key.
func New(key []byte) (*Vault, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("vault: key must be %d bytes, got %d", KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("vault: construct AEAD: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt produces a Base64 wrapper of the ciphertext of plaintext, with a
// random 24-byte nonce prefixed (XChaCha20-Poly1305's extended nonce makes
// random generation safe without a counter).
func (v *Vault) Encrypt(plaintext []byte) (string, error) {
	if plaintext == nil {
		return "", nil
	}
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("vault: generate nonce: %w", err)
	}
	ciphertext := v.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. decrypt(null) returns null per spec §4.2.
func (v *Vault) Decrypt(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("vault: decode base64: %w", err)
	}
	nonceSize := v.aead.NonceSize()
	if len(raw) < nonceSize {
		return nil, errors.New("vault: ciphertext shorter than nonce")
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: decrypt: %w", err)
	}
	return plaintext, nil
}

// LoadKey acquires the 32-byte encryption key per spec §4.2/§9's
// three-step lookup: ENCRYPTION_KEY env var, then a key file under the
// user's config directory, then generate-and-persist with the first
// write guarded by an exclusive create so concurrent processes never
// race to mint two different keys.
func LoadKey() ([]byte, error) {
	if raw := os.Getenv("ENCRYPTION_KEY"); raw != "" {
		key, err := decodeKey(raw)
		if err != nil {
			return nil, fmt.Errorf("vault: ENCRYPTION_KEY: %w", err)
		}
		return key, nil
	}

	path, err := keyFilePath()
	if err != nil {
		return nil, err
	}

	if data, err := os.ReadFile(path); err == nil {
		return decodeKey(string(data))
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("vault: read key file: %w", err)
	}

	return generateAndPersistKey(path)
}

func keyFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("vault: resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "taskara", "encryption.key"), nil
}

func generateAndPersistKey(path string) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("vault: generate key: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("vault: create key directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			// Lost the race to another process; read what it wrote.
			data, readErr := os.ReadFile(path)
			if readErr != nil {
				return nil, fmt.Errorf("vault: read key file after lost race: %w", readErr)
			}
			return decodeKey(string(data))
		}
		return nil, fmt.Errorf("vault: create key file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(encoded); err != nil {
		return nil, fmt.Errorf("vault: write key file: %w", err)
	}
	return key, nil
}

func decodeKey(raw string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must decode to %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}
