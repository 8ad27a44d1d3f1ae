package cryptox

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for deriving the token vault key. These run once per
// process start, so we can afford the recommended memory cost.
const (
	iterations  = 3
	memory      = 64 * 1024 // 64 MiB
	parallelism = 2

	// KeyLength is the derived key size (AES-256).
	KeyLength = 32

	// SaltLength is the size of salts produced by NewSalt.
	SaltLength = 16
)

var ErrEmptyPassphrase = errors.New("cryptox: empty passphrase")

// DeriveKey stretches a passphrase into a KeyLength key with Argon2id.
func DeriveKey(passphrase string, salt []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	if len(salt) < SaltLength {
		return nil, fmt.Errorf("cryptox: salt must be at least %d bytes", SaltLength)
	}

	return argon2.IDKey([]byte(passphrase), salt, iterations, memory, parallelism, KeyLength), nil
}

// NewSalt returns SaltLength random bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// NewPassphraseSealer is DeriveKey followed by NewSealer.
func NewPassphraseSealer(passphrase string, salt []byte) (*Sealer, error) {
	key, err := DeriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	return NewSealer(key)
}
