package password

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt rejects inputs longer than 72 bytes.
const maxPasswordBytes = 72

// Config carries the bcrypt work factor.
//
// The default cost targets roughly 100ms per hash on commodity hardware,
// which is the point of the exercise: offline brute force must be slow.
type Config struct {
	Cost int
}

// DefaultConfig returns the production work factor.
func DefaultConfig() Config {
	return Config{Cost: 12}
}

// Validate checks plaintext bounds before hashing.
func (c Config) Validate(plaintext string) error {
	if strings.TrimSpace(plaintext) == "" {
		return ErrPasswordEmpty
	}
	if len(plaintext) > maxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// Hash produces a salted bcrypt hash. A fresh random salt is generated
// per call, so hashing the same plaintext twice yields different outputs.
func (c Config) Hash(plaintext string) (string, error) {
	if err := c.Validate(plaintext); err != nil {
		return "", err
	}

	cost := c.Cost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultConfig().Cost
	}

	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", fmt.Errorf("password: hash: %w", err)
	}
	return string(b), nil
}

// Verify reports whether plaintext matches the encoded hash. The
// comparison is constant time. Returns (false, ErrInvalidHash) when the
// hash string is malformed.
func (c Config) Verify(plaintext, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(plaintext))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, ErrInvalidHash
}
