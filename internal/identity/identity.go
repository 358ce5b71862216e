// Package identity owns user records: creation at registration and
// lookup at login. Records live in the key-value store under
// "user:<email>" and are immutable once created.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ward/internal/store"
)

var (
	// ErrAlreadyExists is returned when a registration loses the
	// set-if-absent race or the email is already taken.
	ErrAlreadyExists = errors.New("email already registered")

	// ErrNotFound is returned when no record exists for the email.
	ErrNotFound = errors.New("user not found")

	// ErrInvalidEmail is returned for inputs that cannot be a mailbox.
	ErrInvalidEmail = errors.New("invalid email")
)

const userKeyPrefix = "user:"

// User is the stored credential record. The password field holds the
// self-describing hash, never plaintext. The JSON shape is the store
// contract; renaming fields breaks existing records.
type User struct {
	Email        string `json:"email"`
	PasswordHash string `json:"password"`
}

// Store persists user records in the shared KV.
type Store struct {
	kv store.KV
}

func NewStore(kv store.KV) *Store {
	return &Store{kv: kv}
}

func userKey(email string) string { return userKeyPrefix + email }

// ValidateEmail applies the minimal shape check. Email is stored
// case-sensitively as presented; only surrounding whitespace is rejected.
func ValidateEmail(email string) error {
	if email == "" || email != strings.TrimSpace(email) {
		return ErrInvalidEmail
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ErrInvalidEmail
	}
	return nil
}

// Create stores a new record. The store's atomic set-if-absent is the
// only guard against concurrent double registration; there is no
// separate existence check.
func (s *Store) Create(ctx context.Context, u User) error {
	if err := ValidateEmail(u.Email); err != nil {
		return err
	}

	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("identity: marshal user: %w", err)
	}

	ok, err := s.kv.SetIfAbsent(ctx, userKey(u.Email), string(b))
	if err != nil {
		return fmt.Errorf("identity: create user: %w", err)
	}
	if !ok {
		return ErrAlreadyExists
	}
	return nil
}

// GetByEmail loads the record for email, or ErrNotFound.
func (s *Store) GetByEmail(ctx context.Context, email string) (User, error) {
	raw, err := s.kv.Get(ctx, userKey(email))
	if errors.Is(err, store.ErrNotFound) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("identity: get user: %w", err)
	}

	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return User{}, fmt.Errorf("identity: decode user record: %w", err)
	}
	return u, nil
}
