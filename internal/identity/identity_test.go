package identity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ward/internal/store"
)

func TestCreateAndGet(t *testing.T) {
	s := NewStore(store.NewMemory())
	ctx := context.Background()

	u := User{Email: "alice@example.com", PasswordHash: "$2a$12$fakehash"}
	if err := s.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.GetByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if got != u {
		t.Fatalf("got %+v want %+v", got, u)
	}
}

func TestCreate_Duplicate(t *testing.T) {
	s := NewStore(store.NewMemory())
	ctx := context.Background()

	u := User{Email: "alice@example.com", PasswordHash: "h1"}
	if err := s.Create(ctx, u); err != nil {
		t.Fatalf("first Create: %v", err)
	}

	err := s.Create(ctx, User{Email: "alice@example.com", PasswordHash: "h2"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	// The original record must survive the losing write.
	got, err := s.GetByEmail(ctx, "alice@example.com")
	if err != nil || got.PasswordHash != "h1" {
		t.Fatalf("got %+v err=%v", got, err)
	}
}

func TestCreate_ConcurrentSameEmail(t *testing.T) {
	s := NewStore(store.NewMemory())
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Create(ctx, User{Email: "race@example.com", PasswordHash: "h"})
		}(i)
	}
	wg.Wait()

	var created, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrAlreadyExists):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 || conflicts != n-1 {
		t.Fatalf("created=%d conflicts=%d, want 1/%d", created, conflicts, n-1)
	}
}

func TestGetByEmail_Missing(t *testing.T) {
	s := NewStore(store.NewMemory())

	_, err := s.GetByEmail(context.Background(), "ghost@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestValidateEmail(t *testing.T) {
	valid := []string{"a@b.com", "Alice+tag@Example.org"}
	for _, e := range valid {
		if err := ValidateEmail(e); err != nil {
			t.Fatalf("ValidateEmail(%q): %v", e, err)
		}
	}

	invalid := []string{"", "no-at-sign", "@leading", "trailing@", " padded@example.com"}
	for _, e := range invalid {
		if err := ValidateEmail(e); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("ValidateEmail(%q): expected ErrInvalidEmail, got %v", e, err)
		}
	}
}
