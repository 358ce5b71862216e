package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"ward/internal/auth/token"
	"ward/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Memory) {
	t.Helper()

	cfg := token.DefaultConfig()
	cfg.SecretKey = "test-secret-key-not-for-production"
	mgr, err := token.NewManager(cfg)
	if err != nil {
		t.Fatalf("token.NewManager: %v", err)
	}

	kv := store.NewMemory()
	return NewService(mgr, kv), kv
}

func TestIssueThenAuthenticate(t *testing.T) {
	s, _ := newTestService(t)
	now := time.Now().UTC()

	issued, err := s.Issue("alice@example.com", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	subject, err := s.Authenticate(context.Background(), issued.Token, now.Add(time.Second))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if subject != "alice@example.com" {
		t.Fatalf("subject=%q", subject)
	}
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	s, _ := newTestService(t)
	now := time.Now().UTC()

	issued, err := s.Issue("alice@example.com", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	_, err = s.Authenticate(context.Background(), issued.Token, issued.ExpiresAt.Add(time.Second))
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestAuthenticate_Garbage(t *testing.T) {
	s, _ := newTestService(t)
	now := time.Now().UTC()

	for _, bad := range []string{"", "nonsense", "a.b.c"} {
		if _, err := s.Authenticate(context.Background(), bad, now); !errors.Is(err, ErrInvalid) {
			t.Fatalf("Authenticate(%q): expected ErrInvalid, got %v", bad, err)
		}
	}
}

func TestRevokeThenAuthenticate(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	issued, err := s.Issue("alice@example.com", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := s.Revoke(ctx, issued.Token, now.Add(time.Second)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	// Signature and expiry are still individually valid; revocation alone
	// must reject the token.
	_, err = s.Authenticate(ctx, issued.Token, now.Add(2*time.Second))
	if !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected ErrRevoked, got %v", err)
	}
}

func TestRevoke_TTLMatchesRemainingLifetime(t *testing.T) {
	s, kv := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	issued, err := s.Issue("alice@example.com", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	revokeAt := now.Add(100 * time.Minute)
	if err := s.Revoke(ctx, issued.Token, revokeAt); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	// JWT exp has second precision, so remaining lifetime may differ from
	// the ideal by under a second, never more.
	want := issued.ExpiresAt.Sub(revokeAt)
	got := kv.TTL(blacklistPrefix + issued.Token)
	if got <= 0 {
		t.Fatalf("no blacklist entry, ttl=%v", got)
	}
	diff := got - want
	if diff < -time.Second || diff > time.Second {
		t.Fatalf("ttl=%v want ~%v", got, want)
	}
}

func TestRevoke_Idempotent(t *testing.T) {
	s, kv := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	issued, err := s.Issue("alice@example.com", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := s.Revoke(ctx, issued.Token, now); err != nil {
		t.Fatalf("first Revoke: %v", err)
	}
	first := kv.TTL(blacklistPrefix + issued.Token)

	if err := s.Revoke(ctx, issued.Token, now); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
	second := kv.TTL(blacklistPrefix + issued.Token)

	// Same key, same expiry ceiling: the second write must not extend the
	// entry beyond the token's natural expiry.
	if second > first {
		t.Fatalf("second revoke extended ttl: %v > %v", second, first)
	}
}

func TestRevoke_ExpiredTokenIsNoop(t *testing.T) {
	s, kv := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	issued, err := s.Issue("alice@example.com", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	after := issued.ExpiresAt.Add(time.Minute)
	if err := s.Revoke(ctx, issued.Token, after); err != nil {
		t.Fatalf("Revoke after expiry: %v", err)
	}
	if ttl := kv.TTL(blacklistPrefix + issued.Token); ttl != -1 {
		t.Fatalf("expected no blacklist entry for expired token, ttl=%v", ttl)
	}
}

func TestRevoke_RejectsUnverifiableToken(t *testing.T) {
	s, _ := newTestService(t)

	err := s.Revoke(context.Background(), "garbage-token", time.Now().UTC())
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

type failingKV struct{ store.KV }

func (failingKV) Get(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}

func TestAuthenticate_StoreFailurePropagates(t *testing.T) {
	s, _ := newTestService(t)
	now := time.Now().UTC()

	issued, err := s.Issue("alice@example.com", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	s.kv = failingKV{}
	_, err = s.Authenticate(context.Background(), issued.Token, now)
	if err == nil {
		t.Fatal("expected store failure to propagate")
	}
	// Infrastructure failures are not rejections.
	if errors.Is(err, ErrRevoked) || errors.Is(err, ErrInvalid) || errors.Is(err, ErrExpired) {
		t.Fatalf("store failure misclassified as rejection: %v", err)
	}
}
