package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ward/internal/auth/token"
	"ward/internal/store"
)

const blacklistPrefix = "blacklist:"

// blacklistMarker is a sentinel; only the key's presence matters.
const blacklistMarker = "1"

// Service implements issue / authenticate / revoke over a token manager
// and the shared KV store.
//
// Requests are independent and stateless between calls: the only shared
// state is the immutable signing key inside the token manager and the
// store itself, whose atomicity is the only synchronization primitive
// used.
type Service struct {
	tokens *token.Manager
	kv     store.KV
}

func NewService(tokens *token.Manager, kv store.KV) *Service {
	return &Service{tokens: tokens, kv: kv}
}

// Issued is the result of a successful login.
type Issued struct {
	Token     string
	ExpiresAt time.Time
}

// Issue signs a fresh token for subject. Lifetime comes from service
// configuration; callers cannot extend it.
func (s *Service) Issue(subject string, now time.Time) (Issued, error) {
	tok, exp, err := s.tokens.Issue(subject, now)
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: tok, ExpiresAt: exp}, nil
}

// Authenticate validates a presented token and returns its subject.
//
// Check order is fixed and deliberate: revocation lookup first, then
// signature/structure, then expiry, then subject. Looking up the
// blacklist before verifying keeps the timing of "issued then revoked"
// indistinguishable from "never issued". Store failures propagate as-is;
// they are an infrastructure error, not a rejection.
func (s *Service) Authenticate(ctx context.Context, tokenString string, now time.Time) (string, error) {
	if tokenString == "" {
		return "", ErrInvalid
	}

	_, err := s.kv.Get(ctx, blacklistPrefix+tokenString)
	switch {
	case err == nil:
		return "", ErrRevoked
	case !errors.Is(err, store.ErrNotFound):
		return "", fmt.Errorf("session: blacklist lookup: %w", err)
	}

	claims, err := s.tokens.Verify(tokenString, now)
	switch {
	case errors.Is(err, token.ErrExpired):
		return "", ErrExpired
	case err != nil:
		return "", ErrInvalid
	}

	if claims.Subject == "" {
		return "", ErrInvalid
	}
	return claims.Subject, nil
}

// Revoke blacklists a token for exactly its remaining lifetime, derived
// from the token's own decoded expiry rather than any caller-supplied
// duration. Revoking an already-expired token is a no-op: it is already
// unusable and an entry would only waste store space. Revoking the same
// token twice writes the same key with the same TTL ceiling, so the call
// is idempotent.
//
// Callers must only pass tokens that already authenticated; the HTTP
// layer enforces that, which prevents blacklisting guessed strings.
func (s *Service) Revoke(ctx context.Context, tokenString string, now time.Time) error {
	claims, err := s.tokens.Verify(tokenString, now)
	if errors.Is(err, token.ErrExpired) {
		return nil
	}
	if err != nil {
		return ErrInvalid
	}

	remaining := claims.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return nil
	}

	if err := s.kv.SetWithTTL(ctx, blacklistPrefix+tokenString, blacklistMarker, remaining); err != nil {
		return fmt.Errorf("session: revoke: %w", err)
	}
	return nil
}
