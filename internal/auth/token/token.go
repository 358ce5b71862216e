package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrInvalid covers malformed structure, signature mismatch, wrong
	// algorithm, and missing subject.
	ErrInvalid = errors.New("invalid token")

	// ErrExpired is returned when the signature is fine but "exp" has
	// passed.
	ErrExpired = errors.New("token expired")
)

// Claims is the decoded payload of a verified token.
type Claims struct {
	// Subject is the email the token asserts ownership of.
	Subject string

	ExpiresAt time.Time
	IssuedAt  time.Time
	ID        string
}

type jwtClaims struct {
	jwt.RegisteredClaims
}

// Manager signs and verifies bearer tokens with a single symmetric key.
type Manager struct {
	cfg    Config
	secret []byte
}

// NewManager validates the config once; a missing key is a startup
// failure, not a per-request one.
func NewManager(cfg Config) (*Manager, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("%w: secret key is required", ErrConfig)
	}
	if cfg.Lifetime <= 0 {
		return nil, fmt.Errorf("%w: lifetime must be positive", ErrConfig)
	}
	return &Manager{cfg: cfg, secret: []byte(cfg.SecretKey)}, nil
}

// Lifetime reports the configured token lifetime.
func (m *Manager) Lifetime() time.Duration { return m.cfg.Lifetime }

// Issue signs a token for subject expiring at now + lifetime.
func (m *Manager) Issue(subject string, now time.Time) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("%w: empty subject", ErrInvalid)
	}

	exp := now.Add(m.cfg.Lifetime)
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        ulid.Make().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign: %w", err)
	}
	return signed, exp, nil
}

// Verify checks structure, signature, and expiry against now, and
// returns the decoded claims. The accepted algorithm is pinned to HS256
// so an attacker cannot downgrade via the token header.
func (m *Manager) Verify(tokenString string, now time.Time) (Claims, error) {
	var claims jwtClaims
	_, err := jwt.ParseWithClaims(
		tokenString,
		&claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalid
	}

	if claims.Subject == "" {
		return Claims{}, ErrInvalid
	}

	out := Claims{
		Subject: claims.Subject,
		ID:      claims.ID,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
