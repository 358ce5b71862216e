package token

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// ErrConfig is returned for invalid or missing configuration.
var ErrConfig = errors.New("invalid token config")

// Config controls token signing and lifetime.
//
// SecretKey is mandatory: a gateway that silently signs with an empty
// key is worse than one that refuses to start.
type Config struct {
	// SecretKey is the raw HS256 signing secret.
	SecretKey string

	// Issuer is the value of the "iss" claim.
	Issuer string

	// Lifetime bounds every issued token. Callers cannot request a
	// different lifetime per token.
	Lifetime time.Duration
}

// DefaultConfig matches the service defaults: 300-minute tokens.
func DefaultConfig() Config {
	return Config{
		Issuer:   "ward",
		Lifetime: 300 * time.Minute,
	}
}

// LoadConfigFromEnv loads token configuration.
//
// Required:
//   - WARD_AUTH_SECRET_KEY
//
// Optional:
//   - WARD_AUTH_ISSUER
//   - WARD_AUTH_TOKEN_LIFETIME_MINUTES (positive integer, default 300)
//
// Returns ErrConfig when the secret is missing or a value is invalid;
// the caller treats that as fatal at startup.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("WARD_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("WARD_AUTH_TOKEN_LIFETIME_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, ErrConfig
		}
		cfg.Lifetime = time.Duration(n) * time.Minute
	}

	cfg.SecretKey = os.Getenv("WARD_AUTH_SECRET_KEY")
	if cfg.SecretKey == "" {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
