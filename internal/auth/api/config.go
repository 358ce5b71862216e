package authapi

// Config bounds the auth endpoints' request handling.
type Config struct {
	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64
}

func DefaultConfig() Config {
	return Config{MaxBodyBytes: 64 << 10}
}
