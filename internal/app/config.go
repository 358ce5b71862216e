package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogPretty bool

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Store backends. RedisURL takes precedence; DatabaseURL enables
	// the Postgres-backed store. Exactly one must be configured.
	RedisURL    string
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// StoreSweepInterval is how often the Postgres janitor removes
	// expired rows. Redis expires keys natively.
	StoreSweepInterval time.Duration

	// If true, /readyz returns 503 unless the store answers a ping.
	ReadinessRequireStore bool

	PasswordCost int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("WARD_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("WARD_LOG_LEVEL", "info"),
		LogPretty: EnvBool("WARD_LOG_PRETTY", false),

		ReadHeaderTimeout: EnvDuration("WARD_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		// Streaming responses outlive ordinary request timeouts, so
		// WriteTimeout defaults to 0 (unbounded) and SSE/WS rely on
		// their own deadlines.
		ReadTimeout:    EnvDuration("WARD_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   EnvDuration("WARD_HTTP_WRITE_TIMEOUT", 0),
		IdleTimeout:    EnvDuration("WARD_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: EnvInt("WARD_HTTP_MAX_HEADER_BYTES", 1<<20),

		RedisURL:    EnvString("WARD_REDIS_URL", ""),
		DatabaseURL: EnvString("WARD_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("WARD_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("WARD_DB_MIN_CONNS", 0),

		StoreSweepInterval: EnvDuration("WARD_STORE_SWEEP_INTERVAL", time.Minute),

		ReadinessRequireStore: EnvBool("WARD_READINESS_REQUIRE_STORE", false),

		PasswordCost: EnvInt("WARD_PASSWORD_COST", 12),
	}
}
