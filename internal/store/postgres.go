package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements KV on a single table with an explicit expires_at
// column. Postgres has no native per-key TTL, so reads filter out expired
// rows and a janitor sweep physically deletes them (see RunJanitor).
type Postgres struct {
	pool *pgxpool.Pool
}

const kvSchema = `
CREATE TABLE IF NOT EXISTS ward_kv (
	key        text PRIMARY KEY,
	value      text NOT NULL,
	expires_at timestamptz
);
CREATE INDEX IF NOT EXISTS ward_kv_expires_at_idx ON ward_kv (expires_at) WHERE expires_at IS NOT NULL;
`

// NewPostgres validates the pool and ensures the kv table exists.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if pool == nil {
		return nil, errors.New("store: nil pg pool")
	}
	if _, err := pool.Exec(ctx, kvSchema); err != nil {
		return nil, fmt.Errorf("store: ensure kv schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := p.pool.QueryRow(ctx,
		`SELECT value FROM ward_kv WHERE key = $1 AND (expires_at IS NULL OR expires_at > now())`,
		key,
	).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: get %q: %w", key, err)
	}
	return v, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO ward_kv (key, value, expires_at) VALUES ($1, $2, NULL)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = NULL`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("store: set %q: %w", key, err)
	}
	return nil
}

// SetIfAbsent succeeds when the key is missing or only present as an
// expired row. The single upsert keeps the check-and-set atomic.
func (p *Postgres) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO ward_kv (key, value, expires_at) VALUES ($1, $2, NULL)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = NULL
		 WHERE ward_kv.expires_at IS NOT NULL AND ward_kv.expires_at <= now()`,
		key, value,
	)
	if err != nil {
		return false, fmt.Errorf("store: setnx %q: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("store: ttl must be positive")
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO ward_kv (key, value, expires_at) VALUES ($1, $2, now() + $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, ttl,
	)
	if err != nil {
		return fmt.Errorf("store: setex %q: %w", key, err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.pool.Ping(pingCtx)
}

// Sweep deletes rows whose TTL has passed and returns the number removed.
func (p *Postgres) Sweep(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM ward_kv WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("store: sweep: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RunJanitor sweeps expired rows every interval until ctx is done.
// Reads already exclude expired rows, so the sweep only reclaims space;
// correctness does not depend on its cadence.
func (p *Postgres) RunJanitor(ctx context.Context, log *slog.Logger, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := p.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error("store.janitor.sweep.fail", "err", err)
				continue
			}
			if n > 0 {
				log.Debug("store.janitor.sweep", "removed", n)
			}
		}
	}
}
