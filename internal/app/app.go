// Package app wires the ward server runtime: config, logging, the
// credential store, HTTP routes, and the realtime gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ward/internal/agent"
	"ward/internal/agent/weather"
	authapi "ward/internal/auth/api"
	"ward/internal/auth/session"
	"ward/internal/auth/token"
	"ward/internal/identity"
	"ward/internal/metrics"
	"ward/internal/realtime"
	"ward/internal/security/password"
	"ward/internal/store"
)

// ErrNoStore is returned when neither Redis nor Postgres is
// configured. The credential store is a hard dependency; there is no
// silent in-memory fallback in the server binary.
var ErrNoStore = errors.New("app: no store configured, set WARD_REDIS_URL or WARD_DATABASE_URL")

// App is the ward server runtime.
type App struct {
	cfg Config
	log Logger

	kv         store.KV
	closeStore func(context.Context)
	pinger     store.Pinger
	janitor    func(context.Context)

	met   *metrics.Metrics
	auth  *authapi.Handler
	agent *agent.Handler
	ws    *realtime.Gateway
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogPretty)
	}

	kv, closeStore, pinger, janitor, err := newStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*App, error) {
		closeStore(ctx)
		return nil, err
	}

	tokCfg, err := token.LoadConfigFromEnv()
	if err != nil {
		return fail(err)
	}
	tokens, err := token.NewManager(tokCfg)
	if err != nil {
		return fail(err)
	}

	sessions := session.NewService(tokens, kv)
	users := identity.NewStore(kv)
	met := metrics.New()

	authHandler, err := authapi.NewHandler(log, authapi.DefaultConfig(), users, sessions,
		password.Config{Cost: cfg.PasswordCost}, met)
	if err != nil {
		return fail(err)
	}

	model := agent.NewOllamaClient(agent.LoadConfigFromEnv())
	weatherTool := weather.NewClient(log, weather.LoadConfigFromEnv())
	agentSvc := agent.NewService(log, agent.LoadConfigFromEnv(), model, weatherTool)

	return &App{
		cfg:        cfg,
		log:        log,
		kv:         kv,
		closeStore: closeStore,
		pinger:     pinger,
		janitor:    janitor,
		met:        met,
		auth:       authHandler,
		agent:      agent.NewHandler(log, agentSvc),
		ws:         realtime.NewGateway(log, sessions, agentSvc),
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or
// a fatal server error.
func (a *App) Run(ctx context.Context) error {
	if a.janitor != nil {
		go a.janitor(ctx)
	}

	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.pinger, a.met, a.auth, a.agent, a.ws)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log, a.met),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),

		// Zero write timeout keeps SSE and WebSocket streams alive;
		// they carry their own deadlines.
		WriteTimeout: a.cfg.WriteTimeout,
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.closeStore(shutdownCtx)

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStore selects the KV backend. Redis wins when both are
// configured; Postgres additionally gets a janitor that sweeps expired
// rows on StoreSweepInterval.
func newStore(ctx context.Context, cfg Config, log Logger) (store.KV, func(context.Context), store.Pinger, func(context.Context), error) {
	if cfg.RedisURL != "" {
		rdb, err := store.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		log.Info("store.redis.enabled")

		closeStore := func(context.Context) {
			if err := rdb.Close(); err != nil {
				log.Error("store.close.fail", "err", err)
			}
		}
		return rdb, closeStore, rdb, nil, nil
	}

	if cfg.DatabaseURL != "" {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, nil, nil, err
		}

		pg, err := store.NewPostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, nil, nil, err
		}
		log.Info("store.postgres.enabled", "sweep_interval", cfg.StoreSweepInterval.String())

		closeStore := func(context.Context) { pool.Close() }
		janitor := func(ctx context.Context) {
			pg.RunJanitor(ctx, log, cfg.StoreSweepInterval)
		}
		return pg, closeStore, pg, janitor, nil
	}

	return nil, nil, nil, nil, ErrNoStore
}
