package app

import (
	"net/http"

	"ward/internal/agent"
	authapi "ward/internal/auth/api"
	"ward/internal/metrics"
	"ward/internal/realtime"
	"ward/internal/store"
)

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	cfg Config,
	pinger store.Pinger,
	met *metrics.Metrics,
	auth *authapi.Handler,
	agentH *agent.Handler,
	ws *realtime.Gateway,
) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireStore {
			if pinger == nil {
				http.Error(w, "store not configured", http.StatusServiceUnavailable)
				return
			}
			if err := pinger.Ping(r.Context()); err != nil {
				log.Info("readyz.store.not_ready", "err", err)
				http.Error(w, "store not ready", http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("/metrics", met.Handler())

	auth.Register(mux)

	// The agent endpoints sit behind bearer authentication. The
	// WebSocket gateway authenticates during its own handshake.
	agentMux := http.NewServeMux()
	agentH.Register(agentMux)
	mux.Handle("/agents/", auth.RequireAuth(agentMux))

	mux.HandleFunc("/ws/chat", ws.HandleWS)
}
