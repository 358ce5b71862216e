// Package realtime exposes the agent over a WebSocket connection for
// clients that want a persistent chat session instead of one SSE
// stream per question.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"ward/internal/agent"
	"ward/internal/auth/session"
)

const (
	chatSubprotocol = "ward.chat.v1"

	wsMaxFrameBytes = 32 << 10

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 5 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsHeartbeatInterval = 30 * time.Second
	wsHeartbeatTimeout  = 10 * time.Second
	wsMaxPingFailures   = 3

	// Origin is required by default and only localhost is allowed,
	// secure-by-default for dev.
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// Authenticator validates a bearer token and returns its subject.
// *session.Service is the production implementation.
type Authenticator interface {
	Authenticate(ctx context.Context, token string, now time.Time) (string, error)
}

// Responder streams an answer to a query as agent events.
type Responder interface {
	Respond(ctx context.Context, query string, emit func(agent.Event) error) error
}

// Gateway upgrades authenticated HTTP requests to WebSocket chat
// sessions. Each inbound frame carries one query; the answer streams
// back as message events followed by a done event.
type Gateway struct {
	log   *slog.Logger
	auth  Authenticator
	agent Responder

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks. Accept authorizes
	// same-host origins by default; cross-origin needs OriginPatterns.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
}

// NewGateway constructs a gateway with secure defaults.
func NewGateway(log *slog.Logger, auth Authenticator, responder Responder) *Gateway {
	g := &Gateway{log: log, auth: auth, agent: responder}

	// Dev-only knob for TLS verification. It is not an origin policy.
	g.devInsecure = envBoolWS("WARD_WS_DEV_INSECURE", false)

	g.originRequired = envBoolWS("WARD_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSVWS("WARD_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)
	g.originPatterns = deriveOriginPatterns(g.allowedOrigins)

	g.writeTimeout = envDurationWS("WARD_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.readIdleTimeout = envDurationWS("WARD_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)

	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

type chatRequest struct {
	Query string `json:"query"`
}

// HandleWS authenticates the request, upgrades it, and runs the chat
// loop until the peer closes or the connection idles out.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	subject, ok := g.authenticate(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{chatSubprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != chatSubprotocol {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", chatSubprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(wsMaxFrameBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	g.log.Info("ws.session.start", "subject", subject, "remote", r.RemoteAddr)

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(wsHeartbeatInterval)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, wsHeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "subject", subject, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						_ = conn.Close(websocket.StatusGoingAway, "heartbeat failed")
						cancel()
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		req, err := readChatRequest(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose, readErrConnClosed:
				break readLoop
			case readErrCtxDone:
				_ = conn.Close(websocket.StatusNormalClosure, "idle")
				break readLoop
			case readErrBadJSON:
				g.writeEvent(ctx, conn, agent.Event{Event: "error", Data: "invalid JSON"})
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "subject", subject, "err", err)
				break readLoop
			}
		}

		query := strings.TrimSpace(req.Query)
		if query == "" {
			g.writeEvent(ctx, conn, agent.Event{Event: "error", Data: "empty query"})
			continue readLoop
		}

		err = g.agent.Respond(ctx, query, func(ev agent.Event) error {
			if !g.writeEvent(ctx, conn, ev) {
				return errors.New("write failed")
			}
			return nil
		})
		if err != nil {
			g.log.Error("ws.respond.fail", "subject", subject, "err", err)
			g.writeEvent(ctx, conn, agent.Event{Event: "error", Data: "agent failed"})
			continue readLoop
		}

		g.writeEvent(ctx, conn, agent.Event{Event: "done", Data: ""})
	}

	cancel()
	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// authenticate resolves the bearer token from the Authorization header
// or, for browser clients that cannot set headers on WebSocket
// requests, the token query parameter.
func (g *Gateway) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	tok := bearerToken(r)
	if tok == "" {
		tok = r.URL.Query().Get("token")
	}
	if tok == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}

	subject, err := g.auth.Authenticate(r.Context(), tok, time.Now().UTC())
	if err != nil {
		if errors.Is(err, session.ErrInvalid) || errors.Is(err, session.ErrExpired) || errors.Is(err, session.ErrRevoked) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		} else {
			g.log.Error("ws.auth.store_fail", "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return "", false
	}
	return subject, true
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return ""
	}
	scheme, rest, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(rest)
}

// ---- frame IO ----

func readChatRequest(ctx context.Context, conn *websocket.Conn) (chatRequest, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return chatRequest{}, err
	}
	if mt != websocket.MessageText {
		return chatRequest{}, errors.New("unsupported message type")
	}
	var req chatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return chatRequest{}, err
	}
	return req, nil
}

func (g *Gateway) writeEvent(parent context.Context, conn *websocket.Conn, ev agent.Event) bool {
	ctx, cancel := context.WithTimeout(parent, g.writeTimeout)
	defer cancel()

	b, err := json.Marshal(ev)
	if err != nil {
		return false
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		g.log.Info("ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
		return false
	}
	return true
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	// JSON decode errors come from json.Unmarshal, not conn.Read. The
	// string check is a fallback for propagated error text.
	s := err.Error()
	if strings.Contains(s, "unexpected end of JSON input") || strings.Contains(s, "invalid character") {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}
		if origin == a {
			return nil
		}
		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return errors.New("origin not allowed: " + origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatterns(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host.
	// Only hosts extracted from the allowlist are accepted.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
