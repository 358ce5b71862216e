// Package authapi wires the register/login/logout endpoints and the
// bearer-token gate every protected route passes through.
package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ward/internal/auth/session"
	"ward/internal/identity"
	"ward/internal/metrics"
	"ward/internal/security/password"
)

// Handler maps HTTP auth requests onto the identity store and session
// service. Credential and token failures become fixed client-facing
// rejections here; store failures are logged in full and surface as a
// generic 500.
type Handler struct {
	log *slog.Logger
	cfg Config

	users    *identity.Store
	sessions *session.Service
	hasher   password.Config
	met      *metrics.Metrics

	dummyHash string
}

func NewHandler(log *slog.Logger, cfg Config, users *identity.Store, sessions *session.Service, hasher password.Config, met *metrics.Metrics) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if users == nil || sessions == nil || met == nil {
		return nil, errors.New("authapi: missing dependencies")
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		met:      met,
	}

	// Dummy hash for timing-resistant login checks: verifying against it
	// when the email is unknown keeps both failure paths doing one bcrypt
	// comparison.
	if hash, err := hasher.Hash("dummy-password-for-timing-only"); err == nil {
		h.dummyHash = hash
	}

	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/logout", h.handleLogout)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	if err := identity.ValidateEmail(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "a valid email is required")
		return
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "a valid password is required")
		return
	}

	ctx := r.Context()
	err = h.users.Create(ctx, identity.User{Email: req.Email, PasswordHash: hash})
	switch {
	case errors.Is(err, identity.ErrAlreadyExists):
		h.met.AuthAttempts.WithLabelValues("register", "conflict").Inc()
		writeError(w, http.StatusBadRequest, "already_registered", msgAlreadyRegistered)
		return
	case err != nil:
		h.log.Error("auth.register.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.met.AuthAttempts.WithLabelValues("register", "success").Inc()
	h.log.Info("auth.register", "email", req.Email)
	writeJSON(w, http.StatusCreated, messageResponse{Message: msgRegistered})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	user, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, identity.ErrNotFound) {
			h.log.Error("auth.login.lookup.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		// Timing resistance: perform a dummy verify when the user is missing.
		if h.dummyHash != "" {
			_, _ = h.hasher.Verify(req.Password, h.dummyHash)
		}
		h.rejectLogin(w, req.Email, "not_found")
		return
	}

	ok, err := h.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil || !ok {
		h.rejectLogin(w, req.Email, "bad_password")
		return
	}

	issued, err := h.sessions.Issue(user.Email, now)
	if err != nil {
		h.log.Error("auth.login.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.met.AuthAttempts.WithLabelValues("login", "success").Inc()
	h.met.TokensIssued.Inc()
	h.log.Info("auth.login", "email", user.Email, "expires_at", issued.ExpiresAt)
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: issued.Token, TokenType: "bearer"})
}

// rejectLogin answers both unknown-email and wrong-password with the
// same status and message so responses carry no enumeration signal. The
// reason is kept server-side only.
func (h *Handler) rejectLogin(w http.ResponseWriter, email, reason string) {
	h.met.AuthAttempts.WithLabelValues("login", "failure").Inc()
	h.log.Info("auth.login.reject", "email", email, "reason", reason)
	writeError(w, http.StatusUnauthorized, "invalid_credentials", msgInvalidCredentials)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()

	// Only a token that currently authenticates can be revoked; this is
	// what stops a client from blacklisting arbitrary guessed strings.
	tok := bearerToken(r)
	subject, ok := h.authenticate(ctx, w, tok, now)
	if !ok {
		return
	}

	if err := h.sessions.Revoke(ctx, tok, now); err != nil {
		if errors.Is(err, session.ErrInvalid) {
			h.unauthorized(w, "invalid")
			return
		}
		h.log.Error("auth.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.met.TokensRevoked.Inc()
	h.log.Info("auth.logout", "email", subject)
	writeJSON(w, http.StatusOK, messageResponse{Message: msgLoggedOut})
}

// ---- bearer gate ----

type contextKey struct{}

var subjectKey contextKey

// Subject returns the authenticated identity stored by RequireAuth.
func Subject(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(subjectKey).(string)
	return s, ok
}

// RequireAuth gates a protected handler behind token authentication and
// exposes the subject via Subject. All rejection causes collapse into the
// same 401 response.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, ok := h.authenticate(r.Context(), w, bearerToken(r), time.Now().UTC())
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey, subject)))
	})
}

func (h *Handler) authenticate(ctx context.Context, w http.ResponseWriter, tok string, now time.Time) (string, bool) {
	if tok == "" {
		h.unauthorized(w, "missing")
		return "", false
	}

	subject, err := h.sessions.Authenticate(ctx, tok, now)
	switch {
	case err == nil:
		return subject, true
	case errors.Is(err, session.ErrRevoked):
		h.unauthorized(w, "revoked")
	case errors.Is(err, session.ErrExpired):
		h.unauthorized(w, "expired")
	case errors.Is(err, session.ErrInvalid):
		h.unauthorized(w, "invalid")
	default:
		// Store failure: do not pretend the token is bad.
		h.log.Error("auth.token.check.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
	return "", false
}

func (h *Handler) unauthorized(w http.ResponseWriter, reason string) {
	h.met.AuthAttempts.WithLabelValues("token", reason).Inc()
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, "unauthorized", msgUnauthorized)
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
