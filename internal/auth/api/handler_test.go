package authapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"ward/internal/auth/session"
	"ward/internal/auth/token"
	"ward/internal/identity"
	"ward/internal/metrics"
	"ward/internal/security/password"
	"ward/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	kv := store.NewMemory()

	tokCfg := token.DefaultConfig()
	tokCfg.SecretKey = "test-secret-key-not-for-production"
	mgr, err := token.NewManager(tokCfg)
	if err != nil {
		t.Fatalf("token.NewManager: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := NewHandler(
		log,
		DefaultConfig(),
		identity.NewStore(kv),
		session.NewService(mgr, kv),
		password.Config{Cost: 4},
		metrics.New(),
	)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("/protected", h.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, _ := Subject(r.Context())
		_, _ = w.Write([]byte(subject))
	})))

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body any, bearer string) (int, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return resp.StatusCode, b
}

func get(t *testing.T, ts *httptest.Server, path, bearer string) (int, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return resp.StatusCode, b
}

func errorMessage(t *testing.T, body []byte) string {
	t.Helper()
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		t.Fatalf("decode error response %q: %v", body, err)
	}
	return er.Error.Message
}

func TestFullLifecycle(t *testing.T) {
	ts := newTestServer(t)
	creds := registerRequest{Email: "alice@example.com", Password: "Secret123!"}

	// Register.
	status, _ := postJSON(t, ts, "/auth/register", creds, "")
	if status != http.StatusCreated {
		t.Fatalf("register status=%d", status)
	}

	// Login.
	status, body := postJSON(t, ts, "/auth/login", loginRequest(creds), "")
	if status != http.StatusOK {
		t.Fatalf("login status=%d body=%s", status, body)
	}
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		t.Fatalf("decode token response: %v", err)
	}
	if tr.TokenType != "bearer" {
		t.Fatalf("token_type=%q", tr.TokenType)
	}
	if strings.Count(tr.AccessToken, ".") != 2 {
		t.Fatalf("token is not a 3-part compact serialization: %q", tr.AccessToken)
	}

	// The token gates protected routes and carries the subject.
	status, body = get(t, ts, "/protected", tr.AccessToken)
	if status != http.StatusOK || string(body) != "alice@example.com" {
		t.Fatalf("protected status=%d body=%q", status, body)
	}

	// Logout.
	status, _ = postJSON(t, ts, "/auth/logout", nil, tr.AccessToken)
	if status != http.StatusOK {
		t.Fatalf("logout status=%d", status)
	}

	// Second logout with the same token: the token no longer
	// authenticates, so revocation is unreachable.
	status, body = postJSON(t, ts, "/auth/logout", nil, tr.AccessToken)
	if status != http.StatusUnauthorized {
		t.Fatalf("second logout status=%d", status)
	}
	if msg := errorMessage(t, body); msg != "Invalid or expired token" {
		t.Fatalf("second logout message=%q", msg)
	}

	// Any protected call with the revoked token fails the same way.
	status, body = get(t, ts, "/protected", tr.AccessToken)
	if status != http.StatusUnauthorized {
		t.Fatalf("protected after logout status=%d", status)
	}
	if msg := errorMessage(t, body); msg != "Invalid or expired token" {
		t.Fatalf("protected after logout message=%q", msg)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	ts := newTestServer(t)
	creds := registerRequest{Email: "bob@example.com", Password: "Secret123!"}

	if status, _ := postJSON(t, ts, "/auth/register", creds, ""); status != http.StatusCreated {
		t.Fatalf("first register status=%d", status)
	}

	status, body := postJSON(t, ts, "/auth/register", creds, "")
	if status != http.StatusBadRequest {
		t.Fatalf("duplicate register status=%d", status)
	}
	if msg := errorMessage(t, body); msg != "Email already registered" {
		t.Fatalf("duplicate register message=%q", msg)
	}
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	ts := newTestServer(t)
	creds := registerRequest{Email: "race@example.com", Password: "Secret123!"}

	const n = 8
	var wg sync.WaitGroup
	statuses := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			statuses[i], _ = postJSON(t, ts, "/auth/register", creds, "")
		}(i)
	}
	wg.Wait()

	var created, conflicts int
	for _, s := range statuses {
		switch s {
		case http.StatusCreated:
			created++
		case http.StatusBadRequest:
			conflicts++
		default:
			t.Fatalf("unexpected status %d", s)
		}
	}
	if created != 1 || conflicts != n-1 {
		t.Fatalf("created=%d conflicts=%d, want 1/%d", created, conflicts, n-1)
	}
}

func TestLogin_NoEnumerationSignal(t *testing.T) {
	ts := newTestServer(t)
	if status, _ := postJSON(t, ts, "/auth/register", registerRequest{Email: "carol@example.com", Password: "Secret123!"}, ""); status != http.StatusCreated {
		t.Fatal("register failed")
	}

	// Unknown email.
	statusA, bodyA := postJSON(t, ts, "/auth/login", loginRequest{Email: "ghost@example.com", Password: "Secret123!"}, "")
	// Known email, wrong password.
	statusB, bodyB := postJSON(t, ts, "/auth/login", loginRequest{Email: "carol@example.com", Password: "WrongPass1!"}, "")

	if statusA != http.StatusUnauthorized || statusB != http.StatusUnauthorized {
		t.Fatalf("statuses=%d/%d, want 401/401", statusA, statusB)
	}
	msgA, msgB := errorMessage(t, bodyA), errorMessage(t, bodyB)
	if msgA != "Invalid email or password" || msgA != msgB {
		t.Fatalf("messages differ: %q vs %q", msgA, msgB)
	}
}

func TestProtected_GarbageToken(t *testing.T) {
	ts := newTestServer(t)

	for _, tok := range []string{"", "garbage", "aaaa.bbbb.cccc"} {
		status, _ := get(t, ts, "/protected", tok)
		if status != http.StatusUnauthorized {
			t.Fatalf("token %q: status=%d, want 401", tok, status)
		}
	}
}

func TestRegister_InvalidBody(t *testing.T) {
	ts := newTestServer(t)

	status, _ := postJSON(t, ts, "/auth/register", registerRequest{Email: "not-an-email", Password: "Secret123!"}, "")
	if status != http.StatusBadRequest {
		t.Fatalf("bad email status=%d", status)
	}

	status, _ = postJSON(t, ts, "/auth/register", registerRequest{Email: "d@example.com", Password: ""}, "")
	if status != http.StatusBadRequest {
		t.Fatalf("empty password status=%d", status)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/auth/register", "/auth/login", "/auth/logout"} {
		status, _ := get(t, ts, path, "")
		if status != http.StatusMethodNotAllowed {
			t.Fatalf("GET %s status=%d, want 405", path, status)
		}
	}
}
