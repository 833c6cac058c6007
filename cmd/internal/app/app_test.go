package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func setSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("LOBBY_JWT_ACCESS_SECRET", "access-secret-0123456789abcdef012345")
	t.Setenv("LOBBY_JWT_REFRESH_SECRET", "refresh-secret-0123456789abcdef01234")
	t.Setenv("LOBBY_COOKIE_SECRET", "cookie-secret-0123456789abcdef0123456789")
	t.Setenv("LOBBY_TOKEN_HMAC_KEY", "hmac-key-0123456789abcdef0123456789")
}

func newTestApp(t *testing.T) (*App, *httptest.Server) {
	t.Helper()
	setSecrets(t)

	cfg := LoadConfig()
	cfg.DatabaseURL = ""
	cfg.SQLitePath = ":memory:"
	cfg.RequireTokenHMAC = true

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return a, srv
}

func get(t *testing.T, srv *httptest.Server, path string, hdr http.Header) (int, string, http.Header) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	for k, vs := range hdr {
		req.Header[k] = vs
	}
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer func() { _ = res.Body.Close() }()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return res.StatusCode, string(b), res.Header
}

func TestApp_Routes(t *testing.T) {
	_, srv := newTestApp(t)

	status, body, hdr := get(t, srv, "/healthz", nil)
	if status != http.StatusOK || body != "ok\n" {
		t.Fatalf("/healthz: %d %q", status, body)
	}
	if hdr.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing")
	}

	status, body, _ = get(t, srv, "/readyz", nil)
	if status != http.StatusOK || body != "ready\n" {
		t.Fatalf("/readyz: %d %q", status, body)
	}

	status, body, _ = get(t, srv, "/auth/me", nil)
	if status != http.StatusUnauthorized || !strings.Contains(body, `"unauthenticated"`) {
		t.Fatalf("/auth/me: %d %q", status, body)
	}

	status, body, _ = get(t, srv, "/ws", http.Header{"Origin": {"http://localhost"}})
	if status != http.StatusUnauthorized || body != "" {
		t.Fatalf("/ws without credentials: %d %q", status, body)
	}

	status, body, _ = get(t, srv, "/metrics", nil)
	if status != http.StatusOK {
		t.Fatalf("/metrics: %d", status)
	}
	for _, want := range []string{
		`lobby_http_requests_total{class="2xx",route="/healthz"} 1`,
		`lobby_ws_handshakes_total{result="unauthenticated"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("/metrics missing %q:\n%s", want, body)
		}
	}
}

func TestApp_ReaperReportsPasses(t *testing.T) {
	a, srv := newTestApp(t)

	deleted, err := a.Reaper().RunOnce(context.Background(), time.Now())
	if err != nil || deleted != 0 {
		t.Fatalf("RunOnce on empty store: deleted=%d err=%v", deleted, err)
	}

	_, body, _ := get(t, srv, "/metrics", nil)
	if !strings.Contains(body, `lobby_session_reaper_passes_total{result="ok"} 1`) {
		t.Fatalf("reaper pass not recorded:\n%s", body)
	}
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	a, _ := newTestApp(t)
	a.cfg.HTTPAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	t.Setenv("LOBBY_JWT_ACCESS_SECRET", "")
	t.Setenv("LOBBY_JWT_REFRESH_SECRET", "short")
	t.Setenv("LOBBY_COOKIE_SECRET", "")
	t.Setenv("LOBBY_TOKEN_HMAC_KEY", "")

	err := ValidateSecurityConfig(Config{RequireTokenHMAC: true})
	if err == nil {
		t.Fatalf("expected policy violations")
	}
	for _, want := range []string{
		"LOBBY_JWT_ACCESS_SECRET is missing",
		"LOBBY_JWT_REFRESH_SECRET is too short",
		"LOBBY_COOKIE_SECRET is missing",
		"LOBBY_TOKEN_HMAC_KEY is missing",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}

	setSecrets(t)
	if err := ValidateSecurityConfig(Config{RequireTokenHMAC: true}); err != nil {
		t.Fatalf("valid secrets rejected: %v", err)
	}

	t.Setenv("LOBBY_JWT_REFRESH_SECRET", "access-secret-0123456789abcdef012345")
	if err := ValidateSecurityConfig(Config{}); err == nil || !strings.Contains(err.Error(), "must differ") {
		t.Fatalf("expected shared-secret violation, got %v", err)
	}
}

func TestEnvCSV(t *testing.T) {
	t.Setenv("LOBBY_TEST_CSV", " https://a.example , ,https://b.example ")
	got := EnvCSV("LOBBY_TEST_CSV", nil)
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("EnvCSV=%v", got)
	}
	t.Setenv("LOBBY_TEST_CSV", " , ")
	if got := EnvCSV("LOBBY_TEST_CSV", []string{"def"}); len(got) != 1 || got[0] != "def" {
		t.Fatalf("EnvCSV fallback=%v", got)
	}
}

func TestEnvNumericFallbacks(t *testing.T) {
	t.Setenv("LOBBY_TEST_INT32", "0")
	if got := EnvInt32("LOBBY_TEST_INT32", 7); got != 0 {
		t.Fatalf("EnvInt32 zero=%d", got)
	}
	t.Setenv("LOBBY_TEST_INT32", "-1")
	if got := EnvInt32("LOBBY_TEST_INT32", 7); got != 7 {
		t.Fatalf("EnvInt32 negative=%d", got)
	}
	t.Setenv("LOBBY_TEST_INT", "0")
	if got := EnvInt("LOBBY_TEST_INT", 3); got != 3 {
		t.Fatalf("EnvInt zero=%d", got)
	}
	t.Setenv("LOBBY_TEST_DUR", "soon")
	if got := EnvDuration("LOBBY_TEST_DUR", time.Second); got != time.Second {
		t.Fatalf("EnvDuration bad=%v", got)
	}
	t.Setenv("LOBBY_TEST_BOOL", "yes")
	if got := EnvBool("LOBBY_TEST_BOOL", true); !got {
		t.Fatalf("EnvBool unparsable should keep default")
	}
}
