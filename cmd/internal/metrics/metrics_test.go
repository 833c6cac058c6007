package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("scrape status=%d", rr.Code)
	}
	b, err := io.ReadAll(rr.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(b)
}

func TestMetrics_Exposition(t *testing.T) {
	m := New()

	m.AuthAttempt("login", ResultOK)
	m.AuthAttempt("login", ResultRejected)
	m.ReaperPass(3, nil)
	m.ReaperPass(0, errors.New("boom"))
	m.Handshake("unauthenticated")
	m.ConnOpened()
	m.SetOnlineUsers(1)
	m.PresenceEvent("presence.online", true)
	m.PresenceEvent("presence.online", false)
	m.HTTPRequest("/auth/login", "2xx", 0.01)

	out := scrape(t, m)
	for _, want := range []string{
		`lobby_auth_attempts_total{op="login",result="ok"} 1`,
		`lobby_auth_attempts_total{op="login",result="rejected"} 1`,
		`lobby_session_reaper_deleted_total 3`,
		`lobby_session_reaper_passes_total{result="error"} 1`,
		`lobby_ws_handshakes_total{result="unauthenticated"} 1`,
		`lobby_ws_connections 1`,
		`lobby_presence_online_users 1`,
		`lobby_presence_events_total{type="presence.online"} 1`,
		`lobby_presence_dropped_total 1`,
		`lobby_http_requests_total{class="2xx",route="/auth/login"} 1`,
		`go_goroutines`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in exposition", want)
		}
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.AuthAttempt("login", ResultOK)
	m.ReaperPass(1, nil)
	m.ConnOpened()
	m.ConnClosed()
	m.PresenceEvent("x", true)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from nil metrics, got %d", rr.Code)
	}
}
