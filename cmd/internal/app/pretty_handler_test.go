package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestPrettyHandler_PlainLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, false))
	log.With("component", "audit").Info("auth.login.success", "user_id", "u1", "ua", "curl 8.0")
	log.Debug("hidden")

	line := buf.String()
	if strings.Count(line, "\n") != 1 {
		t.Fatalf("expected exactly one line, got %q", line)
	}
	for _, want := range []string{"INFO ", "auth.login.success", "component=audit", "user_id=u1", `ua="curl 8.0"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("no ANSI codes expected without color: %q", line)
	}
}

func TestPrettyHandler_ColorAndGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, true))
	log.WithGroup("http").Warn("http.request", "status", 404, "method", "get")

	line := buf.String()
	if !strings.Contains(line, "http.status="+ansiYellow+"404"+ansiReset) {
		t.Fatalf("grouped status should be prefixed: %q", line)
	}
	if !strings.Contains(line, ansiYellow+"WARN ") {
		t.Fatalf("expected colored level: %q", line)
	}
}

func TestColorizeHelpers(t *testing.T) {
	t.Parallel()

	if got := colorizeStatusCode(503, true); got != ansiRed+"503"+ansiReset {
		t.Fatalf("colorizeStatusCode=%q", got)
	}
	if got := colorizeStatusClass("2xx", true); got != ansiGreen+"2xx"+ansiReset {
		t.Fatalf("colorizeStatusClass=%q", got)
	}
	if got := colorizeStatusClass("weird", true); got != "weird" {
		t.Fatalf("unknown class should pass through, got %q", got)
	}
	if got := colorizeDurationMS(1200, false); got != "1200ms" {
		t.Fatalf("colorizeDurationMS=%q", got)
	}
	if got := quoteIfNeeded("a=b"); got != `"a=b"` {
		t.Fatalf("quoteIfNeeded=%q", got)
	}
}
