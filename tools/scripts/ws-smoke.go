// Package main provides a CI-friendly smoke test for lobby presence.
//
// It validates:
//   - register + login over the auth API
//   - handshake with the access cookie and subprotocol selection
//   - presence.snapshot on connect
//   - presence.online fanout to an already connected user
//   - presence.sync answered with a fresh snapshot
//   - presence.offline when the last connection closes
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "lobby/shared/contracts/presence/v1"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const maxReadBytes = 1 << 20 // 1MiB

type smokeClient struct {
	name     string
	userID   string
	username string
	cookies  string
	conn     *websocket.Conn

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		apiURL   = flag.String("api", "http://127.0.0.1:8080", "Base URL of the auth API")
		wsURL    = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin   = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		password = flag.String("password", "smoke-password-123", "Password for the generated users")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateAPIURL(*apiURL); err != nil {
		fatalf("invalid -api: %v", err)
	}
	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]

	a := mustLogin(root, "A", *apiURL, "smoke_a_"+suffix, *password, *timeout)
	b := mustLogin(root, "B", *apiURL, "smoke_b_"+suffix, *password, *timeout)

	mustConnect(root, a, *wsURL, *origin, *timeout)
	defer closeWS(a.conn)

	snap := a.mustReadSnapshot(root, *timeout)
	if containsUser(snap, b.userID) {
		fatalf("snapshot (A) lists B before B connected")
	}

	mustConnect(root, b, *wsURL, *origin, *timeout)

	online := a.mustReadUntilType(root, v1.TypeOnline, *timeout, nil)
	mustAssertUser(a, online, b)

	snap = b.mustReadSnapshot(root, *timeout)
	if !containsUser(snap, a.userID) {
		fatalf("snapshot (B) missing A")
	}

	mustSync(root, a, *timeout)
	snap = a.mustReadSnapshot(root, *timeout)
	if !containsUser(snap, b.userID) {
		fatalf("sync snapshot (A) missing B")
	}

	closeWS(b.conn)
	offline := a.mustReadUntilType(root, v1.TypeOffline, *timeout, nil)
	mustAssertUser(a, offline, b)

	if *verbose {
		fmt.Printf("users: A=%s B=%s origin=%q\n", a.userID, b.userID, *origin)
	}
	fmt.Printf("OK: A=%s B=%s\n", a.username, b.username)
}

func validateAPIURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

// mustLogin registers a fresh user, logs it in and keeps the session cookies.
func mustLogin(parent context.Context, name, apiURL, username, password string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	jar, err := cookiejar.New(nil)
	if err != nil {
		fatalf("cookie jar: %v", err)
	}
	hc := &http.Client{Jar: jar, Timeout: stepTimeout}
	base := strings.TrimRight(apiURL, "/")

	status, _ := mustPostJSON(ctx, hc, base+"/auth/register", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": password,
	})
	if status != http.StatusCreated && status != http.StatusConflict {
		fatalf("register %s: status=%d", name, status)
	}

	status, body := mustPostJSON(ctx, hc, base+"/auth/login", map[string]string{
		"username":  username,
		"password":  password,
		"device_id": uuid.NewString(),
	})
	if status != http.StatusOK {
		fatalf("login %s: status=%d body=%s", name, status, body)
	}

	var resp struct {
		User struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"user"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		fatalf("unmarshal login response (%s): %v", name, err)
	}
	if strings.TrimSpace(resp.User.ID) == "" {
		fatalf("login response missing user id (%s)", name)
	}

	u, _ := url.Parse(base + "/")
	parts := make([]string, 0, 2)
	for _, c := range jar.Cookies(u) {
		parts = append(parts, c.Name+"="+c.Value)
	}
	if len(parts) == 0 {
		fatalf("login %s: no session cookies set", name)
	}

	return &smokeClient{
		name:     name,
		userID:   resp.User.ID,
		username: resp.User.Username,
		cookies:  strings.Join(parts, "; "),
		inbox:    make(chan v1.Envelope, 512),
		errCh:    make(chan error, 1),
	}
}

func mustPostJSON(ctx context.Context, hc *http.Client, target string, body any) (int, []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(mustJSON(body)))
	if err != nil {
		fatalf("build request %s: %v", target, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		fatalf("POST %s: %v", target, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if err != nil {
		fatalf("read %s: %v", target, err)
	}
	return resp.StatusCode, b
}

func mustConnect(parent context.Context, c *smokeClient, wsURL, origin string, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	h.Set("Cookie", c.cookies)

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		fatalf("connect %s: %v", c.name, err)
	}

	assertSubprotocol(resp, v1.Subprotocol)

	conn.SetReadLimit(maxReadBytes)
	c.conn = conn
	c.startReadLoop()
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got == "" {
		return
	}
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				c.reportErr(err)
				return
			}
			if mt != websocket.MessageText {
				c.reportErr(fmt.Errorf("unsupported message type: %v", mt))
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.reportErr(fmt.Errorf("bad json: %w", err))
				return
			}
			if err := env.Validate(); err != nil {
				c.reportErr(fmt.Errorf("bad envelope: %w", err))
				return
			}

			select {
			case c.inbox <- env:
			default:
				c.reportErr(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

func (c *smokeClient) reportErr(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

func mustSync(parent context.Context, c *smokeClient, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeSync,
		ID:      fmt.Sprintf("%s-sync", c.name),
		TS:      time.Now().UTC(),
		Payload: mustJSON(v1.SyncPayload{}),
	}
	mustWriteWithTimeout(parent, c.conn, env, stepTimeout)
}

func (c *smokeClient) mustReadSnapshot(parent context.Context, stepTimeout time.Duration) v1.SnapshotPayload {
	// Online events may race with the snapshot of a fresh connection.
	skip := map[string]struct{}{v1.TypeOnline: {}}
	env := c.mustReadUntilType(parent, v1.TypeSnapshot, stepTimeout, skip)

	var p v1.SnapshotPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal snapshot payload (%s): %v", c.name, err)
	}
	for _, u := range p.Users {
		if u.UserID == c.userID {
			fatalf("snapshot (%s) lists the recipient", c.name)
		}
	}
	return p
}

func mustAssertUser(c *smokeClient, env v1.Envelope, want *smokeClient) {
	var p v1.UserPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		fatalf("unmarshal %s payload (%s): %v", env.Type, c.name, err)
	}
	if p.UserID != want.userID {
		fatalf("%s user_id mismatch (%s): got=%q want=%q", env.Type, c.name, p.UserID, want.userID)
	}
	if p.Username != want.username {
		fatalf("%s username mismatch (%s): got=%q want=%q", env.Type, c.name, p.Username, want.username)
	}
}

func containsUser(p v1.SnapshotPayload, userID string) bool {
	for _, u := range p.Users {
		if u.UserID == userID {
			return true
		}
	}
	return false
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration, skipTypes map[string]struct{}) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			if _, ok := skipTypes[env.Type]; ok {
				continue
			}
			fatalf("unexpected envelope type (%s): got=%q want=%q", c.name, env.Type, wantType)
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
