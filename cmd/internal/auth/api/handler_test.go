package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"lobby/cmd/identity"
	"lobby/cmd/internal/auth/session"
	"lobby/cmd/internal/metrics"
	"lobby/cmd/internal/storage"
	"lobby/cmd/security/password"
	"lobby/cmd/security/signedcookie"
	"lobby/cmd/security/token"
)

const (
	testDevice       = "5f0c8c4e-1b2a-4c3d-9e8f-0a1b2c3d4e5f"
	testPassword     = "correct horse battery"
	testCookieSecret = "cookie-secret-0123456789abcdef0123456789"
)

type apiEnv struct {
	ts  *httptest.Server
	cfg Config
}

func newAPIEnv(t *testing.T, tweaks ...func(*Config)) *apiEnv {
	t.Helper()

	db, err := storage.OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	users, err := identity.NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("identity.NewSQLiteStore: %v", err)
	}

	scfg := session.DefaultConfig()
	scfg.AccessSecret = "access-secret-0123456789abcdef012345"
	scfg.RefreshSecret = "refresh-secret-0123456789abcdef01234"
	store, err := session.NewSQLiteStore(db, token.NewHasher([]byte("hmac-key-0123456789abcdef0123456789")), scfg.SecretBytes)
	if err != nil {
		t.Fatalf("session.NewSQLiteStore: %v", err)
	}
	tokens, err := session.NewTokenManager(scfg)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}

	pw := password.DefaultConfig()
	pw.Params.MemoryKiB = 8 * 1024
	pw.Params.Iterations = 1
	pw.Params.Parallelism = 1
	svc := session.NewService(scfg, users, identity.NewArgon2idHasher(pw), store, tokens)

	cfg := DefaultConfig()
	cfg.CookieSecret = testCookieSecret
	for _, tweak := range tweaks {
		tweak(&cfg)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := NewHandler(log, cfg, svc, WithMetrics(metrics.New()))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &apiEnv{ts: ts, cfg: cfg}
}

func (e *apiEnv) jarClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New: %v", err)
	}
	c := e.ts.Client()
	c.Jar = jar
	return c
}

func (e *apiEnv) cookie(t *testing.T, c *http.Client, path, name string) string {
	t.Helper()
	u, err := url.Parse(e.ts.URL + path)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	for _, ck := range c.Jar.Cookies(u) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

func doJSON(t *testing.T, c *http.Client, method, url string, body any, hdr http.Header) (int, []byte, http.Header) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	res, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = res.Body.Close() }()
	out, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res.StatusCode, out, res.Header
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var er errorBody
	if err := json.Unmarshal(body, &er); err != nil {
		t.Fatalf("decode error body %q: %v", body, err)
	}
	return er.Error.Code
}

func (e *apiEnv) register(t *testing.T, name string) userResponse {
	t.Helper()
	status, body, _ := doJSON(t, e.ts.Client(), http.MethodPost, e.ts.URL+"/auth/register", registerRequest{
		Username: name,
		Email:    name + "@lobby.test",
		Password: testPassword,
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("register %s: status=%d body=%s", name, status, body)
	}
	var out userEnvelope
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode register: %v", err)
	}
	return out.User
}

func (e *apiEnv) login(t *testing.T, c *http.Client, name string) loginResponse {
	t.Helper()
	status, body, _ := doJSON(t, c, http.MethodPost, e.ts.URL+"/auth/login", loginRequest{
		Username: name,
		Password: testPassword,
		DeviceID: testDevice,
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("login %s: status=%d body=%s", name, status, body)
	}
	var out loginResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return out
}

func TestAuthAPI_RegisterLoginMe(t *testing.T) {
	env := newAPIEnv(t)

	u := env.register(t, "alice")
	if u.ID == "" || u.Username != "alice" || u.CreatedAt.IsZero() {
		t.Fatalf("unexpected registered user: %+v", u)
	}
	if u.Email != "" {
		t.Fatalf("register should return the public profile, got email %q", u.Email)
	}

	status, body, _ := doJSON(t, env.ts.Client(), http.MethodPost, env.ts.URL+"/auth/register", registerRequest{
		Username: "ALICE",
		Email:    "other@lobby.test",
		Password: testPassword,
	}, nil)
	if status != http.StatusBadRequest || errorCode(t, body) != "invalid_request" {
		t.Fatalf("duplicate username: status=%d body=%s", status, body)
	}
	if !strings.Contains(string(body), "username") {
		t.Fatalf("duplicate username should name the field: %s", body)
	}

	status, body, _ = doJSON(t, env.ts.Client(), http.MethodPost, env.ts.URL+"/auth/register", registerRequest{
		Username: "alicia",
		Email:    "Alice@Lobby.test",
		Password: testPassword,
	}, nil)
	if status != http.StatusBadRequest || errorCode(t, body) != "invalid_request" {
		t.Fatalf("duplicate email: status=%d body=%s", status, body)
	}
	if !strings.Contains(string(body), "email") {
		t.Fatalf("duplicate email should name the field: %s", body)
	}

	c := env.jarClient(t)
	lr := env.login(t, c, "alice")
	if lr.User.ID != u.ID || lr.User.Username != "alice" {
		t.Fatalf("unexpected login user: %+v", lr.User)
	}
	if !lr.RefreshExpiresAt.After(lr.AccessExpiresAt) {
		t.Fatalf("refresh expiry %v should follow access expiry %v", lr.RefreshExpiresAt, lr.AccessExpiresAt)
	}

	status, body, _ = doJSON(t, c, http.MethodGet, env.ts.URL+"/auth/me", nil, nil)
	if status != http.StatusOK {
		t.Fatalf("me: status=%d body=%s", status, body)
	}
	var me userEnvelope
	if err := json.Unmarshal(body, &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.User.ID != u.ID || me.User.Email != "alice@lobby.test" || me.User.CreatedAt.IsZero() {
		t.Fatalf("unexpected me: %+v", me.User)
	}
}

func TestAuthAPI_RegisterValidation(t *testing.T) {
	env := newAPIEnv(t)

	cases := []registerRequest{
		{Username: "x", Email: "x@lobby.test", Password: testPassword},
		{Username: "mailless", Email: "nope", Password: testPassword},
		{Username: "weakling", Email: "weak@lobby.test", Password: "password"},
	}
	for _, req := range cases {
		status, body, _ := doJSON(t, env.ts.Client(), http.MethodPost, env.ts.URL+"/auth/register", req, nil)
		if status != http.StatusBadRequest || errorCode(t, body) != "invalid_request" {
			t.Fatalf("register %+v: status=%d body=%s", req, status, body)
		}
	}

	status, body, _ := doJSON(t, env.ts.Client(), http.MethodPost, env.ts.URL+"/auth/register",
		map[string]string{"username": "bob", "nickname": "b"}, nil)
	if status != http.StatusBadRequest || errorCode(t, body) != "invalid_json" {
		t.Fatalf("unknown field: status=%d body=%s", status, body)
	}
}

func TestAuthAPI_BodyTooLarge(t *testing.T) {
	env := newAPIEnv(t, func(c *Config) { c.MaxBodyBytes = 64 })

	status, body, _ := doJSON(t, env.ts.Client(), http.MethodPost, env.ts.URL+"/auth/register", registerRequest{
		Username: "bulky",
		Email:    "bulky@lobby.test",
		Password: strings.Repeat("p", 128),
	}, nil)
	if status != http.StatusRequestEntityTooLarge || errorCode(t, body) != "body_too_large" {
		t.Fatalf("status=%d body=%s", status, body)
	}
}

func TestAuthAPI_LoginCookies(t *testing.T) {
	env := newAPIEnv(t)
	env.register(t, "carol")

	status, body, hdr := doJSON(t, env.ts.Client(), http.MethodPost, env.ts.URL+"/auth/login", loginRequest{
		Email:    "CAROL@lobby.test",
		Password: testPassword,
		DeviceID: testDevice,
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("login: status=%d body=%s", status, body)
	}
	if strings.Contains(string(body), "Token") || strings.Contains(string(body), "token") {
		t.Fatalf("credentials must travel in cookies only: %s", body)
	}

	res := http.Response{Header: hdr}
	byName := map[string]*http.Cookie{}
	for _, c := range res.Cookies() {
		byName[c.Name] = c
	}

	access, refresh := byName["accessToken"], byName["refreshToken"]
	if access == nil || refresh == nil {
		t.Fatalf("expected both cookies, got %v", byName)
	}
	if access.Path != "/" || refresh.Path != "/auth/refresh" {
		t.Fatalf("unexpected cookie paths: access=%q refresh=%q", access.Path, refresh.Path)
	}
	if !access.HttpOnly || !refresh.HttpOnly || access.SameSite != http.SameSiteLaxMode {
		t.Fatalf("cookies must be HttpOnly and SameSite=Lax")
	}
	if access.MaxAge <= 0 || refresh.MaxAge <= access.MaxAge {
		t.Fatalf("unexpected max-age: access=%d refresh=%d", access.MaxAge, refresh.MaxAge)
	}
	if _, ok := signedcookie.Unsign(access.Value, testCookieSecret); !ok {
		t.Fatalf("access cookie is not signed with the cookie secret")
	}
}

func TestAuthAPI_LoginFailuresShareOneCode(t *testing.T) {
	env := newAPIEnv(t)
	env.register(t, "dave")

	attempts := []loginRequest{
		{Username: "nobody", Password: testPassword, DeviceID: testDevice},
		{Username: "dave", Password: "wrong password here", DeviceID: testDevice},
		{Password: testPassword, DeviceID: testDevice},
	}
	for _, req := range attempts {
		status, body, _ := doJSON(t, env.ts.Client(), http.MethodPost, env.ts.URL+"/auth/login", req, nil)
		if status != http.StatusUnauthorized || errorCode(t, body) != "unauthenticated" {
			t.Fatalf("login %+v: status=%d body=%s", req, status, body)
		}
	}

	status, body, _ := doJSON(t, env.ts.Client(), http.MethodPost, env.ts.URL+"/auth/login", loginRequest{
		Username: "dave", Password: testPassword, DeviceID: "not-a-uuid",
	}, nil)
	if status != http.StatusBadRequest || errorCode(t, body) != "invalid_device" {
		t.Fatalf("bad device: status=%d body=%s", status, body)
	}
}

func TestAuthAPI_LoginThrottle(t *testing.T) {
	env := newAPIEnv(t, func(c *Config) { c.LoginIPMax = 2 })
	env.register(t, "erin")

	bad := loginRequest{Username: "erin", Password: "wrong password here", DeviceID: testDevice}
	for i := 0; i < 2; i++ {
		status, _, _ := doJSON(t, env.ts.Client(), http.MethodPost, env.ts.URL+"/auth/login", bad, nil)
		if status != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, status)
		}
	}

	good := loginRequest{Username: "erin", Password: testPassword, DeviceID: testDevice}
	status, body, hdr := doJSON(t, env.ts.Client(), http.MethodPost, env.ts.URL+"/auth/login", good, nil)
	if status != http.StatusTooManyRequests || errorCode(t, body) != "rate_limited" {
		t.Fatalf("expected throttle, got status=%d body=%s", status, body)
	}
	if hdr.Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestAuthAPI_RefreshRotatesAndRejectsReplay(t *testing.T) {
	env := newAPIEnv(t)
	env.register(t, "frank")

	c := env.jarClient(t)
	env.login(t, c, "frank")
	old := env.cookie(t, c, "/auth/refresh", "refreshToken")
	if old == "" {
		t.Fatalf("refresh cookie missing from jar")
	}

	status, body, _ := doJSON(t, c, http.MethodPost, env.ts.URL+"/auth/refresh", deviceRequest{DeviceID: testDevice}, nil)
	if status != http.StatusOK {
		t.Fatalf("refresh: status=%d body=%s", status, body)
	}
	var rr refreshResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		t.Fatalf("decode refresh: %v", err)
	}
	if rr.AccessExpiresAt.IsZero() || rr.RefreshExpiresAt.IsZero() {
		t.Fatalf("missing expiries: %+v", rr)
	}
	if fresh := env.cookie(t, c, "/auth/refresh", "refreshToken"); fresh == "" || fresh == old {
		t.Fatalf("refresh cookie was not rotated")
	}

	replay := http.Header{"Cookie": {"refreshToken=" + old}}
	status, body, _ = doJSON(t, env.ts.Client(), http.MethodPost, env.ts.URL+"/auth/refresh", deviceRequest{DeviceID: testDevice}, replay)
	if status != http.StatusUnauthorized || errorCode(t, body) != "unauthenticated" {
		t.Fatalf("replay: status=%d body=%s", status, body)
	}
}

func TestAuthAPI_RefreshRequiresSignedCookie(t *testing.T) {
	env := newAPIEnv(t)
	env.register(t, "grace")

	c := env.jarClient(t)
	env.login(t, c, "grace")
	signed := env.cookie(t, c, "/auth/refresh", "refreshToken")
	raw, ok := signedcookie.Unsign(signed, testCookieSecret)
	if !ok {
		t.Fatalf("refresh cookie does not verify")
	}

	cases := map[string]http.Header{
		"missing":  nil,
		"unsigned": {"Cookie": {"refreshToken=" + raw}},
		"tampered": {"Cookie": {"refreshToken=" + signedcookie.Sign(raw, "some-other-secret-0123456789abcdef")}},
	}
	for name, hdr := range cases {
		status, body, _ := doJSON(t, env.ts.Client(), http.MethodPost, env.ts.URL+"/auth/refresh", deviceRequest{DeviceID: testDevice}, hdr)
		if status != http.StatusUnauthorized || errorCode(t, body) != "unauthenticated" {
			t.Fatalf("%s: status=%d body=%s", name, status, body)
		}
	}

	status, _, _ := doJSON(t, c, http.MethodPost, env.ts.URL+"/auth/refresh",
		deviceRequest{DeviceID: "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"}, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("other device: expected 401, got %d", status)
	}
}

func TestAuthAPI_LogoutExpiresCookies(t *testing.T) {
	env := newAPIEnv(t)
	env.register(t, "heidi")

	c := env.jarClient(t)
	env.login(t, c, "heidi")
	refresh := env.cookie(t, c, "/auth/refresh", "refreshToken")

	status, body, hdr := doJSON(t, c, http.MethodPost, env.ts.URL+"/auth/logout", deviceRequest{DeviceID: testDevice}, nil)
	if status != http.StatusNoContent {
		t.Fatalf("logout: status=%d body=%s", status, body)
	}

	res := http.Response{Header: hdr}
	expired := map[string]string{}
	for _, ck := range res.Cookies() {
		if ck.MaxAge < 0 {
			expired[ck.Name] = ck.Path
		}
	}
	if expired["accessToken"] != "/" || expired["refreshToken"] != "/auth/refresh" {
		t.Fatalf("expected both cookies expired on their paths, got %v", expired)
	}

	status, _, _ = doJSON(t, env.ts.Client(), http.MethodPost, env.ts.URL+"/auth/refresh",
		deviceRequest{DeviceID: testDevice}, http.Header{"Cookie": {"refreshToken=" + refresh}})
	if status != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: expected 401, got %d", status)
	}
}

func TestAuthAPI_BearerFallback(t *testing.T) {
	env := newAPIEnv(t)
	env.register(t, "ivan")

	c := env.jarClient(t)
	env.login(t, c, "ivan")
	access, ok := signedcookie.Unsign(env.cookie(t, c, "/", "accessToken"), testCookieSecret)
	if !ok {
		t.Fatalf("access cookie does not verify")
	}

	bearer := http.Header{"Authorization": {"Bearer " + access}}
	status, body, _ := doJSON(t, env.ts.Client(), http.MethodGet, env.ts.URL+"/auth/me", nil, bearer)
	if status != http.StatusOK {
		t.Fatalf("me via bearer: status=%d body=%s", status, body)
	}

	status, body, _ = doJSON(t, env.ts.Client(), http.MethodGet, env.ts.URL+"/auth/me", nil,
		http.Header{"Authorization": {"Bearer garbage"}})
	if status != http.StatusUnauthorized || errorCode(t, body) != "unauthenticated" {
		t.Fatalf("garbage bearer: status=%d body=%s", status, body)
	}

	status, _, _ = doJSON(t, env.ts.Client(), http.MethodPost, env.ts.URL+"/auth/logout",
		deviceRequest{DeviceID: "nope"}, bearer)
	if status != http.StatusBadRequest {
		t.Fatalf("logout with bad device: expected 400, got %d", status)
	}
}

func TestAuthAPI_MethodNotAllowed(t *testing.T) {
	env := newAPIEnv(t)

	for _, path := range []string{"/auth/register", "/auth/login", "/auth/refresh", "/auth/logout"} {
		status, _, _ := doJSON(t, env.ts.Client(), http.MethodGet, env.ts.URL+path, nil, nil)
		if status != http.StatusMethodNotAllowed {
			t.Fatalf("GET %s: expected 405, got %d", path, status)
		}
	}
	status, _, _ := doJSON(t, env.ts.Client(), http.MethodPost, env.ts.URL+"/auth/me", nil, nil)
	if status != http.StatusMethodNotAllowed {
		t.Fatalf("POST /auth/me: expected 405, got %d", status)
	}
}
