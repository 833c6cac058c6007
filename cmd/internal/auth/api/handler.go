// Package authapi is the HTTP surface of the session service: register, login, refresh,
// logout and me, with credentials carried in signed cookies.
package authapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"lobby/cmd/identity"
	"lobby/cmd/internal/auth/session"
	"lobby/cmd/internal/metrics"
)

// Handler wires HTTP auth endpoints to the session service.
type Handler struct {
	log      *slog.Logger
	audit    *slog.Logger
	cfg      Config
	sessions *session.Service
	metrics  *metrics.Metrics
	throttle *loginThrottle
	now      func() time.Time
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithMetrics records auth attempts on m.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, sessions *session.Service, opts ...HandlerOption) (*Handler, error) {
	if sessions == nil {
		return nil, errors.New("authapi: nil session service")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		log:      log,
		audit:    newAuditLogger(log),
		cfg:      cfg,
		sessions: sessions,
		throttle: newLoginThrottle(cfg.LoginIPMax, cfg.LoginIPWindow),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/register", h.handleRegister)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/auth/me", h.handleMe)
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	u, err := h.sessions.Register(r.Context(), h.now().UTC(), session.RegisterInput{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	})
	if err != nil {
		h.metrics.AuthAttempt("register", resultFor(err))
		h.writeServiceError(w, "auth.register.fail", err)
		return
	}

	h.metrics.AuthAttempt("register", metrics.ResultOK)
	h.auditRegister(u.ID, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))
	writeJSON(w, http.StatusCreated, userEnvelope{User: toProfileResponse(u.Profile())})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	now := h.now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ipKey := ipString(ip)
	ua := strings.TrimSpace(r.UserAgent())
	identifier := loginIdentifier(req)

	if blocked, retryAfter := h.throttle.check(ipKey, now); blocked {
		h.metrics.AuthAttempt("login", metrics.ResultRejected)
		h.auditLoginRateLimited(ip, ua, identifier, retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}

	issued, err := h.sessions.Login(r.Context(), now, session.LoginInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		DeviceID:  req.DeviceID,
		IP:        ipKey,
		UserAgent: ua,
	})
	if err != nil {
		h.metrics.AuthAttempt("login", resultFor(err))
		if errors.Is(err, session.ErrUnauthenticated) {
			h.throttle.recordFailure(ipKey, now)
			h.auditLoginFailed(ip, ua, identifier, "bad_credentials")
		}
		h.writeServiceError(w, "auth.login.fail", err)
		return
	}

	h.throttle.reset(ipKey)
	h.metrics.AuthAttempt("login", metrics.ResultOK)
	h.auditLoginSuccess(issued.UserID, issued.SessionID, issued.DeviceID, ip, ua)

	h.setSessionCookies(w, issued, now)
	writeJSON(w, http.StatusOK, loginResponse{
		User:             userResponse{ID: issued.UserID, Username: issued.Username},
		AccessExpiresAt:  issued.AccessExp,
		RefreshExpiresAt: issued.RefreshExp,
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req deviceRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	now := h.now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	refreshToken, ok := h.signedCookie(r, h.cfg.RefreshCookieName)
	if !ok {
		h.metrics.AuthAttempt("refresh", metrics.ResultRejected)
		h.auditRefreshRejected(req.DeviceID, ip, ua)
		writeUnauthenticated(w)
		return
	}

	issued, err := h.sessions.Refresh(r.Context(), now, session.RefreshInput{
		RefreshToken: refreshToken,
		DeviceID:     req.DeviceID,
		IP:           ipString(ip),
		UserAgent:    ua,
	})
	if err != nil {
		h.metrics.AuthAttempt("refresh", resultFor(err))
		if errors.Is(err, session.ErrUnauthenticated) {
			h.auditRefreshRejected(req.DeviceID, ip, ua)
		}
		h.writeServiceError(w, "auth.refresh.fail", err)
		return
	}

	h.metrics.AuthAttempt("refresh", metrics.ResultOK)
	h.auditRefreshSuccess(issued.UserID, issued.SessionID, issued.DeviceID, ip, ua)

	h.setSessionCookies(w, issued, now)
	writeJSON(w, http.StatusOK, refreshResponse{
		AccessExpiresAt:  issued.AccessExp,
		RefreshExpiresAt: issued.RefreshExp,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req deviceRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	deleted, err := h.sessions.Logout(r.Context(), claims.UserID, req.DeviceID)
	if err != nil {
		h.metrics.AuthAttempt("logout", resultFor(err))
		h.writeServiceError(w, "auth.logout.fail", err)
		return
	}

	h.metrics.AuthAttempt("logout", metrics.ResultOK)
	h.auditLogout(claims.UserID, req.DeviceID, deleted, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))
	h.clearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	u, err := h.sessions.Me(r.Context(), claims.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, userEnvelope{User: toUserResponse(u)})
}

// ---- helpers ----

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (session.AccessClaims, bool) {
	raw, ok := h.accessCredential(r)
	if !ok {
		writeUnauthenticated(w)
		return session.AccessClaims{}, false
	}
	claims, err := h.sessions.VerifyAccess(raw, h.now().UTC())
	if err != nil {
		writeUnauthenticated(w)
		return session.AccessClaims{}, false
	}
	return claims, true
}

// writeServiceError is the single mapping from service errors to HTTP responses.
func (h *Handler) writeServiceError(w http.ResponseWriter, event string, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidDevice):
		writeError(w, http.StatusBadRequest, "invalid_device", "device_id must be a UUID")
	case errors.Is(err, session.ErrUnauthenticated):
		writeUnauthenticated(w)
	case identity.IsConflict(err):
		field, _ := identity.ConflictField(err)
		writeError(w, http.StatusBadRequest, "invalid_request", conflictMessage(field))
	case identity.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, "invalid_request", invalidMessage(err))
	default:
		h.log.Error(event, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func writeUnauthenticated(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "unauthenticated", "unauthenticated")
}

func resultFor(err error) string {
	switch {
	case errors.Is(err, session.ErrUnauthenticated), errors.Is(err, session.ErrInvalidDevice),
		identity.IsConflict(err), identity.IsInvalidInput(err):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}

func conflictMessage(field string) string {
	if field == "" {
		return "account already exists"
	}
	return field + " already taken"
}

func invalidMessage(err error) string {
	var oe identity.OpError
	if errors.As(err, &oe) && oe.Msg != "" {
		return oe.Msg
	}
	return "invalid request"
}

func loginIdentifier(req loginRequest) string {
	if u := strings.TrimSpace(req.Username); u != "" {
		return identity.NormalizeUsername(u)
	}
	return identity.NormalizeEmail(req.Email)
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
