package authapi

import (
	"log/slog"
	"net"
	"time"
)

// Audit events go to a child logger tagged component=audit so sinks can route them separately.

func (h *Handler) auditLoginFailed(ip net.IP, ua, identifier, reason string) {
	h.audit.Warn("auth.login.fail",
		"ip", ipString(ip), "ua", ua, "identifier", identifier, "reason", reason)
}

func (h *Handler) auditLoginSuccess(userID, sessionID, deviceID string, ip net.IP, ua string) {
	h.audit.Info("auth.login.success",
		"user_id", userID, "session_id", sessionID, "device_id", deviceID, "ip", ipString(ip), "ua", ua)
}

func (h *Handler) auditLoginRateLimited(ip net.IP, ua, identifier string, retryAfter time.Duration) {
	h.audit.Warn("auth.login.rate_limited",
		"ip", ipString(ip), "ua", ua, "identifier", identifier, "retry_after_s", int64(retryAfter.Seconds()))
}

func (h *Handler) auditRegister(userID string, ip net.IP, ua string) {
	h.audit.Info("auth.register.success", "user_id", userID, "ip", ipString(ip), "ua", ua)
}

func (h *Handler) auditRefreshSuccess(userID, sessionID, deviceID string, ip net.IP, ua string) {
	h.audit.Info("auth.refresh.success",
		"user_id", userID, "session_id", sessionID, "device_id", deviceID, "ip", ipString(ip), "ua", ua)
}

func (h *Handler) auditRefreshRejected(deviceID string, ip net.IP, ua string) {
	h.audit.Warn("auth.refresh.fail", "device_id", deviceID, "ip", ipString(ip), "ua", ua)
}

func (h *Handler) auditLogout(userID, deviceID string, deleted int64, ip net.IP, ua string) {
	h.audit.Info("auth.logout",
		"user_id", userID, "device_id", deviceID, "deleted", deleted, "ip", ipString(ip), "ua", ua)
}

func newAuditLogger(log *slog.Logger) *slog.Logger {
	return log.With("component", "audit")
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}
