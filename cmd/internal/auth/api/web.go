package authapi

import (
	"net/http"
	"strings"
	"time"

	"lobby/cmd/internal/auth/session"
	"lobby/cmd/security/signedcookie"
)

// setSessionCookies writes the signed access and refresh cookies for issued.
func (h *Handler) setSessionCookies(w http.ResponseWriter, issued session.Issued, now time.Time) {
	h.setCookie(w, h.cfg.AccessCookieName, issued.AccessToken, "/", issued.AccessExp, now)
	h.setCookie(w, h.cfg.RefreshCookieName, issued.RefreshToken, h.cfg.RefreshCookiePath, issued.RefreshExp, now)
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	h.expireCookie(w, h.cfg.AccessCookieName, "/")
	h.expireCookie(w, h.cfg.RefreshCookieName, h.cfg.RefreshCookiePath)
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value, path string, exp, now time.Time) {
	maxAge := int(exp.Sub(now).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    signedcookie.Sign(value, h.cfg.CookieSecret),
		Path:     path,
		Domain:   h.cfg.CookieDomain,
		Expires:  exp,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}

func (h *Handler) expireCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Domain:   h.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}

// signedCookie returns the verified payload of cookie name. A bad signature reads as absent.
func (h *Handler) signedCookie(r *http.Request, name string) (string, bool) {
	raw := strings.Join(r.Header.Values("Cookie"), "; ")
	v, ok := signedcookie.FromHeader(raw, name, h.cfg.CookieSecret)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// accessCredential reads the access token from its cookie, falling back to a Bearer header.
func (h *Handler) accessCredential(r *http.Request) (string, bool) {
	if v, ok := h.signedCookie(r, h.cfg.AccessCookieName); ok {
		return v, true
	}
	if v := bearerToken(r); v != "" {
		return v, true
	}
	return "", false
}

func bearerToken(r *http.Request) string {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return ""
	}
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
