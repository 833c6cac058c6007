// Package signedcookie signs and verifies cookie values in the `value.signature` form
// used by web-framework cookie middleware: the signature is HMAC-SHA256(value, secret)
// in standard base64 with padding stripped.
//
// Verification never errors or panics; every failure is reported as ok=false.
package signedcookie

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
)

func mac(value, secret string) string {
	m := hmac.New(sha256.New, []byte(secret))
	_, _ = m.Write([]byte(value))
	return base64.RawStdEncoding.EncodeToString(m.Sum(nil))
}

// Sign returns value with its signature appended.
func Sign(value, secret string) string {
	return value + "." + mac(value, secret)
}

// Unsign verifies a signed value and returns the payload.
// The payload may itself contain dots; the signature is everything after the last one.
func Unsign(signed, secret string) (string, bool) {
	if secret == "" || signed == "" {
		return "", false
	}
	i := strings.LastIndexByte(signed, '.')
	if i < 0 {
		return "", false
	}
	value, sig := signed[:i], signed[i+1:]
	if sig == "" {
		return "", false
	}

	want := mac(value, secret)
	if len(sig) != len(want) {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(sig), []byte(want)) != 1 {
		return "", false
	}
	return value, true
}

// Lookup extracts the raw value of cookie name from a Cookie header.
// Malformed pairs are skipped and percent-encoded values are decoded.
func Lookup(rawHeader, name string) (string, bool) {
	if rawHeader == "" || name == "" {
		return "", false
	}
	req := http.Request{Header: http.Header{"Cookie": {rawHeader}}}
	c, err := req.Cookie(name)
	if err != nil {
		return "", false
	}
	v := c.Value
	if strings.Contains(v, "%") {
		if dec, err := url.PathUnescape(v); err == nil {
			v = dec
		}
	}
	return v, true
}

// FromHeader finds cookie name in rawHeader and verifies its signature.
// It is the handshake-time check: it needs nothing but the header and the secret.
func FromHeader(rawHeader, name, secret string) (string, bool) {
	v, ok := Lookup(rawHeader, name)
	if !ok {
		return "", false
	}
	return Unsign(v, secret)
}
