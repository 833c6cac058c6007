package signedcookie

import (
	"net/url"
	"strings"
	"testing"
)

const secret = "test-cookie-secret-0123456789abcdef"

func TestSignUnsign_RoundTrip(t *testing.T) {
	for _, v := range []string{"abc", "eyJhbGciOiJIUzI1NiJ9.eyJ1aWQiOiIxIn0.c2ln", "x"} {
		got, ok := Unsign(Sign(v, secret), secret)
		if !ok || got != v {
			t.Fatalf("%q: got %q ok=%v", v, got, ok)
		}
	}
}

func TestSign_KnownVector(t *testing.T) {
	// fastify/cookie-signature: sign('hello', 'tobiiscool')
	if got, want := Sign("hello", "tobiiscool"), "hello.DGDUkGlIkCzPz+C0B064FNgHdEjox7ch8tOBGslZ5QI"; got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestUnsign_Rejects(t *testing.T) {
	signed := Sign("payload", secret)
	i := strings.LastIndexByte(signed, '.')
	sig := signed[i+1:]

	flipped := []byte(sig)
	if flipped[0] == 'A' {
		flipped[0] = 'B'
	} else {
		flipped[0] = 'A'
	}

	cases := map[string]struct {
		signed, secret string
	}{
		"empty secret":      {signed, ""},
		"empty value":       {"", secret},
		"no dot":            {"payload", secret},
		"empty signature":   {"payload.", secret},
		"wrong secret":      {signed, "another-secret"},
		"tampered payload":  {"payloaD." + sig, secret},
		"tampered sig":      {"payload." + string(flipped), secret},
		"truncated sig":     {"payload." + sig[:len(sig)-1], secret},
		"padded sig":        {"payload." + sig + "=", secret},
		"only a dot":        {".", secret},
		"garbage signature": {"payload.!!!", secret},
	}
	for name, tc := range cases {
		if v, ok := Unsign(tc.signed, tc.secret); ok {
			t.Fatalf("%s: expected rejection, got %q", name, v)
		}
	}
}

func TestUnsign_RejectsEveryBitFlip(t *testing.T) {
	signed := Sign("eyJhbGciOiJIUzI1NiJ9.eyJ1aWQiOiIxIn0.c2ln", secret)
	for i := 0; i < len(signed); i++ {
		for bit := 0; bit < 8; bit++ {
			b := []byte(signed)
			b[i] ^= 1 << bit
			if v, ok := Unsign(string(b), secret); ok {
				t.Fatalf("byte %d bit %d: expected rejection, got %q", i, bit, v)
			}
		}
	}
}

func TestFromHeader(t *testing.T) {
	signed := Sign("tok.en.value", secret)

	header := "theme=dark; accessToken=" + url.QueryEscape(signed) + "; other=1"
	v, ok := FromHeader(header, "accessToken", secret)
	if !ok || v != "tok.en.value" {
		t.Fatalf("got %q ok=%v", v, ok)
	}

	v, ok = FromHeader("accessToken="+signed, "accessToken", secret)
	if !ok || v != "tok.en.value" {
		t.Fatalf("unescaped: got %q ok=%v", v, ok)
	}
}

func TestFromHeader_Missing(t *testing.T) {
	for _, h := range []string{"", "foo=bar", "accessToken=", "accessToken=unsigned", ";;;="} {
		if _, ok := FromHeader(h, "accessToken", secret); ok {
			t.Fatalf("%q: expected failure", h)
		}
	}
}
