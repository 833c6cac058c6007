package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"os"
	"strings"
)

const (
	// HMACEnvKey is the env var name for the secret-hashing key.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "LOBBY_TOKEN_HMAC_KEY"

	// MinSecretBytes is 160 bits, the floor for session secret entropy.
	MinSecretBytes = 20
	// MaxSecretBytes is 512 bits.
	MaxSecretBytes = 64
)

var (
	ErrHMACKeyMissing  = errors.New("token HMAC key missing")
	ErrHMACKeyTooShort = errors.New("token HMAC key too short")
	ErrSecretSize      = errors.New("session secret size out of range")
)

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// Hasher turns plaintext session secrets into their storage form.
// The zero value hashes with plain SHA-256.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher keyed with key. An empty key selects SHA-256.
func NewHasher(key []byte) Hasher {
	if len(key) == 0 {
		return Hasher{}
	}
	k := make([]byte, len(key))
	copy(k, key)
	return Hasher{key: k}
}

// HasherFromEnv builds a Hasher from LOBBY_TOKEN_HMAC_KEY.
// When require is true a missing or short key is an error; otherwise a missing key
// falls back to SHA-256 and a present key must still meet minBytes.
func HasherFromEnv(require bool, minBytes int) (Hasher, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		if require {
			return Hasher{}, ErrHMACKeyMissing
		}
		return Hasher{}, nil
	}
	if minBytes > 0 && len(raw) < minBytes {
		return Hasher{}, ErrHMACKeyTooShort
	}
	return NewHasher([]byte(raw)), nil
}

// Keyed reports whether the hasher uses HMAC.
func (h Hasher) Keyed() bool { return len(h.key) > 0 }

// Hash returns the 64-char hex storage digest of secret.
func (h Hasher) Hash(secret string) string {
	if len(h.key) == 0 {
		return HashSHA256Hex(secret)
	}
	return HashHMACSHA256Hex(secret, h.key)
}

// NewSecret returns nBytes of crypto/rand entropy encoded as unpadded URL-safe base64.
func NewSecret(nBytes int) (string, error) {
	if nBytes < MinSecretBytes || nBytes > MaxSecretBytes {
		return "", ErrSecretSize
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
