package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Version = argon2.Version

var b64 = base64.RawStdEncoding

// ErrInvalidHash reports a digest that is not a well-formed argon2id PHC string.
var ErrInvalidHash = errors.New("invalid password hash")

// phc is a decoded $argon2id$v=19$m=..,t=..,p=..$salt$key string.
type phc struct {
	params Argon2idParams
	salt   []byte
	key    []byte
}

func (p phc) String() string {
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		p.params.MemoryKiB,
		p.params.Iterations,
		p.params.Parallelism,
		b64.EncodeToString(p.salt),
		b64.EncodeToString(p.key),
	)
}

func derive(password string, salt []byte, p Argon2idParams, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryKiB, p.Parallelism, keyLen)
}

// Hash validates password against the policy and returns its encoded Argon2id hash.
func (c Config) Hash(password string) (string, error) {
	if err := c.Validate(password); err != nil {
		return "", err
	}

	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	return phc{
		params: c.Params,
		salt:   salt,
		key:    derive(password, salt, c.Params, c.Params.KeyLength),
	}.String(), nil
}

// Verify reports whether password matches encodedHash.
// Malformed or out-of-bounds hashes return ErrInvalidHash.
func (c Config) Verify(encodedHash, password string) (bool, error) {
	h, err := decode(encodedHash)
	if err != nil {
		return false, err
	}
	if !withinBounds(h.params, c.Params) {
		return false, ErrInvalidHash
	}

	got := derive(password, h.salt, h.params, h.params.KeyLength)
	return subtle.ConstantTimeCompare(got, h.key) == 1, nil
}

// BurnVerify spends the same work as a Verify at the configured cost and discards the result.
// Login calls it for unknown accounts so both paths take comparable time.
func (c Config) BurnVerify(password string) {
	salt := make([]byte, c.Params.SaltLength)
	_ = derive(password, salt, c.Params, c.Params.KeyLength)
}

// NeedsRehash reports whether encodedHash was produced with parameters other than the configured ones.
func (c Config) NeedsRehash(encodedHash string) bool {
	h, err := decode(encodedHash)
	if err != nil {
		return true
	}
	p := h.params
	return p.MemoryKiB != c.Params.MemoryKiB ||
		p.Iterations != c.Params.Iterations ||
		p.Parallelism != c.Params.Parallelism ||
		p.KeyLength != c.Params.KeyLength
}

// withinBounds accepts hashes made with older, cheaper settings but refuses
// attacker-sized ones.
func withinBounds(got, limits Argon2idParams) bool {
	switch {
	case got.MemoryKiB > limits.MemoryKiB*2,
		got.Iterations > limits.Iterations*2,
		uint32(got.Parallelism) > uint32(limits.Parallelism)*2,
		got.SaltLength < 8 || got.SaltLength > 64,
		got.KeyLength < 16 || got.KeyLength > 128:
		return false
	}
	return true
}

func decode(encoded string) (phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return phc{}, ErrInvalidHash
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2Version) {
		return phc{}, ErrInvalidHash
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return phc{}, ErrInvalidHash
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return phc{}, ErrInvalidHash
	}

	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return phc{}, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return phc{}, ErrInvalidHash
	}

	return phc{
		params: Argon2idParams{
			MemoryKiB:   mem,
			Iterations:  it,
			Parallelism: uint8(par),       // #nosec G115 -- checked <= 255 above.
			SaltLength:  uint32(len(salt)), // #nosec G115 -- bounded by encoded length.
			KeyLength:   uint32(len(key)),  // #nosec G115 -- bounded by encoded length.
		},
		salt: salt,
		key:  key,
	}, nil
}
