package password

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy bounds accepted passwords.
type Policy struct {
	MinLength      int
	MaxLength      int
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns the interactive-login baseline.
func DefaultConfig() Config {
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      8,
			MaxLength:      128,
			RejectVeryWeak: true,
		},
	}
}

type envSetting struct {
	key   string
	apply func(cfg *Config, raw string) error
}

var envSettings = []envSetting{
	{"LOBBY_PASSWORD_MIN_LEN", func(cfg *Config, raw string) (err error) {
		cfg.Policy.MinLength, err = parseIntInRange(raw, 1, 1024)
		return err
	}},
	{"LOBBY_PASSWORD_MAX_LEN", func(cfg *Config, raw string) (err error) {
		cfg.Policy.MaxLength, err = parseIntInRange(raw, 1, 4096)
		return err
	}},
	{"LOBBY_PASSWORD_REJECT_VERY_WEAK", func(cfg *Config, raw string) (err error) {
		cfg.Policy.RejectVeryWeak, err = strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid boolean")
		}
		return nil
	}},
	{"LOBBY_ARGON2_MEMORY_KIB", func(cfg *Config, raw string) (err error) {
		cfg.Params.MemoryKiB, err = parseU32InRange(raw, 8*1024, 1024*1024)
		return err
	}},
	{"LOBBY_ARGON2_ITERATIONS", func(cfg *Config, raw string) (err error) {
		cfg.Params.Iterations, err = parseU32InRange(raw, 1, 20)
		return err
	}},
	{"LOBBY_ARGON2_PARALLELISM", func(cfg *Config, raw string) error {
		u, err := parseU32InRange(raw, 1, math.MaxUint8)
		if err != nil {
			return err
		}
		cfg.Params.Parallelism = uint8(u) // #nosec G115 -- bounded above.
		return nil
	}},
	{"LOBBY_ARGON2_SALT_LEN", func(cfg *Config, raw string) (err error) {
		cfg.Params.SaltLength, err = parseU32InRange(raw, 8, 64)
		return err
	}},
	{"LOBBY_ARGON2_KEY_LEN", func(cfg *Config, raw string) (err error) {
		cfg.Params.KeyLength, err = parseU32InRange(raw, 16, 64)
		return err
	}},
}

// FromEnv loads config from LOBBY_PASSWORD_* and LOBBY_ARGON2_* variables on top of DefaultConfig.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	for _, s := range envSettings {
		raw, ok := os.LookupEnv(s.key)
		if !ok {
			continue
		}
		if err := s.apply(&cfg, raw); err != nil {
			return Config{}, fmt.Errorf("%s: %w", s.key, err)
		}
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

func parseIntInRange(s string, minVal, maxVal int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}
	if n < minVal || n > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return n, nil
}

func parseU32InRange(s string, minVal, maxVal uint32) (uint32, error) {
	u64, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}
	u := uint32(u64)
	if u < minVal || u > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return u, nil
}
