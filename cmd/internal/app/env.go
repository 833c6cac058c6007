package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// lookupEnv returns the trimmed value of key and whether it is non-empty.
func lookupEnv(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

// envParsed parses key with parse. Unset, unparsable or rejected values yield def.
func envParsed[T any](key string, def T, parse func(string) (T, error), accept func(T) bool) T {
	raw, ok := lookupEnv(key)
	if !ok {
		return def
	}
	v, err := parse(raw)
	if err != nil || (accept != nil && !accept(v)) {
		return def
	}
	return v
}

// EnvString reads a string env var with a default.
func EnvString(key, def string) string {
	if v, ok := lookupEnv(key); ok {
		return v
	}
	return def
}

// EnvBool reads a bool env var with a default.
func EnvBool(key string, def bool) bool {
	return envParsed(key, def, strconv.ParseBool, nil)
}

// EnvInt reads a positive int env var with a default.
func EnvInt(key string, def int) int {
	return envParsed(key, def, strconv.Atoi, func(n int) bool { return n > 0 })
}

// EnvInt32 reads a non-negative int32 env var with a default. Pool sizes use it, where 0 is meaningful.
func EnvInt32(key string, def int32) int32 {
	parse := func(s string) (int32, error) {
		n, err := strconv.ParseInt(s, 10, 32)
		return int32(n), err
	}
	return envParsed(key, def, parse, func(n int32) bool { return n >= 0 })
}

// EnvDuration reads a positive duration env var with a default.
func EnvDuration(key string, def time.Duration) time.Duration {
	return envParsed(key, def, time.ParseDuration, func(d time.Duration) bool { return d > 0 })
}

// EnvCSV reads a comma-separated env var, dropping empty items.
func EnvCSV(key string, def []string) []string {
	raw, ok := lookupEnv(key)
	if !ok {
		return def
	}
	var out []string
	for p := range strings.SplitSeq(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
