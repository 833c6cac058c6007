package password

import (
	"os"
	"testing"
)

// unsetForTest removes key for the duration of the test and restores it afterwards.
func unsetForTest(t *testing.T, key string) {
	t.Helper()
	prev, had := os.LookupEnv(key)
	_ = os.Unsetenv(key)
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, prev)
		}
	})
}
