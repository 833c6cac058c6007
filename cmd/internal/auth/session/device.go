package session

import (
	"strings"

	"github.com/google/uuid"
)

// CanonicalDeviceID validates a client-generated device id and returns its lowercase
// hyphenated form. The nil UUID is rejected.
func CanonicalDeviceID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > 64 {
		return "", ErrInvalidDevice
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return "", ErrInvalidDevice
	}
	return id.String(), nil
}
