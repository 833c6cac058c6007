package session

import (
	"context"
	"time"
)

// Session mirrors a sessions row.
type Session struct {
	ID string
	// Secret is the plaintext session secret. It is only populated on the value returned by Create.
	Secret       string
	SecretHash   string
	UserID       string
	DeviceID     string
	IssuedFromIP string
	UserAgent    string
	Valid        bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateInput describes a new session row.
type CreateInput struct {
	UserID    string
	DeviceID  string
	IP        string
	UserAgent string
}

// Store abstracts persistence of session rows.
//
// Implementations hash secrets before they touch storage and enforce at most one valid row per
// (user_id, device_id), returning ErrActiveSessionExists when Create would break that.
type Store interface {
	// FindActive returns the valid session for the pair or ErrSessionNotFound.
	FindActive(ctx context.Context, userID, deviceID string) (Session, error)

	// FindByUserAndSecret returns the user's session whose secret matches, valid or not.
	FindByUserAndSecret(ctx context.Context, userID, secret string) (Session, error)

	// Create generates a fresh secret and inserts a valid row.
	Create(ctx context.Context, now time.Time, in CreateInput) (Session, error)

	// Invalidate marks the session holding secret invalid. It reports whether this call
	// performed the valid -> invalid transition; repeated calls return false.
	Invalidate(ctx context.Context, now time.Time, secret string) (bool, error)

	// InvalidateByID is Invalidate keyed by row id.
	InvalidateByID(ctx context.Context, now time.Time, sessionID string) (bool, error)

	// DeleteByUserAndDevice hard-deletes every row of the pair and returns the count.
	DeleteByUserAndDevice(ctx context.Context, userID, deviceID string) (int64, error)

	// PurgeStaleSince deletes rows not updated since cutoff, valid or not.
	PurgeStaleSince(ctx context.Context, cutoff time.Time) (int64, error)
}
