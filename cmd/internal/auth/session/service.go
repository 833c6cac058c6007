package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lobby/cmd/identity"
	"lobby/cmd/internal/keylock"
)

// Service is the credential issuer: registration, login, refresh rotation, logout and access
// verification.
type Service struct {
	cfg    Config
	users  identity.Store
	hasher identity.PasswordHasher
	store  Store
	tokens *TokenManager

	locks keylock.Map
}

// Issued is the result of a login or refresh.
type Issued struct {
	SessionID    string
	UserID       string
	Username     string
	DeviceID     string
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// RegisterInput is a new-account request.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// LoginInput authenticates by username or email. Username wins when both are set.
type LoginInput struct {
	Username  string
	Email     string
	Password  string
	DeviceID  string
	IP        string
	UserAgent string
}

// RefreshInput carries an already cookie-verified refresh credential.
type RefreshInput struct {
	RefreshToken string
	DeviceID     string
	IP           string
	UserAgent    string
}

// NewService wires the issuer.
func NewService(cfg Config, users identity.Store, hasher identity.PasswordHasher, store Store, tokens *TokenManager) *Service {
	return &Service{cfg: cfg, users: users, hasher: hasher, store: store, tokens: tokens}
}

// Config returns the session configuration.
func (s *Service) Config() Config { return s.cfg }

// Register creates an account. It does not open a session.
func (s *Service) Register(ctx context.Context, now time.Time, in RegisterInput) (identity.User, error) {
	const op = "session.Register"

	if err := identity.ValidateUsername(in.Username); err != nil {
		return identity.User{}, err
	}
	if err := identity.ValidateEmail(in.Email); err != nil {
		return identity.User{}, err
	}

	field, err := s.users.FindConflict(ctx, in.Username, in.Email)
	if err != nil {
		return identity.User{}, err
	}
	if field != "" {
		return identity.User{}, identity.ConflictError{Op: op, Field: field}
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return identity.User{}, err
	}

	return s.users.CreateUser(ctx, identity.CreateUserInput{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: digest,
		Now:          now,
	})
}

// Login verifies credentials and rotates the (user, device) session unconditionally.
func (s *Service) Login(ctx context.Context, now time.Time, in LoginInput) (Issued, error) {
	deviceID, err := CanonicalDeviceID(in.DeviceID)
	if err != nil {
		return Issued{}, err
	}
	if in.Password == "" {
		return Issued{}, ErrUnauthenticated
	}

	var ua identity.UserAuth
	switch {
	case strings.TrimSpace(in.Username) != "":
		ua, err = s.users.GetUserAuthByUsername(ctx, in.Username)
	case strings.TrimSpace(in.Email) != "":
		ua, err = s.users.GetUserAuthByEmail(ctx, in.Email)
	default:
		return Issued{}, ErrUnauthenticated
	}
	if identity.IsNotFound(err) {
		s.hasher.Burn(in.Password)
		return Issued{}, ErrUnauthenticated
	}
	if err != nil {
		return Issued{}, err
	}

	ok, err := s.hasher.Verify(in.Password, ua.PasswordHash)
	if err != nil {
		return Issued{}, fmt.Errorf("session: verify password for %s: %w", ua.ID, err)
	}
	if !ok {
		return Issued{}, ErrUnauthenticated
	}

	unlock := s.locks.Lock(deviceKey(ua.ID, deviceID))
	defer unlock()

	in.DeviceID = deviceID
	return s.replaceActive(ctx, now, ua.User, in)
}

// replaceActive invalidates the pair's live session and inserts a new one. A concurrent
// writer in another process can win the insert; the loop retries once against its row.
// Losing both attempts is reported like a lost refresh race.
func (s *Service) replaceActive(ctx context.Context, now time.Time, u identity.User, in LoginInput) (Issued, error) {
	for attempt := 0; attempt < 2; attempt++ {
		prev, err := s.store.FindActive(ctx, u.ID, in.DeviceID)
		switch {
		case err == nil:
			if _, err := s.store.InvalidateByID(ctx, now, prev.ID); err != nil {
				return Issued{}, err
			}
		case errors.Is(err, ErrSessionNotFound):
		default:
			return Issued{}, err
		}

		created, err := s.store.Create(ctx, now, CreateInput{
			UserID:    u.ID,
			DeviceID:  in.DeviceID,
			IP:        in.IP,
			UserAgent: in.UserAgent,
		})
		if errors.Is(err, ErrActiveSessionExists) {
			continue
		}
		if err != nil {
			return Issued{}, err
		}
		return s.issue(created, u.Username, now)
	}
	return Issued{}, ErrUnauthenticated
}

// Refresh exchanges a refresh credential for a new pair. The presented session must be valid,
// bound to the same device, and this call must be the one that invalidates it.
func (s *Service) Refresh(ctx context.Context, now time.Time, in RefreshInput) (Issued, error) {
	deviceID, err := CanonicalDeviceID(in.DeviceID)
	if err != nil {
		return Issued{}, err
	}

	rc, err := s.tokens.VerifyRefresh(in.RefreshToken, now)
	if err != nil {
		return Issued{}, ErrUnauthenticated
	}

	unlock := s.locks.Lock(deviceKey(rc.UserID, deviceID))
	defer unlock()

	sess, err := s.store.FindByUserAndSecret(ctx, rc.UserID, rc.SessionSecret)
	if errors.Is(err, ErrSessionNotFound) {
		return Issued{}, ErrUnauthenticated
	}
	if err != nil {
		return Issued{}, err
	}
	if !sess.Valid || sess.DeviceID != deviceID {
		return Issued{}, ErrUnauthenticated
	}

	flipped, err := s.store.Invalidate(ctx, now, rc.SessionSecret)
	if err != nil {
		return Issued{}, err
	}
	if !flipped {
		return Issued{}, ErrUnauthenticated
	}

	created, err := s.store.Create(ctx, now, CreateInput{
		UserID:    rc.UserID,
		DeviceID:  deviceID,
		IP:        in.IP,
		UserAgent: in.UserAgent,
	})
	if errors.Is(err, ErrActiveSessionExists) {
		return Issued{}, ErrUnauthenticated
	}
	if err != nil {
		return Issued{}, err
	}
	return s.issue(created, rc.Username, now)
}

// Logout hard-deletes every session row of the pair and returns how many were removed.
func (s *Service) Logout(ctx context.Context, userID, deviceID string) (int64, error) {
	deviceID, err := CanonicalDeviceID(deviceID)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(userID) == "" {
		return 0, ErrUnauthenticated
	}

	unlock := s.locks.Lock(deviceKey(userID, deviceID))
	defer unlock()

	return s.store.DeleteByUserAndDevice(ctx, userID, deviceID)
}

// VerifyAccess validates an access credential. Failures are ErrUnauthenticated.
func (s *Service) VerifyAccess(raw string, now time.Time) (AccessClaims, error) {
	c, err := s.tokens.VerifyAccess(raw, now)
	if err != nil {
		return AccessClaims{}, ErrUnauthenticated
	}
	return c, nil
}

// Me returns the caller's account.
func (s *Service) Me(ctx context.Context, userID string) (identity.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

func (s *Service) issue(sess Session, username string, now time.Time) (Issued, error) {
	access, accessExp, err := s.tokens.IssueAccess(sess.UserID, username, now)
	if err != nil {
		return Issued{}, err
	}
	refresh, refreshExp, err := s.tokens.IssueRefresh(sess.UserID, username, sess.Secret, now)
	if err != nil {
		return Issued{}, err
	}
	return Issued{
		SessionID:    sess.ID,
		UserID:       sess.UserID,
		Username:     username,
		DeviceID:     sess.DeviceID,
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: refresh,
		RefreshExp:   refreshExp,
	}, nil
}

func deviceKey(userID, deviceID string) string {
	return userID + "\x00" + deviceID
}
