package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// AccessClaims is the identity envelope propagated across HTTP and the websocket gateway.
type AccessClaims struct {
	UserID    string
	Username  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Issuer    string
}

// RefreshClaims carries the session secret a refresh credential is bound to.
type RefreshClaims struct {
	UserID        string
	Username      string
	SessionSecret string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

type claims struct {
	TokenType     string `json:"typ"`
	UserID        string `json:"uid"`
	Username      string `json:"username"`
	SessionSecret string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 access and refresh credentials with separate keys.
type TokenManager struct {
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	clockSkew     time.Duration
	accessSecret  []byte
	refreshSecret []byte
}

// NewTokenManager builds a TokenManager from a validated Config.
func NewTokenManager(cfg Config) (*TokenManager, error) {
	if len(cfg.AccessSecret) < minJWTSecretBytes || len(cfg.RefreshSecret) < minJWTSecretBytes {
		return nil, ErrConfig
	}
	return &TokenManager{
		issuer:        cfg.Issuer,
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
		clockSkew:     cfg.ClockSkew,
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
	}, nil
}

// IssueAccess signs an access credential valid from now for the access TTL.
func (m *TokenManager) IssueAccess(userID, username string, now time.Time) (string, time.Time, error) {
	exp := now.Add(m.accessTTL)
	tok, err := m.sign(m.accessSecret, claims{
		TokenType: tokenTypeAccess,
		UserID:    userID,
		Username:  username,
	}, now, exp)
	return tok, exp, err
}

// IssueRefresh signs a refresh credential bound to sessionSecret.
func (m *TokenManager) IssueRefresh(userID, username, sessionSecret string, now time.Time) (string, time.Time, error) {
	exp := now.Add(m.refreshTTL)
	tok, err := m.sign(m.refreshSecret, claims{
		TokenType:     tokenTypeRefresh,
		UserID:        userID,
		Username:      username,
		SessionSecret: sessionSecret,
	}, now, exp)
	return tok, exp, err
}

func (m *TokenManager) sign(secret []byte, c claims, now, exp time.Time) (string, error) {
	c.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Subject:   c.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
}

// VerifyAccess checks signature, issuer, expiry and type of an access credential.
func (m *TokenManager) VerifyAccess(raw string, now time.Time) (AccessClaims, error) {
	c, err := m.parse(raw, m.accessSecret, tokenTypeAccess, m.clockSkew, now)
	if err != nil {
		return AccessClaims{}, err
	}
	return AccessClaims{
		UserID:    c.UserID,
		Username:  c.Username,
		IssuedAt:  c.IssuedAt.Time.UTC(),
		ExpiresAt: c.ExpiresAt.Time.UTC(),
		Issuer:    c.Issuer,
	}, nil
}

// VerifyRefresh checks a refresh credential and returns its session secret. Expiry is exact:
// the reaper purges rows one refresh TTL after their last rotation.
func (m *TokenManager) VerifyRefresh(raw string, now time.Time) (RefreshClaims, error) {
	c, err := m.parse(raw, m.refreshSecret, tokenTypeRefresh, 0, now)
	if err != nil {
		return RefreshClaims{}, err
	}
	if c.SessionSecret == "" {
		return RefreshClaims{}, ErrInvalidToken
	}
	return RefreshClaims{
		UserID:        c.UserID,
		Username:      c.Username,
		SessionSecret: c.SessionSecret,
		IssuedAt:      c.IssuedAt.Time.UTC(),
		ExpiresAt:     c.ExpiresAt.Time.UTC(),
	}, nil
}

func (m *TokenManager) parse(raw string, secret []byte, tokenType string, leeway time.Duration, now time.Time) (*claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > 4096 {
		return nil, ErrInvalidToken
	}

	c := &claims{}
	tok, err := jwt.ParseWithClaims(raw, c, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if c.TokenType != tokenType || c.UserID == "" || c.IssuedAt == nil {
		return nil, ErrInvalidToken
	}
	return c, nil
}
