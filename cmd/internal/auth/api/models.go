package authapi

import (
	"time"

	"lobby/cmd/identity"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
	DeviceID string `json:"device_id"`
}

type deviceRequest struct {
	DeviceID string `json:"device_id"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

type userEnvelope struct {
	User userResponse `json:"user"`
}

type loginResponse struct {
	User             userResponse `json:"user"`
	AccessExpiresAt  time.Time    `json:"access_expires_at"`
	RefreshExpiresAt time.Time    `json:"refresh_expires_at"`
}

type refreshResponse struct {
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// toUserResponse is the owner's view of an account; it includes the email.
func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

// toProfileResponse is the public view returned to anyone but the owner.
func toProfileResponse(p identity.Profile) userResponse {
	return userResponse{ID: p.ID, Username: p.Username, CreatedAt: p.CreatedAt}
}
