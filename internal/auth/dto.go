package auth

import (
	"time"

	"github.com/alphacut/alphacut-backend/internal/entitlements"
	"github.com/alphacut/alphacut-backend/internal/users"
)

// LoginRequest opens a session for the given email.
type LoginRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Name  string `json:"name" validate:"max=120"`
}

// LoginResponse carries the session token and the fresh session state.
type LoginResponse struct {
	AccessToken string              `json:"access_token"`
	ExpiresAt   time.Time           `json:"expires_at"`
	User        users.User          `json:"user"`
	Entitlement entitlements.Record `json:"entitlement"`
}
