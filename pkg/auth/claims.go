package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionTokenPayload captures the data available when minting a JWT.
type SessionTokenPayload struct {
	UserID    uuid.UUID
	Email     string
	SessionID string
}

// SessionClaims represents the typed JWT issued to clients. The registered
// jti carries the session id.
type SessionClaims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	jwt.RegisteredClaims
}

// SessionID returns the session identifier stored in the jti claim.
func (c *SessionClaims) SessionID() string {
	if c == nil {
		return ""
	}
	return c.ID
}
