package users

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is the signed-in user snapshot kept per session.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Photo     *string   `json:"photo,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DisplayName falls back to the email's local part when no name is given.
func DisplayName(name, email string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	local, _, _ := strings.Cut(NormalizeEmail(email), "@")
	return local
}

// New builds the snapshot for a login. Every login gets a fresh id; an email
// is never proof of who owns an existing subscription.
func New(email, name string, now time.Time) User {
	return User{
		ID:        uuid.New(),
		Name:      DisplayName(name, email),
		Email:     NormalizeEmail(email),
		CreatedAt: now.UTC(),
	}
}
