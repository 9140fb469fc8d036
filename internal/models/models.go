package models

import "time"

type User struct {
	ID        string
	Name      string
	Username  string
	Email     string
	PassHash  string
	Verified  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PublicUser is the client-facing view of a user: everything except
// the password hash.
type PublicUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Username:  u.Username,
		Email:     u.Email,
		Verified:  u.Verified,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type AuthResponse struct {
	Token string     `json:"token"`
	User  PublicUser `json:"user"`
}

// Message is the payload published to the mail queue and consumed by
// cmd/mailer.
type Message struct {
	Email   string `json:"to"`
	Link    string `json:"link"`
	Purpose string `json:"purpose"`
}

const (
	PurposeVerifyEmail     = "verify-email"
	PurposeResetPassword   = "reset-password"
	PurposePasswordChanged = "password-changed"
)
