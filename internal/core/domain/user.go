package domain

import "time"

// User models an account as persisted in the credential store. The record
// carries at most one live refresh token: CurrentRefreshToken is set by a
// successful login or refresh and cleared only by logout, giving a single
// active session per account.
type User struct {
	ID                  string    `json:"id"`
	Username            string    `json:"username"`
	Email               string    `json:"email"`
	PasswordHash        string    `json:"-"`
	CurrentRefreshToken string    `json:"-"`
	LastLoginAt         time.Time `json:"last_login_at,omitempty"`
	LastSeenAt          time.Time `json:"last_seen_at,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// PublicUser is the projection of a User that may leave the service. It never
// carries the password hash or the refresh token.
type PublicUser struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	LastLoginAt time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Public returns the externally visible projection of the user.
func (u *User) Public() *PublicUser {
	if u == nil {
		return nil
	}
	return &PublicUser{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}
