package domain

import "time"

// TokenPair bundles the two credentials minted for an authenticated session:
// a short-lived access token and a long-lived refresh token. The pair itself
// is never persisted; only the refresh token's current value is mirrored into
// User.CurrentRefreshToken, which is the sole source of truth for validity.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// SessionEventKind labels the session-lifecycle events recorded for activity
// bookkeeping.
type SessionEventKind string

const (
	SessionEventLogin   SessionEventKind = "login"
	SessionEventRefresh SessionEventKind = "refresh"
)

// SessionEvent is an activity record emitted after a successful login or
// refresh and consumed asynchronously by the session queue.
type SessionEvent struct {
	UserID string
	Kind   SessionEventKind
	At     time.Time
}
