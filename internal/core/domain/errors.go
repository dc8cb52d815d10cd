package domain

import "errors"

// Closed error taxonomy for the session core. Every operation fails with
// exactly one of these sentinels (possibly wrapped); callers map them to
// transport responses with errors.Is.
var (
	// ErrUserNotFound: credential lookup found no matching account.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists: registration collided with an existing username or email.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials: password comparison failed, or input was unusable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrMissingToken: the caller supplied no refresh token at all.
	ErrMissingToken = errors.New("missing token")
	// ErrTokenInvalid: signature or structural verification failed.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired: the token verified but its expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenReused: cryptographically valid refresh token that no longer
	// matches the stored value — superseded by rotation or cleared by logout.
	// Treated as a replay signal, never as a benign retry.
	ErrTokenReused = errors.New("refresh token reused")
	// ErrUnknownUser: a verified token references an account that no longer exists.
	ErrUnknownUser = errors.New("unknown user")
	// ErrStoreUnavailable: the credential store failed at the I/O level. The
	// only failure class a caller may reasonably retry.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)
