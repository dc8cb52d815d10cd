package ports

import (
	"context"
	"time"

	"github.com/nimbuslabs/identity-system/internal/core/domain"
)

// CredentialStore defines the persistence capability the session core
// requires from the user record store. Implementations translate their I/O
// failures into errors wrapping domain.ErrStoreUnavailable.
type CredentialStore interface {
	// Create persists a new user. Username and email uniqueness violations
	// surface as domain.ErrUserExists.
	Create(ctx context.Context, user *domain.User) (*domain.User, error)

	// FindByIdentifier resolves a user by username or email.
	FindByIdentifier(ctx context.Context, identifier string) (*domain.User, error)

	// FindByID resolves a user by its opaque id.
	FindByID(ctx context.Context, id string) (*domain.User, error)

	// SetRefreshToken unconditionally overwrites the user's stored refresh
	// token, invalidating whatever session was active before.
	SetRefreshToken(ctx context.Context, userID, token string) error

	// RotateRefreshToken atomically replaces the stored refresh token with
	// next, but only if the stored value still equals presented. The
	// compare-and-swap must execute as a single conditional update so that
	// two concurrent rotations with the same presented token cannot both
	// succeed. A mismatch on an existing user fails with
	// domain.ErrTokenReused; a missing user fails with domain.ErrUnknownUser.
	RotateRefreshToken(ctx context.Context, userID, presented, next string) error

	// ClearRefreshToken removes the stored refresh token. Clearing an
	// already-clear or missing session is a no-op success.
	ClearRefreshToken(ctx context.Context, userID string) error

	// UpdatePasswordHash replaces the stored password hash.
	UpdatePasswordHash(ctx context.Context, userID, hash string) error

	// RecordActivity stamps session activity (last login / last seen) on the
	// user record. Best-effort bookkeeping; failures are logged, not fatal.
	RecordActivity(ctx context.Context, userID string, kind domain.SessionEventKind, at time.Time) error
}
