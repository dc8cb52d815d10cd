package ports

import (
	"context"

	"github.com/nimbuslabs/identity-system/internal/core/domain"
)

// SessionService orchestrates the credential and token lifecycle. It is the
// sole caller of TokenCodec and CredentialStore.
type SessionService interface {
	Register(ctx context.Context, username, email, password string) (*domain.PublicUser, error)
	Login(ctx context.Context, identifier, password string) (*domain.TokenPair, *domain.PublicUser, error)
	Refresh(ctx context.Context, presented string) (*domain.TokenPair, *domain.PublicUser, error)
	Logout(ctx context.Context, userID string) error
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	Profile(ctx context.Context, userID string) (*domain.PublicUser, error)
}
