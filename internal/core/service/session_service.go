package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nimbuslabs/identity-system/internal/core/domain"
	"github.com/nimbuslabs/identity-system/internal/core/ports"
)

// SessionService implements the credential and token lifecycle: login,
// refresh rotation, logout, and password change. Session state lives entirely
// in the credential store; the service itself holds no per-user state and is
// safe for concurrent use.
type SessionService struct {
	store ports.CredentialStore
	codec ports.TokenCodec
}

func NewSessionService(store ports.CredentialStore, codec ports.TokenCodec) *SessionService {
	return &SessionService{store: store, codec: codec}
}

// Register creates a new account. Uniqueness of username and email is
// enforced by the store.
func (s *SessionService) Register(ctx context.Context, username, email, password string) (*domain.PublicUser, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	created, err := s.store.Create(ctx, &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}
	return created.Public(), nil
}

// Login verifies the password for the account matching identifier (username
// or email) and, on success, mints a fresh token pair and overwrites the
// stored refresh token. The overwrite unconditionally invalidates any
// previously active session for the account.
func (s *SessionService) Login(ctx context.Context, identifier, password string) (*domain.TokenPair, *domain.PublicUser, error) {
	if identifier == "" || password == "" {
		return nil, nil, domain.ErrInvalidCredentials
	}

	user, err := s.store.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, nil, domain.ErrInvalidCredentials
	}

	pair, err := s.issuePair(user.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.store.SetRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		return nil, nil, err
	}
	return pair, user.Public(), nil
}

// Refresh validates a presented refresh token and rotates it. The presented
// token must match the stored one exactly: a cryptographically valid but
// superseded token fails with ErrTokenReused and never yields new tokens.
// The match-and-overwrite runs as a single conditional update in the store,
// so concurrent refreshes with the same token produce exactly one winner.
func (s *SessionService) Refresh(ctx context.Context, presented string) (*domain.TokenPair, *domain.PublicUser, error) {
	if presented == "" {
		return nil, nil, domain.ErrMissingToken
	}

	userID, err := s.codec.VerifyRefreshToken(presented)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, nil, domain.ErrUnknownUser
		}
		return nil, nil, err
	}

	pair, err := s.issuePair(user.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.store.RotateRefreshToken(ctx, user.ID, presented, pair.RefreshToken); err != nil {
		return nil, nil, err
	}
	return pair, user.Public(), nil
}

// Logout clears the stored refresh token. Logging out an already-clear
// session is a no-op success.
func (s *SessionService) Logout(ctx context.Context, userID string) error {
	if userID == "" {
		return domain.ErrUnknownUser
	}
	return s.store.ClearRefreshToken(ctx, userID)
}

// ChangePassword verifies the old password and replaces the stored hash.
// The active session is deliberately left intact: the stored refresh token
// keeps working after a password change.
func (s *SessionService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return domain.ErrInvalidCredentials
	}

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
		return domain.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.store.UpdatePasswordHash(ctx, userID, string(hash))
}

// Profile returns the public projection for userID.
func (s *SessionService) Profile(ctx context.Context, userID string) (*domain.PublicUser, error) {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Public(), nil
}

func (s *SessionService) issuePair(userID string) (*domain.TokenPair, error) {
	access, err := s.codec.IssueAccessToken(userID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.codec.IssueRefreshToken(userID)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
