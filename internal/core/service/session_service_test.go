package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nimbuslabs/identity-system/internal/core/domain"
)

// memStore is an in-memory CredentialStore. The mutex covers every operation,
// so RotateRefreshToken's compare-and-swap is atomic the same way a single
// conditional mongo update is.
type memStore struct {
	mu     sync.Mutex
	nextID int
	users  map[string]*domain.User
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*domain.User)}
}

func (s *memStore) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == user.Username || u.Email == user.Email {
			return nil, domain.ErrUserExists
		}
	}
	s.nextID++
	copy := *user
	copy.ID = "u" + strconv.Itoa(s.nextID)
	s.users[copy.ID] = &copy
	out := copy
	return &out, nil
}

func (s *memStore) FindByIdentifier(_ context.Context, identifier string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == identifier || u.Email == identifier {
			out := *u
			return &out, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *memStore) FindByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (s *memStore) SetRefreshToken(_ context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.CurrentRefreshToken = token
	return nil
}

func (s *memStore) RotateRefreshToken(_ context.Context, userID, presented, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUnknownUser
	}
	if u.CurrentRefreshToken != presented {
		return domain.ErrTokenReused
	}
	u.CurrentRefreshToken = next
	return nil
}

func (s *memStore) ClearRefreshToken(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.CurrentRefreshToken = ""
	}
	return nil
}

func (s *memStore) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (s *memStore) RecordActivity(_ context.Context, userID string, kind domain.SessionEventKind, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.LastSeenAt = at
	if kind == domain.SessionEventLogin {
		u.LastLoginAt = at
	}
	return nil
}

func (s *memStore) storedToken(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		return u.CurrentRefreshToken
	}
	return ""
}

func (s *memStore) drop(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
}

func testCodec(t *testing.T) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(TokenCodecConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("codec setup: %v", err)
	}
	return codec
}

func setupSession(t *testing.T) (*SessionService, *memStore) {
	t.Helper()
	store := newMemStore()
	return NewSessionService(store, testCodec(t)), store
}

func mustRegister(t *testing.T, svc *SessionService, username, email, password string) *domain.PublicUser {
	t.Helper()
	user, err := svc.Register(context.Background(), username, email, password)
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return user
}

func TestSessionService_Register(t *testing.T) {
	svc, store := setupSession(t)

	user := mustRegister(t, svc, "alice", "alice@example.com", "p@ss1word")
	if user.ID == "" {
		t.Fatalf("expected assigned id")
	}

	stored, err := store.FindByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("stored user missing: %v", err)
	}
	if stored.PasswordHash == "p@ss1word" {
		t.Fatalf("expected password to be hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("p@ss1word")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}

	if _, err := svc.Register(context.Background(), "alice", "other@example.com", "whatever1"); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if _, err := svc.Register(context.Background(), "", "x@example.com", "whatever1"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty username, got %v", err)
	}
}

func TestSessionService_Login(t *testing.T) {
	svc, store := setupSession(t)
	registered := mustRegister(t, svc, "alice", "alice@example.com", "p@ss1word")

	pair, user, err := svc.Login(context.Background(), "alice", "p@ss1word")
	if err != nil {
		t.Fatalf("login by username failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", pair)
	}
	if user.ID != registered.ID {
		t.Fatalf("unexpected user: %+v", user)
	}
	if got := store.storedToken(user.ID); got != pair.RefreshToken {
		t.Fatalf("refresh token not persisted: stored %q", got)
	}

	// Email works as identifier too.
	if _, _, err := svc.Login(context.Background(), "alice@example.com", "p@ss1word"); err != nil {
		t.Fatalf("login by email failed: %v", err)
	}

	if _, _, err := svc.Login(context.Background(), "alice", "wrong-pass"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "nobody", "p@ss1word"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSessionService_Login_SupersedesPriorSession(t *testing.T) {
	svc, store := setupSession(t)
	mustRegister(t, svc, "alice", "alice@example.com", "p@ss1word")

	first, user, err := svc.Login(context.Background(), "alice", "p@ss1word")
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}
	second, _, err := svc.Login(context.Background(), "alice", "p@ss1word")
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}
	if first.RefreshToken == second.RefreshToken {
		t.Fatalf("expected distinct refresh tokens per login")
	}
	if got := store.storedToken(user.ID); got != second.RefreshToken {
		t.Fatalf("expected second login to overwrite stored token")
	}

	// The first session's refresh token is now stale.
	if _, _, err := svc.Refresh(context.Background(), first.RefreshToken); !errors.Is(err, domain.ErrTokenReused) {
		t.Fatalf("expected ErrTokenReused for superseded token, got %v", err)
	}
}

func TestSessionService_Refresh_RotatesToken(t *testing.T) {
	svc, store := setupSession(t)
	mustRegister(t, svc, "alice", "alice@example.com", "p@ss1word")

	loginPair, user, err := svc.Login(context.Background(), "alice", "p@ss1word")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	rotated, refreshedUser, err := svc.Refresh(context.Background(), loginPair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if refreshedUser.ID != user.ID {
		t.Fatalf("refresh returned wrong user: %+v", refreshedUser)
	}
	if rotated.RefreshToken == loginPair.RefreshToken {
		t.Fatalf("expected rotation to mint a new refresh token")
	}
	if got := store.storedToken(user.ID); got != rotated.RefreshToken {
		t.Fatalf("rotation not persisted: stored %q", got)
	}

	// Replaying the superseded token must fail and must not mint tokens.
	if _, _, err := svc.Refresh(context.Background(), loginPair.RefreshToken); !errors.Is(err, domain.ErrTokenReused) {
		t.Fatalf("expected ErrTokenReused, got %v", err)
	}
	if got := store.storedToken(user.ID); got != rotated.RefreshToken {
		t.Fatalf("failed replay must not change stored token")
	}

	// The current token keeps working.
	if _, _, err := svc.Refresh(context.Background(), rotated.RefreshToken); err != nil {
		t.Fatalf("refresh with current token failed: %v", err)
	}
}

func TestSessionService_Refresh_TokenFailures(t *testing.T) {
	svc, store := setupSession(t)
	mustRegister(t, svc, "alice", "alice@example.com", "p@ss1word")

	if _, _, err := svc.Refresh(context.Background(), ""); !errors.Is(err, domain.ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	if _, _, err := svc.Refresh(context.Background(), "not-a-token"); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}

	// An access token is signed with the wrong key class for refresh.
	pair, _, err := svc.Login(context.Background(), "alice", "p@ss1word")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, _, err := svc.Refresh(context.Background(), pair.AccessToken); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for access token, got %v", err)
	}

	// A valid token whose user has been deleted.
	_, user, err := svc.Login(context.Background(), "alice", "p@ss1word")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	freshPair, _, err := svc.Login(context.Background(), "alice", "p@ss1word")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	store.drop(user.ID)
	if _, _, err := svc.Refresh(context.Background(), freshPair.RefreshToken); !errors.Is(err, domain.ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestSessionService_Logout(t *testing.T) {
	svc, store := setupSession(t)
	mustRegister(t, svc, "alice", "alice@example.com", "p@ss1word")

	pair, user, err := svc.Login(context.Background(), "alice", "p@ss1word")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := svc.Logout(context.Background(), user.ID); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if got := store.storedToken(user.ID); got != "" {
		t.Fatalf("expected cleared refresh token, got %q", got)
	}

	// The last-valid refresh token is dead after logout.
	if _, _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, domain.ErrTokenReused) {
		t.Fatalf("expected ErrTokenReused after logout, got %v", err)
	}

	// Logout is idempotent.
	if err := svc.Logout(context.Background(), user.ID); err != nil {
		t.Fatalf("repeated logout failed: %v", err)
	}
}

func TestSessionService_ChangePassword(t *testing.T) {
	svc, _ := setupSession(t)
	mustRegister(t, svc, "alice", "alice@example.com", "p@ss1word")

	_, user, err := svc.Login(context.Background(), "alice", "p@ss1word")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := svc.ChangePassword(context.Background(), user.ID, "wrong-pass", "n3w-secret"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := svc.ChangePassword(context.Background(), user.ID, "p@ss1word", "n3w-secret"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}

	if _, _, err := svc.Login(context.Background(), "alice", "n3w-secret"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "alice", "p@ss1word"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected old password to be rejected, got %v", err)
	}
}

func TestSessionService_ChangePassword_KeepsSession(t *testing.T) {
	svc, _ := setupSession(t)
	mustRegister(t, svc, "alice", "alice@example.com", "p@ss1word")

	pair, user, err := svc.Login(context.Background(), "alice", "p@ss1word")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if err := svc.ChangePassword(context.Background(), user.ID, "p@ss1word", "n3w-secret"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}

	// The stored refresh token survives a password change.
	if _, _, err := svc.Refresh(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("refresh after password change failed: %v", err)
	}
}

func TestSessionService_ConcurrentRefresh_SingleWinner(t *testing.T) {
	svc, _ := setupSession(t)
	mustRegister(t, svc, "alice", "alice@example.com", "p@ss1word")

	pair, _, err := svc.Login(context.Background(), "alice", "p@ss1word")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	const attempts = 2
	results := make(chan error, attempts)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < attempts; i++ {
		go func() {
			start.Wait()
			_, _, err := svc.Refresh(context.Background(), pair.RefreshToken)
			results <- err
		}()
	}
	start.Done()

	var successes, reused int
	for i := 0; i < attempts; i++ {
		switch err := <-results; {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrTokenReused):
			reused++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if successes != 1 || reused != 1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d reuse failures", successes, reused)
	}
}
