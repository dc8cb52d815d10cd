package ports

import (
	"context"

	"github.com/nimbuslabs/identity-system/internal/core/domain"
)

// ProfileCache is a cache-aside store for public user projections, read by
// the HTTP layer and invalidated whenever credentials change. A cache miss is
// (nil, nil), not an error.
type ProfileCache interface {
	Get(ctx context.Context, userID string) (*domain.PublicUser, error)
	Set(ctx context.Context, user *domain.PublicUser) error
	Invalidate(ctx context.Context, userID string) error
}

// SessionSink accepts session activity events for asynchronous processing.
// Enqueue must not block the request path beyond channel-buffer capacity.
type SessionSink interface {
	Enqueue(event domain.SessionEvent)
}
