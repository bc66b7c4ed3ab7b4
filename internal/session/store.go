package session

import (
	"context"
	"errors"
	"time"

	"helpdesk/internal/domain"
)

// ErrSessionNotFound is returned by Get for an unknown session id. Callers
// treat it as "start a new conversation", not as a failure.
var ErrSessionNotFound = errors.New("session not found")

// Store owns conversation state records. Implementations must serialize
// writes per session id; operations on distinct sessions may run in parallel.
type Store interface {
	Get(ctx context.Context, sessionID string) (*domain.ConversationState, error)
	CreateOrGet(ctx context.Context, sessionID string) (*domain.ConversationState, error)
	Save(ctx context.Context, state *domain.ConversationState) error
	Reset(ctx context.Context, sessionID string) error

	// ExpireIdle removes sessions idle longer than olderThan and returns
	// how many were removed.
	ExpireIdle(ctx context.Context, olderThan time.Duration) (int, error)
}
