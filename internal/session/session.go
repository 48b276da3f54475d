// Package session stores workflow snapshots between HTTP requests and
// serialises actions on the same session.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"trade-settlement/internal/workflow"
)

// DefaultTTL bounds how long an idle session is kept.
const DefaultTTL = 30 * time.Minute

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Store persists snapshots keyed by session id.
type Store interface {
	Save(ctx context.Context, id string, snap workflow.Snapshot) error
	Load(ctx context.Context, id string) (workflow.Snapshot, error)
	Delete(ctx context.Context, id string) error
	// Lock blocks until the caller holds the session or ctx is done.
	Lock(ctx context.Context, id string) (unlock func(), err error)
	Close() error
}

// NewID mints a session id.
func NewID() string {
	return uuid.NewString()
}
