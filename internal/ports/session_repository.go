package ports

import (
	"context"
	"time"

	"github.com/arenaverse/arenactl/internal/domain"
)

// SessionRepository is the single source of truth for session existence and
// status. Implementations must serialize mutations to a session's record
// across concurrent CLI invocations and survive process restarts.
type SessionRepository interface {
	// Create registers a new session in pending status and provisions its
	// local storage. Fails with domain.ErrSessionExists if the id is taken.
	Create(ctx context.Context, id domain.SessionID, runID string) (domain.Session, error)
	Get(ctx context.Context, id domain.SessionID) (domain.Session, error)
	// List returns all known sessions, most recent first.
	List(ctx context.Context) ([]domain.Session, error)
	// MarkActive transitions pending → active. Any other current status
	// fails with domain.ErrInvalidTransition.
	MarkActive(ctx context.Context, id domain.SessionID) error
	// AttachObserver records the observer worker pid. A second attach for
	// the same session fails with domain.ErrObserverAttached.
	AttachObserver(ctx context.Context, id domain.SessionID, pid int) error
	// DetachObserver clears the recorded pid. Idempotent.
	DetachObserver(ctx context.Context, id domain.SessionID) error
	// SetStatus moves the session to status, recording an optional reason.
	// Setting the current status again is a no-op success.
	SetStatus(ctx context.Context, id domain.SessionID, status domain.SessionStatus, reason string) error
	// TouchPolled updates the last successful poll timestamp.
	TouchPolled(ctx context.Context, id domain.SessionID, at time.Time) error
	// Remove deletes the session record and its local storage. Removing an
	// unknown session is a no-op success.
	Remove(ctx context.Context, id domain.SessionID) error
	// RemoveAll deletes every session record and all local storage.
	RemoveAll(ctx context.Context) error
}
