package ports

import (
	"context"
	"encoding/json"

	"github.com/arenaverse/arenactl/internal/domain"
)

// ObservationBuffer is the per-session mailbox between the observer worker
// (single writer) and observe invocations (single logical consumer). All
// operations fail with domain.ErrSessionNotFound for unknown sessions; an
// empty buffer yields an empty slice, never an error.
type ObservationBuffer interface {
	// Append stores payload under the next sequence number for the session
	// (starting at 1, strictly increasing, no gaps) and returns the stored
	// observation.
	Append(ctx context.Context, id domain.SessionID, payload json.RawMessage) (domain.Observation, error)
	// Drain returns every observation past the last-drained marker in
	// sequence order, then advances the marker past the last one returned.
	Drain(ctx context.Context, id domain.SessionID) ([]domain.Observation, error)
	// Peek returns what Drain would return without advancing the marker.
	Peek(ctx context.Context, id domain.SessionID) ([]domain.Observation, error)
	// LastSequence returns the highest sequence appended so far (0 if none).
	LastSequence(ctx context.Context, id domain.SessionID) (int64, error)
}
