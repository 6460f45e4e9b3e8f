package ports

import (
	"context"

	"github.com/arenaverse/arenactl/internal/domain"
)

// WorkerController manages the detached observer worker process for a
// session: spawning it, probing its liveness from later invocations, and
// signalling cooperative stop through durable state.
type WorkerController interface {
	// Spawn starts the observer worker for the session as a detached
	// process and returns its pid.
	Spawn(ctx context.Context, id domain.SessionID) (int, error)
	// Alive reports whether the process with the given pid still exists.
	Alive(pid int) bool
	// RequestStop durably records a stop request for the session's worker.
	// Idempotent.
	RequestStop(id domain.SessionID) error
	// StopRequested reports whether a stop request is pending. The worker
	// checks it between poll iterations.
	StopRequested(id domain.SessionID) bool
}
