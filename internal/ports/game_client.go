package ports

import (
	"context"
	"encoding/json"

	"github.com/arenaverse/arenactl/internal/domain"
)

// MatchResult is one matchmaking poll outcome. Started is false while the
// agent is still queued; once true, SessionID and RunID carry the
// server-assigned identifiers and Init the verbatim initial-state payload.
type MatchResult struct {
	Started   bool
	SessionID domain.SessionID
	RunID     string
	Init      json.RawMessage
}

// PollResult is one observation poll outcome. Ended reports the game-end
// signal; Observations carries zero or more opaque payloads in server order.
type PollResult struct {
	Observations []json.RawMessage
	Ended        bool
}

// GameClient is the arena service boundary. Payloads are opaque passthrough;
// failed calls return *domain.RemoteFailure so callers can distinguish
// transient from rejected outcomes.
type GameClient interface {
	// JoinQueue enqueues the agent (idempotently) and reports matchmaking
	// progress. Callers re-poll it until Started or their deadline.
	JoinQueue(ctx context.Context, creds domain.Credentials) (MatchResult, error)
	// PollObservations returns observations after the since sequence hint.
	PollObservations(ctx context.Context, id domain.SessionID, since int64) (PollResult, error)
	// SubmitAction forwards one action and returns the acknowledgement
	// payload verbatim.
	SubmitAction(ctx context.Context, id domain.SessionID, action domain.Action) (json.RawMessage, error)
}
