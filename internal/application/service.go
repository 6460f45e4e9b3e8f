package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arenaverse/arenactl/internal/domain"
	"github.com/arenaverse/arenactl/internal/ports"
)

const defaultMatchPollInterval = 3 * time.Second

// Service coordinates the session lifecycle across the registry, the
// observation buffer, the arena client, and the detached observer worker.
// Every method runs inside a short-lived CLI invocation; nothing here loops
// except the matchmaking wait in Join.
type Service struct {
	repo        ports.SessionRepository
	buffer      ports.ObservationBuffer
	client      ports.GameClient
	workers     ports.WorkerController
	credentials ports.CredentialSource
	clock       ports.Clock

	matchPollInterval time.Duration
}

func NewService(
	repo ports.SessionRepository,
	buffer ports.ObservationBuffer,
	client ports.GameClient,
	workers ports.WorkerController,
	credentials ports.CredentialSource,
	clock ports.Clock,
) *Service {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &Service{
		repo:              repo,
		buffer:            buffer,
		client:            client,
		workers:           workers,
		credentials:       credentials,
		clock:             clock,
		matchPollInterval: defaultMatchPollInterval,
	}
}

// SetMatchPollInterval overrides the matchmaking re-poll interval.
func (s *Service) SetMatchPollInterval(interval time.Duration) {
	if interval > 0 {
		s.matchPollInterval = interval
	}
}

// JoinResult is what a successful join hands back to the agent: the new
// session record and the verbatim initial-state payload from the service.
type JoinResult struct {
	Session      domain.Session  `json:"session"`
	InitialState json.RawMessage `json:"initial_state,omitempty"`
}

// Join blocks until matchmaking confirms a game start or the timeout
// elapses. Each call produces a new independent session; on success the
// observer worker is already spawned and attached.
func (s *Service) Join(ctx context.Context, timeout time.Duration) (JoinResult, error) {
	creds, err := s.credentials.Load(ctx)
	if err != nil {
		return JoinResult{}, err
	}

	match, err := s.waitForMatch(ctx, creds, timeout)
	if err != nil {
		return JoinResult{}, err
	}

	session, err := s.repo.Create(ctx, match.SessionID, match.RunID)
	if err != nil {
		return JoinResult{}, fmt.Errorf("register session: %w", err)
	}

	if err := s.repo.MarkActive(ctx, session.ID); err != nil {
		return JoinResult{}, fmt.Errorf("activate session: %w", err)
	}
	session.Status = domain.StatusActive

	pid, err := s.workers.Spawn(ctx, session.ID)
	if err != nil {
		_ = s.repo.SetStatus(ctx, session.ID, domain.StatusError, "observer spawn failed")
		return JoinResult{}, fmt.Errorf("spawn observer for session %q: %w", session.ID, err)
	}

	if err := s.repo.AttachObserver(ctx, session.ID, pid); err != nil {
		return JoinResult{}, fmt.Errorf("attach observer for session %q: %w", session.ID, err)
	}
	session.ObserverPID = pid

	return JoinResult{Session: session, InitialState: match.Init}, nil
}

func (s *Service) waitForMatch(ctx context.Context, creds domain.Credentials, timeout time.Duration) (ports.MatchResult, error) {
	deadline := s.clock.Now().Add(timeout)
	for {
		match, err := s.client.JoinQueue(ctx, creds)
		if err != nil {
			// Matchmaking-time failures are fatal here; there is no
			// observer loop yet to absorb retries.
			return ports.MatchResult{}, err
		}
		if match.Started {
			return match, nil
		}

		remaining := deadline.Sub(s.clock.Now())
		if remaining <= 0 {
			return ports.MatchResult{}, fmt.Errorf("no game start after %s: %w", timeout, domain.ErrMatchmakingTimeout)
		}

		wait := s.matchPollInterval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return ports.MatchResult{}, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Act validates and forwards one action to the session's game. The
// acknowledgement is returned verbatim; transient failures surface to the
// caller unretried.
func (s *Service) Act(ctx context.Context, id domain.SessionID, action domain.Action) (json.RawMessage, error) {
	if err := action.Validate(); err != nil {
		return nil, err
	}

	session, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.StatusActive {
		return nil, fmt.Errorf("session %q is %s: %w", id, session.Status, domain.ErrSessionNotActive)
	}

	ack, err := s.client.SubmitAction(ctx, id, action)
	if err != nil {
		return nil, err
	}

	return ack, nil
}

// Observe drains the session's buffer, or peeks without consuming.
func (s *Service) Observe(ctx context.Context, id domain.SessionID, peek bool) ([]domain.Observation, error) {
	// Registry first: after cleanup the buffer directory is gone too, but
	// the registry owns the canonical not-found answer.
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}

	if peek {
		return s.buffer.Peek(ctx, id)
	}
	return s.buffer.Drain(ctx, id)
}

// SessionStatus pairs a session record with the observer's actual liveness.
type SessionStatus struct {
	Session       domain.Session `json:"session"`
	ObserverAlive bool           `json:"observer_alive"`
}

func (s *Service) Status(ctx context.Context, id domain.SessionID) (SessionStatus, error) {
	session, err := s.repo.Get(ctx, id)
	if err != nil {
		return SessionStatus{}, err
	}

	return s.statusOf(session), nil
}

func (s *Service) StatusAll(ctx context.Context) ([]SessionStatus, error) {
	sessions, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	statuses := make([]SessionStatus, 0, len(sessions))
	for _, session := range sessions {
		statuses = append(statuses, s.statusOf(session))
	}

	return statuses, nil
}

func (s *Service) statusOf(session domain.Session) SessionStatus {
	return SessionStatus{
		Session:       session,
		ObserverAlive: session.HasObserver() && s.workers.Alive(session.ObserverPID),
	}
}

// Stop requests a cooperative stop of the session's observer. Stopping a
// session already in a terminal status is a silent no-op; if the recorded
// worker is gone, the record transitions directly so a crashed observer
// cannot wedge a session.
func (s *Service) Stop(ctx context.Context, id domain.SessionID) error {
	session, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if session.Status.Terminal() {
		return nil
	}

	if session.HasObserver() && s.workers.Alive(session.ObserverPID) {
		if err := s.workers.RequestStop(id); err != nil {
			return fmt.Errorf("signal observer for session %q: %w", id, err)
		}
		// The worker marks the session stopped at its next loop check.
		return nil
	}

	if err := s.repo.SetStatus(ctx, id, domain.StatusStopped, "observer not running"); err != nil {
		return fmt.Errorf("mark session %q stopped: %w", id, err)
	}
	if err := s.repo.DetachObserver(ctx, id); err != nil {
		return fmt.Errorf("detach observer for session %q: %w", id, err)
	}

	return nil
}

// Cleanup removes every session record and buffer. Live observers are not
// stopped first; callers stop active sessions beforehand.
func (s *Service) Cleanup(ctx context.Context) error {
	if err := s.repo.RemoveAll(ctx); err != nil {
		return fmt.Errorf("remove sessions: %w", err)
	}
	return nil
}
