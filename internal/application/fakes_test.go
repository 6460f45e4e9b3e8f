package application

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/arenaverse/arenactl/internal/domain"
	"github.com/arenaverse/arenactl/internal/ports"
)

// In-memory stand-ins for the ports, one fake per interface.

type fakeRepo struct {
	mu       sync.Mutex
	sessions map[domain.SessionID]domain.Session
	order    []domain.SessionID
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{sessions: map[domain.SessionID]domain.Session{}}
}

func (r *fakeRepo) Create(_ context.Context, id domain.SessionID, runID string) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return domain.Session{}, domain.ErrSessionExists
	}
	session := domain.Session{ID: id, RunID: runID, Status: domain.StatusPending, CreatedAt: time.Now()}
	r.sessions[id] = session
	r.order = append(r.order, id)
	return session, nil
}

func (r *fakeRepo) Get(_ context.Context, id domain.SessionID) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (r *fakeRepo) List(_ context.Context) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessions := make([]domain.Session, 0, len(r.sessions))
	for _, id := range r.order {
		sessions = append(sessions, r.sessions[id])
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (r *fakeRepo) update(id domain.SessionID, apply func(*domain.Session) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if err := apply(&session); err != nil {
		return err
	}
	r.sessions[id] = session
	return nil
}

func (r *fakeRepo) MarkActive(_ context.Context, id domain.SessionID) error {
	return r.update(id, func(session *domain.Session) error {
		if session.Status != domain.StatusPending {
			return domain.ErrInvalidTransition
		}
		session.Status = domain.StatusActive
		return nil
	})
}

func (r *fakeRepo) AttachObserver(_ context.Context, id domain.SessionID, pid int) error {
	return r.update(id, func(session *domain.Session) error {
		if session.HasObserver() {
			return domain.ErrObserverAttached
		}
		session.ObserverPID = pid
		return nil
	})
}

func (r *fakeRepo) DetachObserver(_ context.Context, id domain.SessionID) error {
	return r.update(id, func(session *domain.Session) error {
		session.ObserverPID = 0
		return nil
	})
}

func (r *fakeRepo) SetStatus(_ context.Context, id domain.SessionID, status domain.SessionStatus, reason string) error {
	return r.update(id, func(session *domain.Session) error {
		if session.Status == status {
			return nil
		}
		if !session.Status.CanTransition(status) {
			return domain.ErrInvalidTransition
		}
		session.Status = status
		session.StatusReason = reason
		return nil
	})
}

func (r *fakeRepo) TouchPolled(_ context.Context, id domain.SessionID, at time.Time) error {
	return r.update(id, func(session *domain.Session) error {
		session.LastPolledAt = at
		return nil
	})
}

func (r *fakeRepo) Remove(_ context.Context, id domain.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *fakeRepo) RemoveAll(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = map[domain.SessionID]domain.Session{}
	r.order = nil
	return nil
}

type fakeBuffer struct {
	mu      sync.Mutex
	entries map[domain.SessionID][]domain.Observation
	cursors map[domain.SessionID]int64
}

func newFakeBuffer() *fakeBuffer {
	return &fakeBuffer{
		entries: map[domain.SessionID][]domain.Observation{},
		cursors: map[domain.SessionID]int64{},
	}
}

func (b *fakeBuffer) Append(_ context.Context, id domain.SessionID, payload json.RawMessage) (domain.Observation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	observation := domain.Observation{
		Sequence:   int64(len(b.entries[id]) + 1),
		ReceivedAt: time.Now(),
		Payload:    payload,
	}
	b.entries[id] = append(b.entries[id], observation)
	return observation, nil
}

func (b *fakeBuffer) Drain(_ context.Context, id domain.SessionID) ([]domain.Observation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pending := b.pendingLocked(id)
	if len(pending) > 0 {
		b.cursors[id] = pending[len(pending)-1].Sequence
	}
	return pending, nil
}

func (b *fakeBuffer) Peek(_ context.Context, id domain.SessionID) ([]domain.Observation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingLocked(id), nil
}

func (b *fakeBuffer) LastSequence(_ context.Context, id domain.SessionID) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.entries[id])), nil
}

func (b *fakeBuffer) pendingLocked(id domain.SessionID) []domain.Observation {
	var pending []domain.Observation
	for _, observation := range b.entries[id] {
		if observation.Sequence > b.cursors[id] {
			pending = append(pending, observation)
		}
	}
	return pending
}

type fakeClient struct {
	mu          sync.Mutex
	joinResults []fakeJoinResult
	joinCalls   int
	actionAck   json.RawMessage
	actionErr   error
	actions     []domain.Action
}

type fakeJoinResult struct {
	match ports.MatchResult
	err   error
}

func (c *fakeClient) JoinQueue(context.Context, domain.Credentials) (ports.MatchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joinCalls++
	if len(c.joinResults) == 0 {
		return ports.MatchResult{}, nil // pending forever
	}
	result := c.joinResults[0]
	if len(c.joinResults) > 1 {
		c.joinResults = c.joinResults[1:]
	}
	return result.match, result.err
}

func (c *fakeClient) PollObservations(context.Context, domain.SessionID, int64) (ports.PollResult, error) {
	return ports.PollResult{}, nil
}

func (c *fakeClient) SubmitAction(_ context.Context, _ domain.SessionID, action domain.Action) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, action)
	if c.actionErr != nil {
		return nil, c.actionErr
	}
	return c.actionAck, nil
}

type fakeWorkers struct {
	mu        sync.Mutex
	nextPID   int
	spawnErr  error
	spawned   []domain.SessionID
	alivePIDs map[int]bool
	stops     map[domain.SessionID]bool
}

func newFakeWorkers() *fakeWorkers {
	return &fakeWorkers{nextPID: 1000, alivePIDs: map[int]bool{}, stops: map[domain.SessionID]bool{}}
}

func (w *fakeWorkers) Spawn(_ context.Context, id domain.SessionID) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.spawnErr != nil {
		return 0, w.spawnErr
	}
	w.nextPID++
	w.spawned = append(w.spawned, id)
	w.alivePIDs[w.nextPID] = true
	return w.nextPID, nil
}

func (w *fakeWorkers) Alive(pid int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.alivePIDs[pid]
}

func (w *fakeWorkers) RequestStop(id domain.SessionID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stops[id] = true
	return nil
}

func (w *fakeWorkers) StopRequested(id domain.SessionID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stops[id]
}

type fakeCreds struct {
	creds domain.Credentials
	err   error
}

func (c fakeCreds) Load(context.Context) (domain.Credentials, error) {
	if c.err != nil {
		return domain.Credentials{}, c.err
	}
	if c.creds == (domain.Credentials{}) {
		return domain.Credentials{AgentName: "scout", APIKey: "k"}, nil
	}
	return c.creds, nil
}

func started(id domain.SessionID, runID string, init string) fakeJoinResult {
	return fakeJoinResult{match: ports.MatchResult{
		Started:   true,
		SessionID: id,
		RunID:     runID,
		Init:      json.RawMessage(init),
	}}
}

func pending() fakeJoinResult {
	return fakeJoinResult{}
}

func transientFailure() fakeJoinResult {
	return fakeJoinResult{err: fmt.Errorf("join queue: %w", &domain.RemoteFailure{Retryable: true, Message: "connection reset"})}
}
