package observer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/arenaverse/arenactl/internal/domain"
	"github.com/arenaverse/arenactl/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu       sync.Mutex
	statuses []domain.SessionStatus
	reasons  []string
	detached bool
	polled   []time.Time
}

func (r *fakeRepo) Create(context.Context, domain.SessionID, string) (domain.Session, error) {
	return domain.Session{}, nil
}

func (r *fakeRepo) Get(context.Context, domain.SessionID) (domain.Session, error) {
	return domain.Session{}, nil
}

func (r *fakeRepo) List(context.Context) ([]domain.Session, error) { return nil, nil }

func (r *fakeRepo) MarkActive(context.Context, domain.SessionID) error { return nil }

func (r *fakeRepo) AttachObserver(context.Context, domain.SessionID, int) error { return nil }

func (r *fakeRepo) DetachObserver(context.Context, domain.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detached = true
	return nil
}

func (r *fakeRepo) SetStatus(_ context.Context, _ domain.SessionID, status domain.SessionStatus, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	r.reasons = append(r.reasons, reason)
	return nil
}

func (r *fakeRepo) TouchPolled(_ context.Context, _ domain.SessionID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polled = append(r.polled, at)
	return nil
}

func (r *fakeRepo) Remove(context.Context, domain.SessionID) error { return nil }

func (r *fakeRepo) RemoveAll(context.Context) error { return nil }

func (r *fakeRepo) finalStatus() domain.SessionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return ""
	}
	return r.statuses[len(r.statuses)-1]
}

func (r *fakeRepo) finalReason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.reasons) == 0 {
		return ""
	}
	return r.reasons[len(r.reasons)-1]
}

type fakeBuffer struct {
	mu      sync.Mutex
	entries []domain.Observation
}

func (b *fakeBuffer) Append(_ context.Context, _ domain.SessionID, payload json.RawMessage) (domain.Observation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	observation := domain.Observation{Sequence: int64(len(b.entries) + 1), Payload: payload}
	b.entries = append(b.entries, observation)
	return observation, nil
}

func (b *fakeBuffer) Drain(context.Context, domain.SessionID) ([]domain.Observation, error) {
	return nil, nil
}

func (b *fakeBuffer) Peek(context.Context, domain.SessionID) ([]domain.Observation, error) {
	return nil, nil
}

func (b *fakeBuffer) LastSequence(context.Context, domain.SessionID) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return 0, nil
	}
	return b.entries[len(b.entries)-1].Sequence, nil
}

func (b *fakeBuffer) payloads() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	result := make([]string, 0, len(b.entries))
	for _, entry := range b.entries {
		result = append(result, string(entry.Payload))
	}
	return result
}

type pollStep struct {
	result ports.PollResult
	err    error
}

type fakeGame struct {
	mu    sync.Mutex
	steps []pollStep
	calls int
}

func (g *fakeGame) JoinQueue(context.Context, domain.Credentials) (ports.MatchResult, error) {
	return ports.MatchResult{}, nil
}

func (g *fakeGame) PollObservations(context.Context, domain.SessionID, int64) (ports.PollResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.steps) == 0 {
		return ports.PollResult{}, nil
	}
	step := g.steps[0]
	g.steps = g.steps[1:]
	return step.result, step.err
}

func (g *fakeGame) SubmitAction(context.Context, domain.SessionID, domain.Action) (json.RawMessage, error) {
	return nil, nil
}

func (g *fakeGame) pollCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeControl struct {
	mu   sync.Mutex
	stop bool
}

func (c *fakeControl) Spawn(context.Context, domain.SessionID) (int, error) { return 0, nil }

func (c *fakeControl) Alive(int) bool { return true }

func (c *fakeControl) RequestStop(domain.SessionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stop = true
	return nil
}

func (c *fakeControl) StopRequested(domain.SessionID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop
}

func observations(payloads ...string) ports.PollResult {
	result := ports.PollResult{}
	for _, payload := range payloads {
		result.Observations = append(result.Observations, json.RawMessage(payload))
	}
	return result
}

type workerFixture struct {
	repo    *fakeRepo
	buffer  *fakeBuffer
	game    *fakeGame
	control *fakeControl
	worker  *Worker
}

func newWorkerFixture(t *testing.T, cfg Config) *workerFixture {
	t.Helper()

	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Millisecond
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = time.Millisecond
	}

	f := &workerFixture{
		repo:    &fakeRepo{},
		buffer:  &fakeBuffer{},
		game:    &fakeGame{},
		control: &fakeControl{},
	}
	f.worker = New(f.repo, f.buffer, f.game, f.control, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
	return f
}

func TestWorkerEndsOnGameOverSignal(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, Config{})
	f.game.steps = []pollStep{
		{result: observations(`"A"`, `"B"`)},
		{result: observations(`"C"`)},
		{result: ports.PollResult{Ended: true}},
	}

	err := f.worker.Run(context.Background(), "s1")
	require.NoError(t, err)

	payloads := f.buffer.payloads()
	require.Len(t, payloads, 4)
	assert.Equal(t, `"A"`, payloads[0])
	assert.Equal(t, `"C"`, payloads[2])
	assert.Contains(t, payloads[3], domain.TerminalMarkerEvent)
	assert.Contains(t, payloads[3], "game_over")

	assert.Equal(t, domain.StatusEnded, f.repo.finalStatus())
	assert.True(t, f.repo.detached)
}

func TestWorkerEndsWhenFinalPollCarriesObservations(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, Config{})
	result := observations(`{"event":"gameover","score":12}`)
	result.Ended = true
	f.game.steps = []pollStep{{result: result}}

	err := f.worker.Run(context.Background(), "s1")
	require.NoError(t, err)

	payloads := f.buffer.payloads()
	require.Len(t, payloads, 2)
	assert.Contains(t, payloads[0], "gameover")
	assert.Contains(t, payloads[1], domain.TerminalMarkerEvent)
	assert.Equal(t, domain.StatusEnded, f.repo.finalStatus())
}

func TestWorkerHonorsStopFlagBetweenPolls(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, Config{})
	f.game.steps = []pollStep{{result: observations(`"A"`)}}
	require.NoError(t, f.control.RequestStop("s1"))

	err := f.worker.Run(context.Background(), "s1")
	require.NoError(t, err)

	// The in-flight first poll completed; the stop was honored at the next
	// loop check.
	assert.Equal(t, []string{`"A"`}, f.buffer.payloads())
	assert.Equal(t, domain.StatusStopped, f.repo.finalStatus())
	assert.Equal(t, 1, f.game.pollCalls())
}

func TestWorkerFirstPollFailureIsFatal(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, Config{})
	f.game.steps = []pollStep{
		{err: &domain.RemoteFailure{Retryable: true, Message: "connection refused"}},
	}

	err := f.worker.Run(context.Background(), "s1")
	require.Error(t, err)

	assert.Equal(t, domain.StatusError, f.repo.finalStatus())
	assert.Contains(t, f.repo.finalReason(), "initial poll")
	assert.Equal(t, 1, f.game.pollCalls())
}

func TestWorkerRetriesTransientFailuresThenGivesUp(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, Config{MaxPollFailures: 3})
	f.game.steps = []pollStep{
		{result: observations(`"A"`)},
		{err: &domain.RemoteFailure{Retryable: true, Message: "timeout"}},
		{err: &domain.RemoteFailure{Retryable: true, Message: "timeout"}},
		{err: &domain.RemoteFailure{Retryable: true, Message: "timeout"}},
	}

	err := f.worker.Run(context.Background(), "s1")
	require.Error(t, err)

	assert.Equal(t, domain.StatusError, f.repo.finalStatus())
	assert.Contains(t, f.repo.finalReason(), "giving up")
	assert.Equal(t, 4, f.game.pollCalls())
}

func TestWorkerRejectedPollIsImmediatelyFatal(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, Config{MaxPollFailures: 5})
	f.game.steps = []pollStep{
		{result: observations(`"A"`)},
		{err: &domain.RemoteFailure{Retryable: false, StatusCode: 410, Message: "run expired"}},
	}

	err := f.worker.Run(context.Background(), "s1")
	require.Error(t, err)

	assert.Equal(t, domain.StatusError, f.repo.finalStatus())
	assert.Equal(t, 2, f.game.pollCalls())
}

func TestWorkerStopsAfterInactivityTimeout(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, Config{InactivityTimeout: 5 * time.Millisecond})
	f.game.steps = []pollStep{{result: observations(`"A"`)}}
	// Every later poll returns nothing: the session has gone quiet.

	err := f.worker.Run(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusStopped, f.repo.finalStatus())
	assert.Equal(t, "inactivity_timeout", f.repo.finalReason())

	payloads := f.buffer.payloads()
	require.NotEmpty(t, payloads)
	assert.Contains(t, payloads[len(payloads)-1], "inactivity_timeout")
}

func TestWorkerStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, Config{PollInterval: 50 * time.Millisecond, InactivityTimeout: time.Minute})
	f.game.steps = []pollStep{{result: observations(`"A"`)}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := f.worker.Run(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, f.repo.finalStatus())
}

func TestWorkerRecordsPollTimes(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, Config{})
	f.game.steps = []pollStep{
		{result: observations(`"A"`)},
		{result: ports.PollResult{}},
		{result: ports.PollResult{Ended: true}},
	}

	err := f.worker.Run(context.Background(), "s1")
	require.NoError(t, err)

	f.repo.mu.Lock()
	defer f.repo.mu.Unlock()
	assert.NotEmpty(t, f.repo.polled)
}
