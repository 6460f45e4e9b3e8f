package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/arenaverse/arenactl/internal/domain"
	"github.com/arenaverse/arenactl/internal/ports"
)

const (
	defaultPollInterval      = 2 * time.Second
	defaultMaxPollFailures   = 5
	defaultInactivityTimeout = 5 * time.Minute
	defaultBackoffBase       = time.Second
	maxBackoff               = 8 * time.Second
)

// Config tunes the poll loop. Zero values fall back to the defaults above.
type Config struct {
	PollInterval      time.Duration
	MaxPollFailures   int
	InactivityTimeout time.Duration
	BackoffBase       time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.MaxPollFailures <= 0 {
		c.MaxPollFailures = defaultMaxPollFailures
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = defaultInactivityTimeout
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	return c
}

// Worker is the per-session background poller: it repeatedly asks the arena
// service for new observations and appends them to the session's buffer
// until the game ends, a stop is requested, or polling fails for good.
//
// It runs detached from the join invocation that spawned it; all
// coordination with later CLI invocations goes through the registry and the
// stop flag.
type Worker struct {
	repo    ports.SessionRepository
	buffer  ports.ObservationBuffer
	client  ports.GameClient
	control ports.WorkerController
	clock   ports.Clock
	log     *slog.Logger
	cfg     Config
}

func New(
	repo ports.SessionRepository,
	buffer ports.ObservationBuffer,
	client ports.GameClient,
	control ports.WorkerController,
	clock ports.Clock,
	log *slog.Logger,
	cfg Config,
) *Worker {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if log == nil {
		log = slog.Default()
	}

	return &Worker{
		repo:    repo,
		buffer:  buffer,
		client:  client,
		control: control,
		clock:   clock,
		log:     log,
		cfg:     cfg.withDefaults(),
	}
}

// Run drives the worker to one of its terminal states. The returned error is
// non-nil only for the errored outcome; ended and stopped are clean exits.
func (w *Worker) Run(ctx context.Context, id domain.SessionID) error {
	w.log.Info("observer starting", "session", id)

	since, err := w.buffer.LastSequence(ctx, id)
	if err != nil {
		return w.errored(ctx, id, fmt.Errorf("read buffer position: %w", err))
	}

	// Starting: the first poll is the handshake. A failure here is fatal,
	// not transient; matchmaking-time problems do not heal by retrying.
	result, err := w.client.PollObservations(ctx, id, since)
	if err != nil {
		return w.errored(ctx, id, fmt.Errorf("initial poll: %w", err))
	}
	since, err = w.ingest(ctx, id, result.Observations, since)
	if err != nil {
		return w.errored(ctx, id, err)
	}
	if result.Ended {
		return w.ended(ctx, id)
	}

	w.log.Info("observer polling", "session", id, "interval", w.cfg.PollInterval)

	lastActivity := w.clock.Now()
	failures := 0
	for {
		if w.control.StopRequested(id) {
			return w.stopped(ctx, id, "stop requested")
		}

		wait := w.cfg.PollInterval
		if failures > 0 {
			wait = w.backoff(failures)
		}
		select {
		case <-ctx.Done():
			return w.stopped(context.WithoutCancel(ctx), id, "signal received")
		case <-time.After(wait):
		}

		if w.control.StopRequested(id) {
			return w.stopped(ctx, id, "stop requested")
		}

		result, err := w.client.PollObservations(ctx, id, since)
		if err != nil {
			if !domain.IsTransient(err) {
				return w.errored(ctx, id, fmt.Errorf("poll rejected: %w", err))
			}
			failures++
			w.log.Warn("poll failed", "session", id, "failures", failures, "err", err)
			if failures >= w.cfg.MaxPollFailures {
				return w.errored(ctx, id, fmt.Errorf("poll failed %d times, giving up: %w", failures, err))
			}
			continue
		}
		failures = 0

		now := w.clock.Now()
		if err := w.repo.TouchPolled(ctx, id, now); err != nil {
			w.log.Warn("record poll time", "session", id, "err", err)
		}

		since, err = w.ingest(ctx, id, result.Observations, since)
		if err != nil {
			return w.errored(ctx, id, err)
		}
		if len(result.Observations) > 0 {
			lastActivity = now
		}

		if result.Ended {
			return w.ended(ctx, id)
		}

		if now.Sub(lastActivity) > w.cfg.InactivityTimeout {
			w.log.Info("inactivity timeout", "session", id, "timeout", w.cfg.InactivityTimeout)
			return w.inactive(ctx, id)
		}
	}
}

// backoff doubles the base per consecutive failure, capped.
func (w *Worker) backoff(failures int) time.Duration {
	wait := w.cfg.BackoffBase
	for i := 1; i < failures; i++ {
		wait *= 2
		if wait >= maxBackoff {
			return maxBackoff
		}
	}
	return wait
}

func (w *Worker) ingest(ctx context.Context, id domain.SessionID, payloads []json.RawMessage, since int64) (int64, error) {
	for _, payload := range payloads {
		observation, err := w.buffer.Append(ctx, id, payload)
		if err != nil {
			return since, fmt.Errorf("buffer observation: %w", err)
		}
		since = observation.Sequence
	}
	return since, nil
}

func (w *Worker) ended(ctx context.Context, id domain.SessionID) error {
	if _, err := w.buffer.Append(ctx, id, domain.TerminalMarker("game_over")); err != nil {
		w.log.Warn("append terminal marker", "session", id, "err", err)
	}
	w.finish(ctx, id, domain.StatusEnded, "game_over")
	w.log.Info("observer ended", "session", id)
	return nil
}

func (w *Worker) inactive(ctx context.Context, id domain.SessionID) error {
	if _, err := w.buffer.Append(ctx, id, domain.TerminalMarker("inactivity_timeout")); err != nil {
		w.log.Warn("append terminal marker", "session", id, "err", err)
	}
	w.finish(ctx, id, domain.StatusStopped, "inactivity_timeout")
	return nil
}

func (w *Worker) stopped(ctx context.Context, id domain.SessionID, reason string) error {
	w.finish(ctx, id, domain.StatusStopped, reason)
	w.log.Info("observer stopped", "session", id, "reason", reason)
	return nil
}

func (w *Worker) errored(ctx context.Context, id domain.SessionID, cause error) error {
	w.finish(ctx, id, domain.StatusError, cause.Error())
	w.log.Error("observer errored", "session", id, "err", cause)
	return cause
}

// finish releases the registry attachment and records the terminal status.
// Failures here are logged, not returned: the session may already have been
// cleaned up underneath a long-running worker.
func (w *Worker) finish(ctx context.Context, id domain.SessionID, status domain.SessionStatus, reason string) {
	if err := w.repo.SetStatus(ctx, id, status, reason); err != nil {
		w.log.Warn("record terminal status", "session", id, "status", status, "err", err)
	}
	if err := w.repo.DetachObserver(ctx, id); err != nil {
		w.log.Warn("detach observer", "session", id, "err", err)
	}
}
