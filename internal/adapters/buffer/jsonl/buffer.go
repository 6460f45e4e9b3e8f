package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/arenaverse/arenactl/internal/domain"
	"github.com/arenaverse/arenactl/internal/ports"
	"golang.org/x/sys/unix"
)

const (
	observationsFileName = "observations.jsonl"
	cursorFileName       = "cursor"
	lockFileName         = "lock"
	bufferFileMode       = 0o600

	// Observation lines are bounded in practice (world-state deltas), but a
	// chatty server should not break the scanner.
	maxLineBytes = 4 << 20
)

// Buffer stores each session's observations as an append-only JSONL file
// next to a cursor file holding the last-drained sequence. An exclusive
// flock on a per-session lock file serializes the observer's appends with
// drains from concurrent observe invocations.
type Buffer struct {
	sessionsDir string
	clock       ports.Clock
}

var _ ports.ObservationBuffer = (*Buffer)(nil)

func NewBuffer(sessionsDir string, clock ports.Clock) *Buffer {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Buffer{sessionsDir: filepath.Clean(sessionsDir), clock: clock}
}

func (b *Buffer) Append(ctx context.Context, id domain.SessionID, payload json.RawMessage) (domain.Observation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Observation{}, err
	}

	sessionDir, err := b.sessionDir(id)
	if err != nil {
		return domain.Observation{}, err
	}

	lock, err := acquireLock(filepath.Join(sessionDir, lockFileName))
	if err != nil {
		return domain.Observation{}, err
	}
	defer lock.release()

	observations, err := readObservations(filepath.Join(sessionDir, observationsFileName))
	if err != nil {
		return domain.Observation{}, err
	}

	var lastSequence int64
	if len(observations) > 0 {
		lastSequence = observations[len(observations)-1].Sequence
	}

	observation := domain.Observation{
		Sequence:   lastSequence + 1,
		ReceivedAt: b.clock.Now().UTC(),
		Payload:    payload,
	}

	line, err := json.Marshal(observation)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("encode observation: %w", err)
	}

	file, err := os.OpenFile(filepath.Join(sessionDir, observationsFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, bufferFileMode)
	if err != nil {
		return domain.Observation{}, fmt.Errorf("open observations file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return domain.Observation{}, fmt.Errorf("append observation: %w", err)
	}

	return observation, nil
}

func (b *Buffer) Drain(ctx context.Context, id domain.SessionID) ([]domain.Observation, error) {
	return b.read(ctx, id, true)
}

func (b *Buffer) Peek(ctx context.Context, id domain.SessionID) ([]domain.Observation, error) {
	return b.read(ctx, id, false)
}

func (b *Buffer) LastSequence(ctx context.Context, id domain.SessionID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	sessionDir, err := b.sessionDir(id)
	if err != nil {
		return 0, err
	}

	lock, err := acquireLock(filepath.Join(sessionDir, lockFileName))
	if err != nil {
		return 0, err
	}
	defer lock.release()

	observations, err := readObservations(filepath.Join(sessionDir, observationsFileName))
	if err != nil {
		return 0, err
	}
	if len(observations) == 0 {
		return 0, nil
	}

	return observations[len(observations)-1].Sequence, nil
}

func (b *Buffer) read(ctx context.Context, id domain.SessionID, advance bool) ([]domain.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sessionDir, err := b.sessionDir(id)
	if err != nil {
		return nil, err
	}

	lock, err := acquireLock(filepath.Join(sessionDir, lockFileName))
	if err != nil {
		return nil, err
	}
	defer lock.release()

	cursorPath := filepath.Join(sessionDir, cursorFileName)
	cursor, err := readCursor(cursorPath)
	if err != nil {
		return nil, err
	}

	observations, err := readObservations(filepath.Join(sessionDir, observationsFileName))
	if err != nil {
		return nil, err
	}

	pending := make([]domain.Observation, 0, len(observations))
	for _, observation := range observations {
		if observation.Sequence > cursor {
			pending = append(pending, observation)
		}
	}

	if advance && len(pending) > 0 {
		last := pending[len(pending)-1].Sequence
		if err := writeCursor(cursorPath, last); err != nil {
			return nil, err
		}
	}

	return pending, nil
}

func (b *Buffer) sessionDir(id domain.SessionID) (string, error) {
	if id == "" {
		return "", fmt.Errorf("session id is empty: %w", domain.ErrSessionNotFound)
	}

	dir := filepath.Join(b.sessionsDir, string(id))
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("session %q: %w", id, domain.ErrSessionNotFound)
		}
		return "", fmt.Errorf("stat session directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("session %q: %w", id, domain.ErrSessionNotFound)
	}

	return dir, nil
}

func readObservations(path string) ([]domain.Observation, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open observations file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var observations []domain.Observation
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var observation domain.Observation
		if err := json.Unmarshal(line, &observation); err != nil {
			// A torn trailing line from a killed writer is skipped rather
			// than poisoning every later read.
			continue
		}
		observations = append(observations, observation)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan observations file: %w", err)
	}

	return observations, nil
}

func readCursor(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read cursor file: %w", err)
	}

	cursor, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode cursor file: %w", err)
	}

	return cursor, nil
}

func writeCursor(path string, sequence int64) error {
	if err := os.WriteFile(path, []byte(strconv.FormatInt(sequence, 10)), bufferFileMode); err != nil {
		return fmt.Errorf("write cursor file: %w", err)
	}
	return nil
}

type fileLock struct {
	file *os.File
}

func acquireLock(path string) (*fileLock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, bufferFileMode)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	return &fileLock{file: file}, nil
}

func (l *fileLock) release() {
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	_ = l.file.Close()
}
