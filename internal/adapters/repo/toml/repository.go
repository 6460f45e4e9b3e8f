package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/arenaverse/arenactl/internal/domain"
	"github.com/arenaverse/arenactl/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	configName       = "config"
	configType       = "toml"
	dataPathKey      = "data.path"
	dataDirName      = ".arena"
	sessionsFileName = "sessions.toml"
	sessionsLockName = "sessions.lock"
	sessionsDirName  = "sessions"
	sessionsFileMode = 0o600
	sessionsDirMode  = 0o700
	tempFilePattern  = ".sessions-*.toml.tmp"
)

// Repository persists the session registry as a single TOML file, written
// atomically via temp file + rename. Cross-process safety comes from an
// advisory flock on a sidecar lock file; the per-path RWMutex covers
// goroutines within one invocation.
type Repository struct {
	sessionsPath string
	lockPath     string
	sessionsDir  string
	mu           *sync.RWMutex
	clock        ports.Clock
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.SessionRepository = (*Repository)(nil)

func NewRepository(cfg *viper.Viper, clock ports.Clock) (*Repository, error) {
	if cfg == nil {
		cfg = viper.New()
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	defaultDataPath := filepath.Join(homeDir, dataDirName)

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(defaultDataPath)
	cfg.SetDefault(dataPathKey, defaultDataPath)

	err = cfg.ReadInConfig()
	if err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	dataPath := cfg.GetString(dataPathKey)
	if dataPath == "" {
		return nil, errors.New("data path is empty")
	}
	dataPath, err = normalizeDataPath(dataPath)
	if err != nil {
		return nil, err
	}

	sessionsPath := filepath.Join(dataPath, sessionsFileName)

	return &Repository{
		sessionsPath: sessionsPath,
		lockPath:     filepath.Join(dataPath, sessionsLockName),
		sessionsDir:  filepath.Join(dataPath, sessionsDirName),
		mu:           lockForPath(sessionsPath),
		clock:        clock,
	}, nil
}

// SessionsDir is the directory holding per-session buffers and worker
// control files, shared with the buffer and process adapters.
func (r *Repository) SessionsDir() string {
	return r.sessionsDir
}

// DataDir is the root data directory, home of the registry file and the
// credentials file.
func (r *Repository) DataDir() string {
	return filepath.Dir(r.sessionsDir)
}

func (r *Repository) Create(ctx context.Context, id domain.SessionID, runID string) (domain.Session, error) {
	if id == "" {
		return domain.Session{}, errors.New("session id is empty")
	}

	session := domain.Session{
		ID:        id,
		RunID:     runID,
		Status:    domain.StatusPending,
		CreatedAt: r.clock.Now().UTC(),
	}

	err := r.mutate(ctx, func(file *fileSchema) error {
		for _, entry := range file.Sessions {
			if entry.ID == string(id) {
				return fmt.Errorf("session %q: %w", id, domain.ErrSessionExists)
			}
		}
		file.Sessions = append(file.Sessions, toSchema(session))
		return nil
	})
	if err != nil {
		return domain.Session{}, err
	}

	if err := os.MkdirAll(filepath.Join(r.sessionsDir, string(id)), sessionsDirMode); err != nil {
		return domain.Session{}, fmt.Errorf("create session directory: %w", err)
	}

	return session, nil
}

func (r *Repository) Get(ctx context.Context, id domain.SessionID) (domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return domain.Session{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	lock, err := acquireFileLock(r.lockPath, false)
	if err != nil {
		return domain.Session{}, err
	}
	defer lock.release()

	file, err := r.readSchema()
	if err != nil {
		return domain.Session{}, err
	}

	for _, entry := range file.Sessions {
		if entry.ID == string(id) {
			return fromSchema(entry), nil
		}
	}

	return domain.Session{}, fmt.Errorf("session %q: %w", id, domain.ErrSessionNotFound)
}

func (r *Repository) List(ctx context.Context) ([]domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	lock, err := acquireFileLock(r.lockPath, false)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	file, err := r.readSchema()
	if err != nil {
		return nil, err
	}

	sessions := make([]domain.Session, 0, len(file.Sessions))
	for _, entry := range file.Sessions {
		sessions = append(sessions, fromSchema(entry))
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})

	return sessions, nil
}

func (r *Repository) MarkActive(ctx context.Context, id domain.SessionID) error {
	return r.updateSession(ctx, id, func(session *domain.Session) error {
		if session.Status != domain.StatusPending {
			return fmt.Errorf("session %q is %s: %w", id, session.Status, domain.ErrInvalidTransition)
		}
		session.Status = domain.StatusActive
		return nil
	})
}

func (r *Repository) AttachObserver(ctx context.Context, id domain.SessionID, pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid observer pid %d", pid)
	}

	return r.updateSession(ctx, id, func(session *domain.Session) error {
		if session.HasObserver() {
			return fmt.Errorf("session %q has observer pid %d: %w", id, session.ObserverPID, domain.ErrObserverAttached)
		}
		session.ObserverPID = pid
		return nil
	})
}

func (r *Repository) DetachObserver(ctx context.Context, id domain.SessionID) error {
	return r.updateSession(ctx, id, func(session *domain.Session) error {
		session.ObserverPID = 0
		return nil
	})
}

func (r *Repository) SetStatus(ctx context.Context, id domain.SessionID, status domain.SessionStatus, reason string) error {
	if !status.Valid() {
		return fmt.Errorf("unknown session status %q", status)
	}

	return r.updateSession(ctx, id, func(session *domain.Session) error {
		if session.Status == status {
			return nil
		}
		if !session.Status.CanTransition(status) {
			return fmt.Errorf("session %q: %s → %s: %w", id, session.Status, status, domain.ErrInvalidTransition)
		}
		session.Status = status
		session.StatusReason = reason
		return nil
	})
}

func (r *Repository) TouchPolled(ctx context.Context, id domain.SessionID, at time.Time) error {
	return r.updateSession(ctx, id, func(session *domain.Session) error {
		session.LastPolledAt = at.UTC()
		return nil
	})
}

func (r *Repository) Remove(ctx context.Context, id domain.SessionID) error {
	err := r.mutate(ctx, func(file *fileSchema) error {
		kept := file.Sessions[:0]
		for _, entry := range file.Sessions {
			if entry.ID != string(id) {
				kept = append(kept, entry)
			}
		}
		file.Sessions = kept
		return nil
	})
	if err != nil {
		return err
	}

	if err := os.RemoveAll(filepath.Join(r.sessionsDir, string(id))); err != nil {
		return fmt.Errorf("remove session directory: %w", err)
	}

	return nil
}

func (r *Repository) RemoveAll(ctx context.Context) error {
	err := r.mutate(ctx, func(file *fileSchema) error {
		file.Sessions = nil
		return nil
	})
	if err != nil {
		return err
	}

	if err := os.RemoveAll(r.sessionsDir); err != nil {
		return fmt.Errorf("remove sessions directory: %w", err)
	}

	return nil
}

func (r *Repository) updateSession(ctx context.Context, id domain.SessionID, apply func(*domain.Session) error) error {
	return r.mutate(ctx, func(file *fileSchema) error {
		for i := range file.Sessions {
			if file.Sessions[i].ID != string(id) {
				continue
			}
			session := fromSchema(file.Sessions[i])
			if err := apply(&session); err != nil {
				return err
			}
			file.Sessions[i] = toSchema(session)
			return nil
		}
		return fmt.Errorf("session %q: %w", id, domain.ErrSessionNotFound)
	})
}

// mutate runs a read-modify-write cycle on the registry file under both the
// in-process write lock and the cross-process flock.
func (r *Repository) mutate(ctx context.Context, apply func(*fileSchema) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.sessionsPath), sessionsDirMode); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	lock, err := acquireFileLock(r.lockPath, true)
	if err != nil {
		return err
	}
	defer lock.release()

	file, err := r.readSchema()
	if err != nil {
		return err
	}
	file.applyDefaults()

	if err := apply(&file); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return r.writeSchema(file)
}

func (r *Repository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.sessionsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{}, nil
		}
		return fileSchema{}, fmt.Errorf("read sessions file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode sessions file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func (r *Repository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode sessions file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.sessionsPath), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp sessions file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp sessions file: %w", err)
	}

	if err := tempFile.Chmod(sessionsFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp sessions file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp sessions file: %w", err)
	}

	if err := os.Rename(tempName, r.sessionsPath); err != nil {
		return fmt.Errorf("replace sessions file: %w", err)
	}

	cleanup = false

	return nil
}

func normalizeDataPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve data path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func toSchema(session domain.Session) sessionSchema {
	return sessionSchema{
		ID:           string(session.ID),
		RunID:        session.RunID,
		Status:       string(session.Status),
		ObserverPID:  session.ObserverPID,
		StatusReason: session.StatusReason,
		CreatedAt:    formatTime(session.CreatedAt),
		LastPolledAt: formatTime(session.LastPolledAt),
	}
}

func fromSchema(entry sessionSchema) domain.Session {
	return domain.Session{
		ID:           domain.SessionID(entry.ID),
		RunID:        entry.RunID,
		Status:       domain.SessionStatus(entry.Status),
		ObserverPID:  entry.ObserverPID,
		StatusReason: entry.StatusReason,
		CreatedAt:    parseTime(entry.CreatedAt),
		LastPolledAt: parseTime(entry.LastPolledAt),
	}
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.Format(time.RFC3339Nano)
}
