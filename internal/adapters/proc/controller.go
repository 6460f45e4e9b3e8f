package proc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/arenaverse/arenactl/internal/domain"
	"github.com/arenaverse/arenactl/internal/ports"
	"golang.org/x/sys/unix"
)

const (
	observerLogName  = "observer.log"
	stopFlagName     = "stop"
	controlFileMode  = 0o600
	observerLogFlags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
)

// Controller spawns and signals the per-session observer worker. The worker
// runs as a detached re-exec of this binary (own session id via Setsid, so it
// survives the join invocation exiting); stop requests travel through a flag
// file in the session directory that the worker checks between polls.
type Controller struct {
	sessionsDir string

	// Executable overrides the spawned binary, used by tests. Defaults to
	// the running executable.
	Executable string
}

var _ ports.WorkerController = (*Controller)(nil)

func NewController(sessionsDir string) *Controller {
	return &Controller{sessionsDir: filepath.Clean(sessionsDir)}
}

func (c *Controller) Spawn(ctx context.Context, id domain.SessionID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	sessionDir, err := c.sessionDir(id)
	if err != nil {
		return 0, err
	}

	executable := c.Executable
	if executable == "" {
		executable, err = os.Executable()
		if err != nil {
			return 0, fmt.Errorf("resolve executable: %w", err)
		}
	}

	logFile, err := os.OpenFile(filepath.Join(sessionDir, observerLogName), observerLogFlags, controlFileMode)
	if err != nil {
		return 0, fmt.Errorf("open observer log: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	cmd := exec.Command(executable, "observer", string(id))
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start observer worker: %w", err)
	}

	pid := cmd.Process.Pid
	// The worker outlives this invocation; release it rather than waiting.
	_ = cmd.Process.Release()

	return pid, nil
}

// ObserverLogPath returns the location of the worker's log file for the
// session. The file itself may not exist yet if the worker never logged.
func (c *Controller) ObserverLogPath(id domain.SessionID) (string, error) {
	sessionDir, err := c.sessionDir(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(sessionDir, observerLogName), nil
}

func (c *Controller) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to someone else.
	return errors.Is(err, unix.EPERM)
}

func (c *Controller) RequestStop(id domain.SessionID) error {
	sessionDir, err := c.sessionDir(id)
	if err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(sessionDir, stopFlagName), nil, controlFileMode); err != nil {
		return fmt.Errorf("write stop flag: %w", err)
	}

	return nil
}

func (c *Controller) StopRequested(id domain.SessionID) bool {
	_, err := os.Stat(filepath.Join(c.sessionsDir, string(id), stopFlagName))
	return err == nil
}

func (c *Controller) sessionDir(id domain.SessionID) (string, error) {
	if id == "" {
		return "", fmt.Errorf("session id is empty: %w", domain.ErrSessionNotFound)
	}

	dir := filepath.Join(c.sessionsDir, string(id))
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("session %q: %w", id, domain.ErrSessionNotFound)
		}
		return "", fmt.Errorf("stat session directory: %w", err)
	}

	return dir, nil
}
