package toml

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// fileLock is an advisory flock on a sidecar file, serializing registry
// access across concurrent CLI invocations. The in-process RWMutex alone only
// covers goroutines of a single invocation.
type fileLock struct {
	file *os.File
}

func acquireFileLock(path string, exclusive bool) (*fileLock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	if err := unix.Flock(int(file.Fd()), how); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	return &fileLock{file: file}, nil
}

func (l *fileLock) release() {
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	_ = l.file.Close()
}
