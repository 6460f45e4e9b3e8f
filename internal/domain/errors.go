package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExists      = errors.New("session already exists")
	ErrObserverAttached   = errors.New("observer already attached")
	ErrInvalidTransition  = errors.New("invalid session status transition")
	ErrEmptyAction        = errors.New("action requires code, message, or thoughts")
	ErrSessionNotActive   = errors.New("session is not active")
	ErrMatchmakingTimeout = errors.New("timed out waiting for matchmaking")
	ErrNoCredentials      = errors.New("agent credentials are not configured")
)

// RemoteFailure classifies a failed call to the arena service. Retryable
// failures (network errors, 429, 5xx) are safe to retry; the rest are
// server-side rejections that must not be retried locally.
type RemoteFailure struct {
	Retryable  bool
	StatusCode int
	Message    string
}

func (e *RemoteFailure) Error() string {
	kind := "rejected"
	if e.Retryable {
		kind = "transient"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("arena service %s failure (HTTP %d): %s", kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("arena service %s failure: %s", kind, e.Message)
}

// IsTransient reports whether err wraps a retryable remote failure.
func IsTransient(err error) bool {
	var remote *RemoteFailure
	return errors.As(err, &remote) && remote.Retryable
}
