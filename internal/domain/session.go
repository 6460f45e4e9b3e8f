package domain

import "time"

type SessionID string

type SessionStatus string

const (
	StatusPending SessionStatus = "pending"
	StatusActive  SessionStatus = "active"
	StatusEnded   SessionStatus = "ended"
	StatusStopped SessionStatus = "stopped"
	StatusError   SessionStatus = "error"
)

// Session is one instance of participation in a remote game. The id and run
// id are assigned by the arena service at join time and never interpreted
// locally.
type Session struct {
	ID           SessionID
	RunID        string
	Status       SessionStatus
	ObserverPID  int
	StatusReason string
	CreatedAt    time.Time
	LastPolledAt time.Time
}

func (s SessionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusEnded, StatusStopped, StatusError:
		return true
	}
	return false
}

// Terminal reports whether a session can never re-enter active.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusEnded, StatusStopped, StatusError:
		return true
	}
	return false
}

// CanTransition enforces the session status machine: pending becomes active
// exactly once, active leaves to exactly one terminal status, and terminal
// statuses never change. Setting the current status again is allowed so that
// repeated control commands stay idempotent.
func (s SessionStatus) CanTransition(to SessionStatus) bool {
	if s == to {
		return true
	}
	switch s {
	case StatusPending:
		// A pending session never ends via the game; it either activates,
		// gets stopped while still queued, or fails.
		return to == StatusActive || to == StatusStopped || to == StatusError
	case StatusActive:
		return to.Terminal()
	default:
		return false
	}
}

func (s Session) HasObserver() bool {
	return s.ObserverPID > 0
}
