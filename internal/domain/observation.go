package domain

import (
	"encoding/json"
	"time"
)

// Observation is one locally-sequenced unit of inbound game state. The
// sequence number is assigned at buffer-append time, starting at 1 per
// session; the payload is opaque passthrough from the arena service.
type Observation struct {
	Sequence   int64           `json:"sequence"`
	ReceivedAt time.Time       `json:"received_at"`
	Payload    json.RawMessage `json:"payload"`
}

// TerminalMarkerEvent is the event value of the synthetic observation the
// observer appends as the final buffer entry when a session ends locally.
const TerminalMarkerEvent = "session_end"

// TerminalMarker builds the payload of the final buffer entry for a session.
// The reason distinguishes a server game-over from a local stop.
func TerminalMarker(reason string) json.RawMessage {
	payload, _ := json.Marshal(map[string]string{
		"event":  TerminalMarkerEvent,
		"reason": reason,
	})
	return payload
}
