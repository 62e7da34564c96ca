package types

import (
	"encoding/json"
	"time"
)

// ErrorFrame is what the relay writes back for a frame it refused. Envelope
// frames never carry an "error" field.
type ErrorFrame struct {
	Error string `json:"error"`
}

type EventCreated struct {
	Code string `json:"code"`
}

type EventList struct {
	Events []string `json:"events"`
}

type RoomInfo struct {
	EventID     string         `json:"event_id"`
	Active      bool           `json:"active"`
	Subscribers int            `json:"subscribers"`
	Roles       map[string]int `json:"roles,omitempty"`
	Published   uint64         `json:"published"`
}

type StoredState struct {
	EventID   string          `json:"event_id"`
	State     json.RawMessage `json:"state"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type LogEntry struct {
	EnvelopeID string          `json:"envelope_id"`
	Kind       string          `json:"kind"`
	Sender     string          `json:"sender,omitempty"`
	Seq        uint64          `json:"seq"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}
