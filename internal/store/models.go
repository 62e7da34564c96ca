package store

import (
	"time"

	"gorm.io/datatypes"
)

// MatchState is the last arbitrated state of one event.
type MatchState struct {
	ID        uint           `gorm:"primaryKey"`
	EventID   string         `gorm:"size:64;uniqueIndex;not null"`
	State     datatypes.JSON `gorm:"type:jsonb;not null"`
	Version   int64          `gorm:"not null;default:1"`
	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

// EventLog is one archived envelope. EnvelopeID is unique within an event so
// redelivered envelopes are stored once; ids are client supplied and may
// repeat across events.
type EventLog struct {
	ID         uint           `gorm:"primaryKey"`
	EventID    string         `gorm:"size:64;uniqueIndex:idx_event_logs_event_envelope,priority:1;not null"`
	EnvelopeID string         `gorm:"size:64;uniqueIndex:idx_event_logs_event_envelope,priority:2;not null"`
	Kind       string         `gorm:"size:32;not null"`
	Sender     string         `gorm:"size:64"`
	Seq        uint64         `gorm:"not null;default:0"`
	Payload    datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time      `gorm:"not null"`
}
