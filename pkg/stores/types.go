package stores

import (
	"context"
	"errors"
	"time"

	"github.com/openfroyo/mpvbridge/pkg/telemetry"
)

// ErrNotFound is returned when a session or event does not exist.
var ErrNotFound = errors.New("not found")

// SessionStatus represents the lifecycle state of a journaled session
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusEnded  SessionStatus = "ended"
)

// EventLevel represents the severity level of an event
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Session is one lifetime of a player session key. A key that is destroyed
// and created again gets a new row.
type Session struct {
	ID         string        `json:"id"`
	Session    string        `json:"session"`
	Channel    string        `json:"channel"`
	Status     SessionStatus `json:"status"`
	EndReason  *string       `json:"end_reason,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    *time.Time    `json:"ended_at,omitempty"`
	Metadata   string        `json:"metadata"` // JSON blob
	EventCount int64         `json:"event_count"`
}

// Event represents an append-only journal entry
type Event struct {
	ID        int64      `json:"id"`
	EventID   *string    `json:"event_id,omitempty"` // bus event id
	SessionID *string    `json:"session_id,omitempty"`
	Session   string     `json:"session"`
	Type      string     `json:"type"`
	Name      *string    `json:"name,omitempty"`
	Level     EventLevel `json:"level"`
	Message   *string    `json:"message,omitempty"`
	Payload   *string    `json:"payload,omitempty"` // JSON blob
	Timestamp time.Time  `json:"timestamp"`
}

// Store defines the interface for the session journal
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Session operations
	RecordSessionStarted(ctx context.Context, session, channel string, at time.Time) (*Session, error)
	RecordSessionEnded(ctx context.Context, session, reason string, at time.Time) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, status *SessionStatus, limit, offset int) ([]*Session, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	ListEvents(ctx context.Context, session *string, eventType *string, limit, offset int) ([]*Event, error)
	PruneEvents(ctx context.Context, before time.Time) (int64, error)

	// Bus integration
	Subscriber() telemetry.EventSubscriber

	// Utility
	HealthCheck(ctx context.Context) error
}
