package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event is one entry on the player event bus.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Session   string    `json:"session"`

	// Channel is the per-session channel the event is emitted on.
	Channel string `json:"channel,omitempty"`
	// Name is the engine event name, or the command of a policy violation.
	Name string `json:"name,omitempty"`
	// Reason says why a session ended.
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	// Level is info, warning or error.
	Level string `json:"level"`

	// Payload is the JSON encoding of the engine event.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrPublisherStopped is returned by Publish after Shutdown.
var ErrPublisherStopped = errors.New("event publisher stopped")

// Event types.
const (
	EventTypePlayer          = "player.event"
	EventTypeSessionStarted  = "session.started"
	EventTypeSessionEnded    = "session.ended"
	EventTypeEventLoopFailed = "session.event_loop_failed"
	EventTypePolicyViolation = "policy.violation"
	// EventTypeError carries an engine event that could not be decoded.
	EventTypeError           = "error"
)

// Event severity levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber handles one event.
type EventSubscriber func(event Event)

// EventFilter selects the events a subscriber sees.
type EventFilter func(event Event) bool

type subscription struct {
	fn     EventSubscriber
	filter EventFilter
}

// EventPublisher fans events out to subscribers in publish order. In async
// mode Publish only enqueues and a single goroutine delivers.
type EventPublisher struct {
	cfg EventsConfig

	subMu sync.RWMutex
	subs  []subscription

	// pubMu orders publishers and guards closed and queue sends.
	pubMu  sync.Mutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

// NewEventPublisher creates a publisher. A disabled publisher accepts and
// drops everything.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	ep := &EventPublisher{cfg: cfg}
	if !cfg.Enabled || !cfg.EnableAsync {
		return ep, nil
	}

	if cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("event buffer size must be positive, got: %d", cfg.BufferSize)
	}
	if ep.cfg.MaxBatchSize <= 0 {
		ep.cfg.MaxBatchSize = 1
	}
	ep.queue = make(chan Event, cfg.BufferSize)
	ep.done = make(chan struct{})
	go ep.run()
	return ep, nil
}

// Publish stamps event with an ID, time and level where missing and
// delivers or enqueues it. A full async queue drops the event with an error.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.cfg.Enabled {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	ep.pubMu.Lock()
	defer ep.pubMu.Unlock()
	if ep.closed {
		return ErrPublisherStopped
	}
	if ep.queue == nil {
		ep.deliver(event)
		return nil
	}
	select {
	case ep.queue <- event:
		return nil
	default:
		return fmt.Errorf("event buffer full, %s event for session %s dropped", event.Type, event.Session)
	}
}

// PublishPlayerEvent publishes one translated engine event.
func (ep *EventPublisher) PublishPlayerEvent(session, channel, name string, payload []byte) error {
	return ep.Publish(Event{
		Type:    EventTypePlayer,
		Session: session,
		Channel: channel,
		Name:    name,
		Payload: payload,
	})
}

// PublishSessionStarted publishes the creation of a session.
func (ep *EventPublisher) PublishSessionStarted(session, channel string) error {
	return ep.Publish(Event{
		Type:    EventTypeSessionStarted,
		Session: session,
		Channel: channel,
		Message: "session " + session + " started",
	})
}

// PublishSessionEnded publishes the end of a session.
func (ep *EventPublisher) PublishSessionEnded(session, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeSessionEnded,
		Session: session,
		Reason:  reason,
		Message: "session " + session + " ended: " + reason,
	})
}

// PublishEventLoopFailed publishes a fail-stop of a session's event loop.
func (ep *EventPublisher) PublishEventLoopFailed(session string, err error) error {
	return ep.Publish(Event{
		Type:    EventTypeEventLoopFailed,
		Session: session,
		Message: fmt.Sprintf("event loop of session %s stopped: %v", session, err),
		Level:   EventLevelError,
	})
}

// PublishPolicyViolation publishes a denied command.
func (ep *EventPublisher) PublishPolicyViolation(session, command, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypePolicyViolation,
		Session: session,
		Name:    command,
		Message: fmt.Sprintf("command %s denied for session %s: %s", command, session, reason),
		Level:   EventLevelWarning,
	})
}

// Subscribe registers fn for the events filter accepts, or all events when
// filter is nil.
func (ep *EventPublisher) Subscribe(fn EventSubscriber, filter EventFilter) {
	ep.subMu.Lock()
	ep.subs = append(ep.subs, subscription{fn: fn, filter: filter})
	ep.subMu.Unlock()
}

// run delivers queued events in batches. A partial batch waits at most
// FlushInterval; with no interval every event is delivered at once.
func (ep *EventPublisher) run() {
	defer close(ep.done)

	var tick <-chan time.Time
	if ep.cfg.FlushInterval > 0 {
		ticker := time.NewTicker(ep.cfg.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	batch := make([]Event, 0, ep.cfg.MaxBatchSize)
	flush := func() {
		for _, ev := range batch {
			ep.deliver(ev)
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-ep.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if tick == nil || len(batch) >= ep.cfg.MaxBatchSize {
				flush()
			}
		case <-tick:
			flush()
		}
	}
}

func (ep *EventPublisher) deliver(event Event) {
	ep.subMu.RLock()
	defer ep.subMu.RUnlock()
	for _, s := range ep.subs {
		if s.filter == nil || s.filter(event) {
			notify(s.fn, event)
		}
	}
}

// notify isolates the bus from a panicking subscriber.
func notify(fn EventSubscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("session", event.Session).
				Str("type", event.Type).
				Interface("panic", r).
				Msg("event subscriber panicked")
		}
	}()
	fn(event)
}

// Shutdown stops accepting events and waits until everything already
// queued is delivered, or ctx ends.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	ep.pubMu.Lock()
	if !ep.closed {
		ep.closed = true
		if ep.queue != nil {
			close(ep.queue)
		}
	}
	ep.pubMu.Unlock()

	if ep.done == nil {
		return nil
	}
	select {
	case <-ep.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown: %w", ctx.Err())
	}
}

// FilterByType accepts events of the given types.
func FilterByType(types ...string) EventFilter {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return func(event Event) bool { return set[event.Type] }
}

// FilterBySession accepts events of one session.
func FilterBySession(session string) EventFilter {
	return func(event Event) bool { return event.Session == session }
}
