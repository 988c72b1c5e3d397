package player

import (
	"encoding/json"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
)

// EventChannelPrefix prefixes every session event channel name.
const EventChannelPrefix = "mpv-event-"

// EventChannel returns the channel events of session are emitted on.
func EventChannel(session string) string {
	return EventChannelPrefix + session
}

// Envelope is one event tagged with its owning session.
type Envelope struct {
	Session string
	Event   libmpv.Event
}

// MarshalJSON writes {"session": ..., "event": {...}}.
func (e Envelope) MarshalJSON() ([]byte, error) {
	ev, err := libmpv.MarshalEvent(e.Event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Session string          `json:"session"`
		Event   json.RawMessage `json:"event"`
	}{e.Session, ev})
}
