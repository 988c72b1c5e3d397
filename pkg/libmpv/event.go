package libmpv

import (
	"encoding/json"
	"fmt"
	"unsafe"
)

var eventNames = map[EventID]string{
	EventNone:             "none",
	EventShutdown:         "shutdown",
	EventLogMessage:       "log-message",
	EventGetPropertyReply: "get-property-reply",
	EventSetPropertyReply: "set-property-reply",
	EventCommandReply:     "command-reply",
	EventStartFile:        "start-file",
	EventEndFile:          "end-file",
	EventFileLoaded:       "file-loaded",
	EventIdle:             "idle",
	EventTick:             "tick",
	EventClientMessage:    "client-message",
	EventVideoReconfig:    "video-reconfig",
	EventAudioReconfig:    "audio-reconfig",
	EventSeek:             "seek",
	EventPlaybackRestart:  "playback-restart",
	EventPropertyChange:   "property-change",
	EventQueueOverflow:    "queue-overflow",
	EventHook:             "hook",
}

// String returns the kebab-case event name.
func (id EventID) String() string {
	if name, ok := eventNames[id]; ok {
		return name
	}
	return fmt.Sprintf("event-%d", int32(id))
}

// Event is one decoded engine event. The set of implementations is closed.
type Event interface {
	EventID() EventID
	isEvent()
}

// EndFileReason says why playback of an entry stopped.
type EndFileReason string

// End-of-file reasons.
const (
	EndFileEOF      EndFileReason = "eof"
	EndFileStop     EndFileReason = "stop"
	EndFileQuit     EndFileReason = "quit"
	EndFileError    EndFileReason = "error"
	EndFileRedirect EndFileReason = "redirect"
	EndFileUnknown  EndFileReason = "unknown"
)

func endFileReason(code int32) EndFileReason {
	switch code {
	case endFileReasonEOF:
		return EndFileEOF
	case endFileReasonStop:
		return EndFileStop
	case endFileReasonQuit:
		return EndFileQuit
	case endFileReasonError:
		return EndFileError
	case endFileReasonRedirect:
		return EndFileRedirect
	default:
		return EndFileUnknown
	}
}

// ShutdownEvent is the last event an event client receives.
type ShutdownEvent struct{}

// LogMessageEvent carries one engine log line.
type LogMessageEvent struct {
	Prefix string `json:"prefix"`
	Level  string `json:"level"`
	Text   string `json:"text"`
}

// GetPropertyReplyEvent answers an asynchronous property read.
type GetPropertyReplyEvent struct {
	Name  string `json:"name"`
	Data  Node   `json:"data"`
	Error int    `json:"error"`
	ID    uint64 `json:"id"`
}

// SetPropertyReplyEvent answers an asynchronous property write.
type SetPropertyReplyEvent struct {
	Error int    `json:"error"`
	ID    uint64 `json:"id"`
}

// CommandReplyEvent answers an asynchronous command.
type CommandReplyEvent struct {
	Result Node   `json:"result"`
	Error  int    `json:"error"`
	ID     uint64 `json:"id"`
}

// StartFileEvent is sent before a playlist entry starts loading.
type StartFileEvent struct {
	PlaylistEntryID int64 `json:"playlist_entry_id"`
}

// EndFileEvent is sent when a playlist entry stops.
type EndFileEvent struct {
	Reason                   EndFileReason `json:"reason"`
	Error                    int           `json:"error"`
	PlaylistEntryID          int64         `json:"playlist_entry_id"`
	PlaylistInsertID         int64         `json:"playlist_insert_id"`
	PlaylistInsertNumEntries int           `json:"playlist_insert_num_entries"`
}

// FileLoadedEvent means the file was opened and playback will start.
type FileLoadedEvent struct{}

// IdleEvent means the player entered idle mode.
type IdleEvent struct{}

// TickEvent is the legacy periodic tick.
type TickEvent struct{}

// ClientMessageEvent carries the arguments of a script-message.
type ClientMessageEvent struct {
	Args []string `json:"args"`
}

// VideoReconfigEvent means the video output changed.
type VideoReconfigEvent struct{}

// AudioReconfigEvent means the audio output changed.
type AudioReconfigEvent struct{}

// SeekEvent means a seek was initiated.
type SeekEvent struct{}

// PlaybackRestartEvent means playback resumed after a seek or file start.
type PlaybackRestartEvent struct{}

// PropertyChangeEvent reports a new value of an observed property. ID is the
// correlation id given when the property was observed.
type PropertyChangeEvent struct {
	Name string `json:"name"`
	Data Node   `json:"data"`
	ID   uint64 `json:"id"`
}

// QueueOverflowEvent means events were dropped because the queue was full.
type QueueOverflowEvent struct{}

// HookEvent is a hook the client registered for.
type HookEvent struct {
	Name   string `json:"name"`
	HookID uint64 `json:"hook_id"`
}

func (ShutdownEvent) EventID() EventID { return EventShutdown }
func (LogMessageEvent) EventID() EventID { return EventLogMessage }
func (GetPropertyReplyEvent) EventID() EventID { return EventGetPropertyReply }
func (SetPropertyReplyEvent) EventID() EventID { return EventSetPropertyReply }
func (CommandReplyEvent) EventID() EventID { return EventCommandReply }
func (StartFileEvent) EventID() EventID { return EventStartFile }
func (EndFileEvent) EventID() EventID { return EventEndFile }
func (FileLoadedEvent) EventID() EventID { return EventFileLoaded }
func (IdleEvent) EventID() EventID { return EventIdle }
func (TickEvent) EventID() EventID { return EventTick }
func (ClientMessageEvent) EventID() EventID { return EventClientMessage }
func (VideoReconfigEvent) EventID() EventID { return EventVideoReconfig }
func (AudioReconfigEvent) EventID() EventID { return EventAudioReconfig }
func (SeekEvent) EventID() EventID { return EventSeek }
func (PlaybackRestartEvent) EventID() EventID { return EventPlaybackRestart }
func (PropertyChangeEvent) EventID() EventID { return EventPropertyChange }
func (QueueOverflowEvent) EventID() EventID { return EventQueueOverflow }
func (HookEvent) EventID() EventID { return EventHook }

func (ShutdownEvent) isEvent()         {}
func (LogMessageEvent) isEvent()       {}
func (GetPropertyReplyEvent) isEvent() {}
func (SetPropertyReplyEvent) isEvent() {}
func (CommandReplyEvent) isEvent()     {}
func (StartFileEvent) isEvent()        {}
func (EndFileEvent) isEvent()          {}
func (FileLoadedEvent) isEvent()       {}
func (IdleEvent) isEvent()             {}
func (TickEvent) isEvent()             {}
func (ClientMessageEvent) isEvent()    {}
func (VideoReconfigEvent) isEvent()    {}
func (AudioReconfigEvent) isEvent()    {}
func (SeekEvent) isEvent()             {}
func (PlaybackRestartEvent) isEvent()  {}
func (PropertyChangeEvent) isEvent()   {}
func (QueueOverflowEvent) isEvent()    {}
func (HookEvent) isEvent()             {}

// UnknownEventError is returned for event ids this binding does not know.
// Callers log and drop such events.
type UnknownEventError struct {
	ID EventID
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unknown mpv event id %d", int32(e.ID))
}

// MarshalEvent encodes ev as a JSON object tagged with its kebab-case name
// under "event".
func MarshalEvent(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("nil event")
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", ev.EventID(), err)
	}
	tag, _ := json.Marshal(ev.EventID().String())

	out := make([]byte, 0, len(body)+len(tag)+10)
	out = append(out, `{"event":`...)
	out = append(out, tag...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}

// decodeEvent translates one native event record. It returns (nil, nil) for
// MPV_EVENT_NONE, which is what a timed out wait yields. The record's data
// stays owned by mpv and is valid only until the next wait.
func decodeEvent(ev *event) (Event, error) {
	if ev == nil || ev.eventID == EventNone {
		return nil, nil
	}
	if _, known := eventNames[ev.eventID]; !known {
		return nil, &UnknownEventError{ID: ev.eventID}
	}

	switch ev.eventID {
	case EventShutdown:
		return ShutdownEvent{}, nil
	case EventFileLoaded:
		return FileLoadedEvent{}, nil
	case EventIdle:
		return IdleEvent{}, nil
	case EventTick:
		return TickEvent{}, nil
	case EventVideoReconfig:
		return VideoReconfigEvent{}, nil
	case EventAudioReconfig:
		return AudioReconfigEvent{}, nil
	case EventSeek:
		return SeekEvent{}, nil
	case EventPlaybackRestart:
		return PlaybackRestartEvent{}, nil
	case EventQueueOverflow:
		return QueueOverflowEvent{}, nil
	case EventSetPropertyReply:
		return SetPropertyReplyEvent{Error: int(ev.status), ID: ev.replyUserdata}, nil
	}

	if ev.data == 0 {
		return nil, conversionErrorf("%s event without data", ev.eventID)
	}

	switch ev.eventID {
	case EventLogMessage:
		msg := (*eventLogMessage)(unsafe.Pointer(ev.data))
		return LogMessageEvent{
			Prefix: goString(msg.prefix),
			Level:  goString(msg.level),
			Text:   goString(msg.text),
		}, nil

	case EventGetPropertyReply, EventPropertyChange:
		prop := (*eventProperty)(unsafe.Pointer(ev.data))
		name := goString(prop.name)
		data, err := decodeProperty(prop.format, prop.data)
		if err != nil {
			return nil, WrapError(KindConversion, "failed to decode property "+name, err)
		}
		if ev.eventID == EventPropertyChange {
			return PropertyChangeEvent{Name: name, Data: data, ID: ev.replyUserdata}, nil
		}
		return GetPropertyReplyEvent{Name: name, Data: data, Error: int(ev.status), ID: ev.replyUserdata}, nil

	case EventCommandReply:
		cmd := (*eventCommand)(unsafe.Pointer(ev.data))
		result, err := decodeNode(&cmd.result)
		if err != nil {
			return nil, err
		}
		return CommandReplyEvent{Result: result, Error: int(ev.status), ID: ev.replyUserdata}, nil

	case EventStartFile:
		sf := (*eventStartFile)(unsafe.Pointer(ev.data))
		return StartFileEvent{PlaylistEntryID: sf.playlistEntryID}, nil

	case EventEndFile:
		ef := (*eventEndFile)(unsafe.Pointer(ev.data))
		return EndFileEvent{
			Reason:                   endFileReason(ef.reason),
			Error:                    int(ef.status),
			PlaylistEntryID:          ef.playlistEntryID,
			PlaylistInsertID:         ef.playlistInsertID,
			PlaylistInsertNumEntries: int(ef.playlistInsertNumEntries),
		}, nil

	case EventClientMessage:
		msg := (*eventClientMessage)(unsafe.Pointer(ev.data))
		return ClientMessageEvent{Args: goStrings(msg.args, int(msg.numArgs))}, nil

	case EventHook:
		hook := (*eventHook)(unsafe.Pointer(ev.data))
		return HookEvent{Name: goString(hook.name), HookID: hook.id}, nil
	}

	return nil, &UnknownEventError{ID: ev.eventID}
}
