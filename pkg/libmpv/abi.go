package libmpv

// Native layouts and constants mirrored from mpv/client.h (client API 2.x,
// 64-bit platforms). Pointer fields are kept as uintptr: the memory they
// reference is either owned by libmpv or pinned for the duration of a call.

// Format is the mpv_format tag.
type Format int32

const (
	FormatNone      Format = 0
	FormatString    Format = 1
	FormatOSDString Format = 2
	FormatFlag      Format = 3
	FormatInt64     Format = 4
	FormatDouble    Format = 5
	FormatNode      Format = 6
	FormatNodeArray Format = 7
	FormatNodeMap   Format = 8
	FormatByteArray Format = 9
)

// EventID is the mpv_event_id discriminant.
type EventID int32

const (
	EventNone             EventID = 0
	EventShutdown         EventID = 1
	EventLogMessage       EventID = 2
	EventGetPropertyReply EventID = 3
	EventSetPropertyReply EventID = 4
	EventCommandReply     EventID = 5
	EventStartFile        EventID = 6
	EventEndFile          EventID = 7
	EventFileLoaded       EventID = 8
	EventIdle             EventID = 11
	EventTick             EventID = 14
	EventClientMessage    EventID = 16
	EventVideoReconfig    EventID = 17
	EventAudioReconfig    EventID = 18
	EventSeek             EventID = 20
	EventPlaybackRestart  EventID = 21
	EventPropertyChange   EventID = 22
	EventQueueOverflow    EventID = 24
	EventHook             EventID = 25
)

// Status is an mpv_error code. Negative values are failures.
type Status int32

const (
	StatusSuccess             Status = 0
	StatusEventQueueFull      Status = -1
	StatusNoMem               Status = -2
	StatusUninitialized       Status = -3
	StatusInvalidParameter    Status = -4
	StatusOptionNotFound      Status = -5
	StatusOptionFormat        Status = -6
	StatusOptionError         Status = -7
	StatusPropertyNotFound    Status = -8
	StatusPropertyFormat      Status = -9
	StatusPropertyUnavailable Status = -10
	StatusPropertyError       Status = -11
	StatusCommand             Status = -12
	StatusLoadingFailed       Status = -13
	StatusAOInitFailed        Status = -14
	StatusVOInitFailed        Status = -15
	StatusNothingToPlay       Status = -16
	StatusUnknownFormat       Status = -17
	StatusUnsupported         Status = -18
	StatusNotImplemented      Status = -19
	StatusGeneric             Status = -20
)

// mpv_end_file_reason values.
const (
	endFileReasonEOF      = 0
	endFileReasonStop     = 2
	endFileReasonQuit     = 3
	endFileReasonError    = 4
	endFileReasonRedirect = 5
)

// node is struct mpv_node: an 8-byte union followed by the format tag.
type node struct {
	u      uint64
	format Format
}

// nodeList is struct mpv_node_list.
type nodeList struct {
	num    int32
	values uintptr
	keys   uintptr
}

// byteArray is struct mpv_byte_array.
type byteArray struct {
	data uintptr
	size uintptr
}

// event is struct mpv_event.
type event struct {
	eventID       EventID
	status        int32
	replyUserdata uint64
	data          uintptr
}

// eventProperty is struct mpv_event_property.
type eventProperty struct {
	name   uintptr
	format Format
	data   uintptr
}

// eventLogMessage is struct mpv_event_log_message.
type eventLogMessage struct {
	prefix   uintptr
	level    uintptr
	text     uintptr
	logLevel int32
}

// eventStartFile is struct mpv_event_start_file.
type eventStartFile struct {
	playlistEntryID int64
}

// eventEndFile is struct mpv_event_end_file.
type eventEndFile struct {
	reason                   int32
	status                   int32
	playlistEntryID          int64
	playlistInsertID         int64
	playlistInsertNumEntries int32
}

// eventClientMessage is struct mpv_event_client_message.
type eventClientMessage struct {
	numArgs int32
	args    uintptr
}

// eventHook is struct mpv_event_hook.
type eventHook struct {
	name uintptr
	id   uint64
}

// eventCommand is struct mpv_event_command.
type eventCommand struct {
	result node
}
