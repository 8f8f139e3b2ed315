package bind

import "time"

// EventKind names a command-stream operation.
type EventKind string

const (
	EventBuild    EventKind = "build"
	EventAllocate EventKind = "allocate"
	EventRelease  EventKind = "release"
	EventUpload   EventKind = "upload"
	EventDownload EventKind = "download"
	EventCopy     EventKind = "copy"
	EventDispatch EventKind = "dispatch"
)

// Event describes one completed operation. Slot is -1 when the operation
// was not addressed through a slot.
type Event struct {
	Kind     EventKind     `json:"kind"`
	Session  string        `json:"session,omitempty"`
	Kernel   string        `json:"kernel,omitempty"`
	Slot     int           `json:"slot"`
	Bytes    int64         `json:"bytes,omitempty"`
	Global   []int         `json:"global,omitempty"`
	Local    []int         `json:"local,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`
}
