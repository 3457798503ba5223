package projection

import "context"

// EventContext carries everything the handler needs to process one
// committed event.
type EventContext struct {
	Position       int64
	StreamID       string
	EventType      string
	Category       string
	EventID        string
	SequenceNumber int64
	Metadata       []byte
	Data           []byte
}

// Handler is the user-supplied, stateful projection logic. It is loaded
// with per-partition state only when the active partition changes
// (SPEC_FULL.md §3, "Ownership").
type Handler interface {
	// Initialize is called instead of Load when the partition about to be
	// handled has no prior state (a fresh partition).
	Initialize()

	// Load is called when the runtime switches the handler onto a
	// different partition than the one it is currently loaded with,
	// passing that partition's current cached (or recovered) state.
	Load(state string)

	// Handle processes one committed event against the handler's
	// currently loaded partition state. processed reports whether the
	// event produced a state change or emissions that should be
	// persisted; newState is the partition's state after handling
	// (ignored if processed is false); emitted is the batch of derived
	// events to schedule for persistence.
	Handle(ctx context.Context, event EventContext) (processed bool, newState string, emitted []EmittedEvent, err error)
}
