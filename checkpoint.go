package projection

import "context"

// EmittedEvent is a derived event produced by the handler, scheduled for
// durable persistence by the checkpoint manager. Emissions scheduled for
// one work item are handed to the manager atomically, before any emission
// from a work item at a strictly later tag.
type EmittedEvent struct {
	Stream    string
	EventID   string
	EventType string
	Data      []byte
	Metadata  []byte
}

// CheckpointManager is the external contract the runtime coordinates
// durable writes through. Its implementation lives outside this package;
// see checkpoint/memcheckpoint and checkpoint/redischeckpoint for
// reference implementations, and SPEC_FULL.md's DOMAIN STACK section for
// how each is grounded.
//
// Every method may return immediately without having durably completed
// its work; completion for a given tag is reported later via a
// CheckpointCompleted message on the Bus the manager was constructed
// with. The one exception is RequestCheckpointToStop, which must
// *always* eventually produce a CheckpointCompleted, even if there was
// nothing to flush.
type CheckpointManager interface {
	// Initialize resets any in-memory buffering the manager holds. Called
	// whenever the lifecycle resets to Initial.
	Initialize(ctx context.Context) error

	// Start records the tag processing is resuming from.
	Start(ctx context.Context, from CheckpointTag) error

	// BeginLoadState asks the manager to load the last durable checkpoint.
	// It must eventually publish a CheckpointLoaded message: {Tag: nil}
	// if none exists yet.
	BeginLoadState(ctx context.Context) error

	// EventProcessed durably records the work done for one work item: the
	// partition's current state (for StateUpdated recovery bookkeeping,
	// where relevant), the batch of emissions scheduled by it, the tag it
	// was processed at, and a progress hint. The manager may buffer this
	// internally until it decides to take a checkpoint boundary, at which
	// point it publishes CheckpointCompleted for the highest tag it has
	// durably flushed.
	EventProcessed(ctx context.Context, currentState string, emissions []EmittedEvent, tag CheckpointTag, progress float64) error

	// RequestCheckpointToStop asks the manager to flush a final
	// checkpoint synchronously with respect to the lifecycle: it must
	// always eventually publish CheckpointCompleted, even when nothing
	// was pending.
	RequestCheckpointToStop(ctx context.Context) error

	// Stopping notifies the manager the projection is stopping.
	Stopping(ctx context.Context) error

	// Stopped notifies the manager the projection has stopped.
	Stopped(ctx context.Context) error
}
