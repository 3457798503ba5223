package projection

import "github.com/google/uuid"

// Bus is the injected capability the runtime uses to publish outbound
// messages. It is deliberately narrow: send-only, message-typed, with no
// process-wide singleton. A real deployment backs it with whatever
// pub/sub transport the surrounding system already uses; tests back it
// with a slice-recording fake (see recordingBus in runtime_test.go).
type Bus interface {
	Publish(msg any)
}

// BusFunc adapts a plain function to the Bus interface.
type BusFunc func(msg any)

// Publish implements Bus.
func (f BusFunc) Publish(msg any) { f(msg) }

// Outbound messages published by the runtime.

// SubscribeProjection asks the subscription source to start delivering
// CommittedEventReceived messages from FromTag onward, numbering them from
// sequence 0.
type SubscribeProjection struct {
	FromTag CheckpointTag
}

// UnsubscribeProjection asks the subscription source to stop delivering
// events for this projection.
type UnsubscribeProjection struct{}

// Started is published once the projection has subscribed and entered
// Running.
type Started struct{}

// Stopped is published once the projection has flushed its final
// checkpoint and reached the Stopped state.
type Stopped struct{}

// Faulted is published once the projection has flushed its final
// checkpoint (if any) and reached the Faulted state.
type Faulted struct {
	Reason string
}

// StatisticsReport is published in response to an UpdateStatistics input.
type StatisticsReport struct {
	Stats Statistics
}

// Tick is self-scheduled: the runtime publishes at most one outstanding
// Tick at a time and consumes it as an input to drive further queue
// processing without blocking the bus.
type Tick struct{}

// Inbound messages consumed by the runtime.

// CommittedEventReceived carries one committed event from the
// subscription, numbered by SubscriptionSeq for the sequence guard.
type CommittedEventReceived struct {
	SubscriptionSeq int64
	StreamID        string
	EventType       string
	EventID         string
	SequenceNumber  int64
	Position        int64
	Cursor          string
	Metadata        []byte
	Data            []byte
}

// ProgressChanged reports subscription progress (e.g. percent caught up)
// at a given tag; it is admitted to the queue with allowCurrentPosition
// since it may repeat the last committed tag.
type ProgressChanged struct {
	SubscriptionSeq int64
	Tag             CheckpointTag
	Progress        float64
}

// CheckpointSuggested is raised by the checkpoint manager (or the queue's
// own pending-events pressure) when internal pressure suggests a
// checkpoint boundary should be taken at Tag.
type CheckpointSuggested struct {
	Tag CheckpointTag
}

// CheckpointLoaded is the checkpoint manager's reply to BeginLoadState. A
// nil Tag means no prior checkpoint exists; start from zero.
type CheckpointLoaded struct {
	Tag   *CheckpointTag
	State []byte
}

// CheckpointCompleted is the checkpoint manager's notification that every
// work item up to and including Tag has been durably recorded. The
// runtime treats it as the unlock signal for the partition cache and, in
// Stopping/FaultedStopping/Paused, as the trigger to advance the
// lifecycle.
type CheckpointCompleted struct {
	Tag CheckpointTag
}

// PauseRequested asks a Running projection to pause.
type PauseRequested struct{}

// RestartRequested asks the projection to reset to Initial and restart
// from Start, canceling any in-flight read requests first.
type RestartRequested struct{}

// StopRequested asks a subscribed, running, paused, or resumed projection
// to stop, flushing a final checkpoint before reaching Stopped.
type StopRequested struct{}

// GetState is an out-of-band, tag-bypassing query for a partition's
// current cached state.
type GetState struct {
	Partition string
	Reply     chan GetStateResult
}

// GetStateResult is the synchronous reply to a GetState query.
type GetStateResult struct {
	State string
	Found bool
	Err   error
}

// UpdateStatistics requests a StatisticsReport publish.
type UpdateStatistics struct{}

// ReadStreamEventsBackwardCompleted is the read dispatcher's reply to a
// backward partition-state scan issued during recovery (see
// ReadDispatcher and Runtime.ensurePartitionLoaded).
type ReadStreamEventsBackwardCompleted struct {
	RequestID   uuid.UUID
	Events      []StreamEvent
	EndOfStream bool
	Err         error
}

// StreamEvent is one event read back from a partition state stream during
// recovery.
type StreamEvent struct {
	EventType string
	Data      []byte
	Metadata  []byte
	Tag       CheckpointTag
}
