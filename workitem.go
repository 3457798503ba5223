package projection

import "context"

// Kind discriminates the payload carried by a WorkItem.
type Kind int

const (
	// KindCommitted carries one committed event to run through the handler.
	KindCommitted Kind = iota
	// KindProgress carries a subscription progress report.
	KindProgress
	// KindCheckpointSuggested carries a manager- or pressure-raised
	// checkpoint suggestion.
	KindCheckpointSuggested
	// KindGetState carries an out-of-band partition state query.
	KindGetState
)

func (k Kind) String() string {
	switch k {
	case KindCommitted:
		return "committed"
	case KindProgress:
		return "progress"
	case KindCheckpointSuggested:
		return "checkpoint-suggested"
	case KindGetState:
		return "get-state"
	default:
		return "unknown"
	}
}

// CommittedPayload is the KindCommitted payload.
type CommittedPayload struct {
	PartitionKey string
	Event        CommittedEventReceived
	Category     string
}

// ProgressPayload is the KindProgress payload.
type ProgressPayload struct {
	Progress float64
}

// CheckpointSuggestedPayload is the KindCheckpointSuggested payload.
type CheckpointSuggestedPayload struct{}

// GetStatePayload is the KindGetState payload.
type GetStatePayload struct {
	Partition string
	Reply     chan GetStateResult
}

// WorkItem is one immutable unit of queued work, carrying the tag it was
// admitted at and its kind-specific payload. Work items are constructed by
// the runtime's input handlers and executed by the queue in tag order
// (except KindGetState, which bypasses ordering).
type WorkItem struct {
	Tag                 CheckpointTag
	Kind                Kind
	Committed           *CommittedPayload
	Progress            *ProgressPayload
	CheckpointSuggested *CheckpointSuggestedPayload
	GetState            *GetStatePayload
}

// runtimeOps is the narrow handle work items execute against. It exposes
// only the operations a work item needs, not the full Runtime, per the
// "back-references are graph edges, not ownership" design note: the
// runtime is the sole owner of cache, queue, and checkpoint manager, and
// work items receive a borrowed handle.
type runtimeOps interface {
	processCommittedEvent(ctx context.Context, tag CheckpointTag, payload CommittedPayload) (scheduled []EmittedEvent, err error)
	finalizeEventProcessing(ctx context.Context, scheduled []EmittedEvent, tag CheckpointTag, progress float64) error
	answerGetState(payload GetStatePayload)
}

// Execute runs the work item against the runtime handle. Committed events
// run the full §4.H algorithm; committed, progress, and
// checkpoint-suggested items then finalize with the checkpoint manager so
// their tag is recorded as done. KindGetState only answers its query and
// does not finalize, since it carries no position in the processing order.
func (w *WorkItem) Execute(ctx context.Context, ops runtimeOps) error {
	switch w.Kind {
	case KindCommitted:
		scheduled, err := ops.processCommittedEvent(ctx, w.Tag, *w.Committed)
		if err != nil {
			return err
		}
		return ops.finalizeEventProcessing(ctx, scheduled, w.Tag, 0)
	case KindProgress:
		return ops.finalizeEventProcessing(ctx, nil, w.Tag, w.Progress.Progress)
	case KindCheckpointSuggested:
		return ops.finalizeEventProcessing(ctx, nil, w.Tag, 0)
	case KindGetState:
		ops.answerGetState(*w.GetState)
		return nil
	default:
		return nil
	}
}
