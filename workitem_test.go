package projection

import (
	"context"
	"errors"
	"testing"
)

// fakeOps implements runtimeOps for testing WorkItem.Execute and Queue
// draining without a full Runtime.
type fakeOps struct {
	processErr    error
	finalizeErr   error
	processed     []CommittedPayload
	finalized     []finalizeCall
	answered      []GetStatePayload
	nextScheduled []EmittedEvent
}

type finalizeCall struct {
	scheduled []EmittedEvent
	tag       CheckpointTag
	progress  float64
}

func (f *fakeOps) processCommittedEvent(ctx context.Context, tag CheckpointTag, payload CommittedPayload) ([]EmittedEvent, error) {
	f.processed = append(f.processed, payload)
	if f.processErr != nil {
		return nil, f.processErr
	}
	return f.nextScheduled, nil
}

func (f *fakeOps) finalizeEventProcessing(ctx context.Context, scheduled []EmittedEvent, tag CheckpointTag, progress float64) error {
	f.finalized = append(f.finalized, finalizeCall{scheduled: scheduled, tag: tag, progress: progress})
	return f.finalizeErr
}

func (f *fakeOps) answerGetState(payload GetStatePayload) {
	f.answered = append(f.answered, payload)
}

func TestWorkItemExecuteCommittedFinalizes(t *testing.T) {
	ops := &fakeOps{nextScheduled: []EmittedEvent{{EventType: "Derived"}}}
	item := &WorkItem{
		Tag:       CheckpointTag{Commit: 1},
		Kind:      KindCommitted,
		Committed: &CommittedPayload{PartitionKey: "tenant-a"},
	}

	if err := item.Execute(context.Background(), ops); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(ops.processed) != 1 {
		t.Fatalf("expected processCommittedEvent to be called once, got %d", len(ops.processed))
	}
	if len(ops.finalized) != 1 || len(ops.finalized[0].scheduled) != 1 {
		t.Fatalf("expected finalize to receive the scheduled emissions, got %+v", ops.finalized)
	}
}

func TestWorkItemExecuteCommittedStopsOnProcessError(t *testing.T) {
	expected := errors.New("handler exploded")
	ops := &fakeOps{processErr: expected}
	item := &WorkItem{Kind: KindCommitted, Committed: &CommittedPayload{}}

	err := item.Execute(context.Background(), ops)
	if !errors.Is(err, expected) {
		t.Errorf("expected %v, got %v", expected, err)
	}
	if len(ops.finalized) != 0 {
		t.Errorf("expected finalize not to be called when processing fails")
	}
}

func TestWorkItemExecuteProgressFinalizesWithProgress(t *testing.T) {
	ops := &fakeOps{}
	item := &WorkItem{Kind: KindProgress, Progress: &ProgressPayload{Progress: 0.5}}

	if err := item.Execute(context.Background(), ops); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(ops.finalized) != 1 || ops.finalized[0].progress != 0.5 {
		t.Fatalf("expected finalize called with progress 0.5, got %+v", ops.finalized)
	}
}

func TestWorkItemExecuteGetStateAnswersWithoutFinalizing(t *testing.T) {
	ops := &fakeOps{}
	item := &WorkItem{Kind: KindGetState, GetState: &GetStatePayload{Partition: "tenant-a"}}

	if err := item.Execute(context.Background(), ops); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(ops.answered) != 1 || ops.answered[0].Partition != "tenant-a" {
		t.Fatalf("expected answerGetState to be called with the partition, got %+v", ops.answered)
	}
	if len(ops.finalized) != 0 {
		t.Errorf("expected get-state not to finalize with the checkpoint manager")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindCommitted:           "committed",
		KindProgress:            "progress",
		KindCheckpointSuggested: "checkpoint-suggested",
		KindGetState:            "get-state",
		Kind(99):                "unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
