package memcheckpoint

import (
	"context"
	"testing"

	projection "github.com/shogotsuneto/go-projection-runtime"
)

type recordingBus struct {
	published []any
}

func (b *recordingBus) Publish(msg any) {
	b.published = append(b.published, msg)
}

func TestManagerBeginLoadStateNoCheckpoint(t *testing.T) {
	bus := &recordingBus{}
	m := New(bus)

	if err := m.BeginLoadState(context.Background()); err != nil {
		t.Fatalf("begin load state: %v", err)
	}
	if len(bus.published) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(bus.published))
	}
	loaded, ok := bus.published[0].(projection.CheckpointLoaded)
	if !ok {
		t.Fatalf("expected a CheckpointLoaded message, got %T", bus.published[0])
	}
	if loaded.Tag != nil {
		t.Errorf("expected a nil tag when no checkpoint was seeded, got %v", loaded.Tag)
	}
}

func TestManagerBeginLoadStateWithSeed(t *testing.T) {
	bus := &recordingBus{}
	m := New(bus)
	seeded := projection.CheckpointTag{Commit: 7}
	m.Seed(seeded)

	if err := m.BeginLoadState(context.Background()); err != nil {
		t.Fatalf("begin load state: %v", err)
	}
	loaded := bus.published[0].(projection.CheckpointLoaded)
	if loaded.Tag == nil || !loaded.Tag.Equal(seeded) {
		t.Errorf("expected seeded tag %v, got %v", seeded, loaded.Tag)
	}
}

func TestManagerEventProcessedRecordsEmissionsAndCompletes(t *testing.T) {
	bus := &recordingBus{}
	m := New(bus)
	tag := projection.CheckpointTag{Commit: 1}
	emissions := []projection.EmittedEvent{{EventType: "Derived"}}

	if err := m.EventProcessed(context.Background(), "state", emissions, tag, 1.0); err != nil {
		t.Fatalf("event processed: %v", err)
	}
	if len(m.Emitted()) != 1 {
		t.Fatalf("expected 1 emitted event recorded, got %d", len(m.Emitted()))
	}
	completed, ok := bus.published[0].(projection.CheckpointCompleted)
	if !ok || !completed.Tag.Equal(tag) {
		t.Fatalf("expected CheckpointCompleted at %v, got %+v", tag, bus.published[0])
	}
}

func TestManagerRequestCheckpointToStopReportsLastTag(t *testing.T) {
	bus := &recordingBus{}
	m := New(bus)
	tag := projection.CheckpointTag{Commit: 3}

	if err := m.EventProcessed(context.Background(), "state", nil, tag, 1.0); err != nil {
		t.Fatalf("event processed: %v", err)
	}

	if err := m.RequestCheckpointToStop(context.Background()); err != nil {
		t.Fatalf("request checkpoint to stop: %v", err)
	}

	last := bus.published[len(bus.published)-1].(projection.CheckpointCompleted)
	if !last.Tag.Equal(tag) {
		t.Errorf("expected the stop-flush to report the last processed tag %v, got %v", tag, last.Tag)
	}
}

func TestManagerInitializeClearsBuffer(t *testing.T) {
	bus := &recordingBus{}
	m := New(bus)
	if err := m.EventProcessed(context.Background(), "state", []projection.EmittedEvent{{EventType: "Derived"}}, projection.CheckpointTag{Commit: 1}, 1.0); err != nil {
		t.Fatalf("event processed: %v", err)
	}

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if len(m.Emitted()) != 0 {
		t.Errorf("expected initialize to clear buffered emissions, got %d", len(m.Emitted()))
	}
}
