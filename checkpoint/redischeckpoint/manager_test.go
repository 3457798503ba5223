package redischeckpoint

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	projection "github.com/shogotsuneto/go-projection-runtime"
)

type recordingBus struct {
	published []any
}

func (b *recordingBus) Publish(msg any) {
	b.published = append(b.published, msg)
}

// newTestClient connects to a local Redis instance and skips the test if
// one is not reachable; there is no Redis fake in the retrieved corpus to
// substitute, so this exercises the real client the way an integration
// suite would.
func newTestClient(t *testing.T) redis.UniversalClient {
	t.Helper()
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"localhost:6379"}})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("no local redis available: %v", err)
	}
	return client
}

func TestManagerBeginLoadStateNoCheckpoint(t *testing.T) {
	client := newTestClient(t)
	defer client.Close()

	key := "projection-runtime-test:no-checkpoint"
	client.Del(context.Background(), key)

	bus := &recordingBus{}
	version := projection.ProjectionVersion{ID: "test", Epoch: 1, Version: 1}
	m := New(client, bus, key, version)

	if err := m.BeginLoadState(context.Background()); err != nil {
		t.Fatalf("begin load state: %v", err)
	}
	loaded, ok := bus.published[0].(projection.CheckpointLoaded)
	if !ok || loaded.Tag != nil {
		t.Fatalf("expected an absent checkpoint, got %+v", bus.published[0])
	}
}

func TestManagerEventProcessedWritesCheckpointAndCompletes(t *testing.T) {
	client := newTestClient(t)
	defer client.Close()

	key := "projection-runtime-test:event-processed"
	pendingKey := key + ":pending"
	ctx := context.Background()
	client.Del(ctx, key, pendingKey)
	defer client.Del(ctx, key, pendingKey)

	bus := &recordingBus{}
	version := projection.ProjectionVersion{ID: "test", Epoch: 1, Version: 1}
	m := New(client, bus, key, version)

	tag := projection.CheckpointTag{Commit: 5}
	emissions := []projection.EmittedEvent{{EventType: "Derived", Data: []byte("payload")}}

	if err := m.EventProcessed(ctx, "state", emissions, tag, 1.0); err != nil {
		t.Fatalf("event processed: %v", err)
	}

	completed, ok := bus.published[0].(projection.CheckpointCompleted)
	if !ok || !completed.Tag.Equal(tag) {
		t.Fatalf("expected CheckpointCompleted at %v, got %+v", tag, bus.published[0])
	}

	raw, err := client.Get(ctx, key).Bytes()
	if err != nil {
		t.Fatalf("get checkpoint: %v", err)
	}
	parsed, err := projection.ParseTagWithVersion(raw, version)
	if err != nil {
		t.Fatalf("parse checkpoint: %v", err)
	}
	if parsed.Tag == nil || !parsed.Tag.Equal(tag) {
		t.Errorf("expected the durable checkpoint to record %v, got %v", tag, parsed.Tag)
	}

	length, err := client.LLen(ctx, pendingKey).Result()
	if err != nil {
		t.Fatalf("llen: %v", err)
	}
	if length != 1 {
		t.Errorf("expected 1 buffered emission, got %d", length)
	}
}

func TestManagerVersionMismatchTreatedAsAbsent(t *testing.T) {
	client := newTestClient(t)
	defer client.Close()

	key := "projection-runtime-test:version-mismatch"
	ctx := context.Background()
	client.Del(ctx, key)
	defer client.Del(ctx, key)

	bus := &recordingBus{}
	oldVersion := projection.ProjectionVersion{ID: "test", Epoch: 1, Version: 1}
	writer := New(client, bus, key, oldVersion)
	tag := projection.CheckpointTag{Commit: 1}
	if err := writer.EventProcessed(ctx, "state", nil, tag, 1.0); err != nil {
		t.Fatalf("event processed: %v", err)
	}

	newVersion := projection.ProjectionVersion{ID: "test", Epoch: 1, Version: 2}
	reader := New(client, bus, key, newVersion)
	bus.published = nil
	if err := reader.BeginLoadState(ctx); err != nil {
		t.Fatalf("begin load state: %v", err)
	}
	loaded := bus.published[0].(projection.CheckpointLoaded)
	if loaded.Tag != nil {
		t.Errorf("expected a version mismatch to be treated as no checkpoint, got %v", loaded.Tag)
	}
}
