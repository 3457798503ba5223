// Package memcheckpoint is an in-memory reference implementation of the
// projection.CheckpointManager contract, for any caller happy to lose its
// checkpoint on restart (e.g. a preview or ad-hoc projection).
package memcheckpoint

import (
	"context"
	"sync"

	projection "github.com/shogotsuneto/go-projection-runtime"
)

// Manager buffers scheduled emissions in memory and immediately reports
// every EventProcessed call as a completed checkpoint, since there is no
// durability boundary to wait for.
type Manager struct {
	Bus projection.Bus

	mu      sync.Mutex
	loaded  *projection.CheckpointTag
	last    projection.CheckpointTag
	emitted []projection.EmittedEvent
}

// New returns a Manager that publishes CheckpointLoaded/CheckpointCompleted
// on bus.
func New(bus projection.Bus) *Manager {
	return &Manager{Bus: bus, last: projection.ZeroTag()}
}

// Seed pre-loads the checkpoint the next BeginLoadState call will report,
// simulating a prior run's persisted position.
func (m *Manager) Seed(tag projection.CheckpointTag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := tag
	m.loaded = &t
	m.last = tag
}

// Emitted returns every emission handed to EventProcessed so far, for
// test assertions.
func (m *Manager) Emitted() []projection.EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]projection.EmittedEvent(nil), m.emitted...)
}

// Initialize implements projection.CheckpointManager.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitted = nil
	m.last = projection.ZeroTag()
	return nil
}

// Start implements projection.CheckpointManager.
func (m *Manager) Start(ctx context.Context, from projection.CheckpointTag) error {
	return nil
}

// BeginLoadState implements projection.CheckpointManager.
func (m *Manager) BeginLoadState(ctx context.Context) error {
	m.mu.Lock()
	tag := m.loaded
	m.mu.Unlock()
	m.Bus.Publish(projection.CheckpointLoaded{Tag: tag})
	return nil
}

// EventProcessed implements projection.CheckpointManager: it records the
// emissions and immediately reports the tag as checkpointed.
func (m *Manager) EventProcessed(ctx context.Context, currentState string, emissions []projection.EmittedEvent, tag projection.CheckpointTag, progress float64) error {
	m.mu.Lock()
	m.emitted = append(m.emitted, emissions...)
	m.last = tag
	m.mu.Unlock()
	m.Bus.Publish(projection.CheckpointCompleted{Tag: tag})
	return nil
}

// RequestCheckpointToStop implements projection.CheckpointManager. There
// is nothing buffered beyond what EventProcessed already reported, so it
// always immediately reports completion at the last tag it saw (or the
// zero tag if none), satisfying the "must always eventually complete"
// contract even when there is nothing left to flush.
func (m *Manager) RequestCheckpointToStop(ctx context.Context) error {
	m.mu.Lock()
	last := m.last
	m.mu.Unlock()
	m.Bus.Publish(projection.CheckpointCompleted{Tag: last})
	return nil
}

// Stopping implements projection.CheckpointManager.
func (m *Manager) Stopping(ctx context.Context) error { return nil }

// Stopped implements projection.CheckpointManager.
func (m *Manager) Stopped(ctx context.Context) error { return nil }
