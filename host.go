package projection

import (
	"context"
	"fmt"
	"time"
)

// ChannelBus is an in-process Bus backed by a buffered channel. It is the
// default wiring for a single-process deployment where the runtime, its
// subscription, and its checkpoint manager all run as goroutines
// exchanging messages through one queue, matching the "single logical
// thread of execution provided by a message bus" the runtime assumes
// (SPEC_FULL.md §5).
type ChannelBus struct {
	messages chan any
	watchers []chan any
}

// NewChannelBus returns a ChannelBus with the given buffer size.
func NewChannelBus(buffer int) *ChannelBus {
	return &ChannelBus{messages: make(chan any, buffer)}
}

// Publish implements Bus by enqueuing msg for the Host's pump loop and
// fanning it out to every Watch subscriber.
func (b *ChannelBus) Publish(msg any) {
	b.messages <- msg
	for _, w := range b.watchers {
		select {
		case w <- msg:
		default:
			// A slow watcher drops messages rather than blocking the bus;
			// watchers that need every message should size their channel
			// generously.
		}
	}
}

// Watch registers a new subscriber channel that receives a copy of every
// published message, for collaborators outside the Host (typically a
// Subscription, waiting for SubscribeProjection/UnsubscribeProjection) to
// observe the bus without competing with Host.Run's own consumption.
func (b *ChannelBus) Watch() <-chan any {
	ch := make(chan any, 32)
	b.watchers = append(b.watchers, ch)
	return ch
}

// Host pumps messages off a ChannelBus and dispatches each to the
// matching Runtime handler, one at a time, on a single goroutine. This is
// the same run-loop shape as the teacher's Runner.Run: pull work, handle
// it, sleep briefly when there is none, and stop on context cancellation
// or a configured iteration limit — reworked here to dispatch typed bus
// messages to the lifecycle state machine instead of calling a single
// Apply function directly.
type Host struct {
	Runtime    *Runtime
	Bus        *ChannelBus
	IdleSleep  time.Duration // default: 50ms between empty polls
	MaxTicks   int           // 0 = unlimited (useful for tests)
	Logger     func(msg string, kv ...any) // optional, nil-safe
}

func (h *Host) logf(msg string, kv ...any) {
	if h.Logger != nil {
		h.Logger(msg, kv...)
	}
}

// Run starts the projection and pumps its bus until ctx is canceled, the
// runtime reaches Stopped or Faulted, or MaxTicks messages have been
// dispatched.
func (h *Host) Run(ctx context.Context) error {
	idleSleep := h.IdleSleep
	if idleSleep <= 0 {
		idleSleep = 50 * time.Millisecond
	}

	h.logf("host starting", "idleSleep", idleSleep, "maxTicks", h.MaxTicks)

	if err := h.Runtime.Start(ctx); err != nil {
		h.logf("start error", "error", err)
		return err
	}

	dispatched := 0
	for {
		select {
		case <-ctx.Done():
			h.logf("host stopped due to context cancellation")
			return ctx.Err()
		default:
		}

		if h.MaxTicks > 0 && dispatched >= h.MaxTicks {
			h.logf("host stopped after reaching MaxTicks", "maxTicks", h.MaxTicks, "dispatched", dispatched)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-h.Bus.messages:
			if err := h.dispatch(ctx, msg); err != nil {
				h.logf("dispatch error", "error", err, "message", fmt.Sprintf("%T", msg))
			}
			dispatched++
		case <-time.After(idleSleep):
			state := h.Runtime.State()
			if state == StateStopped || state == StateFaulted {
				h.logf("host stopped", "state", state)
				return nil
			}
		}
	}
}

// dispatch routes one bus message to the matching Runtime handler. Output
// messages (SubscribeProjection, Started, Stopped, Faulted,
// StatisticsReport, UnsubscribeProjection) are left for the caller's own
// consumer of h.Bus and are not handled here; only messages the runtime
// itself is meant to consume are dispatched.
func (h *Host) dispatch(ctx context.Context, msg any) error {
	switch m := msg.(type) {
	case CommittedEventReceived:
		return h.Runtime.HandleCommittedEventReceived(ctx, m)
	case ProgressChanged:
		return h.Runtime.HandleProgressChanged(ctx, m)
	case CheckpointSuggested:
		return h.Runtime.HandleCheckpointSuggested(ctx, m)
	case CheckpointLoaded:
		return h.Runtime.HandleCheckpointLoaded(ctx, m)
	case CheckpointCompleted:
		return h.Runtime.HandleCheckpointCompleted(ctx, m)
	case PauseRequested:
		return h.Runtime.HandlePauseRequested(ctx)
	case StopRequested:
		return h.Runtime.HandleStop(ctx)
	case RestartRequested:
		return h.Runtime.HandleRestartRequested(ctx)
	case GetState:
		return h.Runtime.HandleGetState(ctx, m)
	case Tick:
		return h.Runtime.HandleTick(ctx)
	case ReadStreamEventsBackwardCompleted:
		return h.Runtime.HandleReadStreamEventsBackwardCompleted(ctx, m)
	case UpdateStatistics:
		h.Runtime.HandleUpdateStatistics(ctx)
		return nil
	default:
		// Outbound-only message (SubscribeProjection, Started, Stopped,
		// Faulted, StatisticsReport, UnsubscribeProjection): nothing for
		// the host to do; the surrounding system's own bus consumer
		// handles these.
		return nil
	}
}
