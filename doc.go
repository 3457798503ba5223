// Package projection implements the runtime of an event-sourced projection:
// a single-threaded, message-driven component that subscribes to an ordered
// stream of committed events, feeds each one through a user-supplied
// stateful handler, tracks derived per-partition state in memory, emits
// derived events, and periodically checkpoints its position so processing
// can resume exactly after a restart.
//
// Users fully own:
//   - the event-store read/write client (see Subscription and ReadDispatcher)
//   - where/how checkpoints and emitted events are durably persisted (see
//     the CheckpointManager contract and the checkpoint/memcheckpoint and
//     checkpoint/redischeckpoint reference implementations)
//   - the projection's own business logic (see Handler)
//
// The runtime is generic: it drives the lifecycle state machine, the
// ordered work queue, and the partition state cache; everything else is an
// injected collaborator reached over the Bus. Delivery from the underlying
// event store is at-least-once; Handler.Handle must be idempotent.
//
// This package depends on github.com/shogotsuneto/go-simple-eventstore for
// the underlying Consumer and event types consumed by Subscription.
package projection
