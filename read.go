package projection

import (
	"context"

	"github.com/google/uuid"
)

// ReadDispatcher is the external event-store read client the runtime
// delegates backward partition-state scans to. It is explicitly out of
// scope for this module (SPEC_FULL.md §1): the runtime only depends on
// this narrow interface, never on a concrete store client.
//
// A call must never block the runtime's message loop; the result arrives
// later as a ReadStreamEventsBackwardCompleted message carrying the same
// RequestID, delivered on the same Bus the runtime already listens on.
type ReadDispatcher interface {
	// ReadStreamBackward starts an asynchronous backward read of stream,
	// starting just before beforeExclusive (or from the end of the
	// stream if beforeExclusive is the zero tag), returning up to
	// maxCount events per page. It returns the request id the eventual
	// reply will be correlated by.
	ReadStreamBackward(ctx context.Context, stream string, beforeExclusive CheckpointTag, maxCount int) (uuid.UUID, error)

	// CancelRead cancels a previously issued read; used when the
	// lifecycle resets to Initial so a late reply cannot mutate a fresh
	// cache (SPEC_FULL.md §5, "Cancellation & timeouts").
	CancelRead(ctx context.Context, requestID uuid.UUID)
}

// loadStateRequest is a continuation for an outstanding backward scan:
// which partition and originating work-item tag it was issued for, so the
// eventual reply can be reconstructed without a closure captured across a
// suspension point (SPEC_FULL.md's design notes on cooperative
// suspension).
type loadStateRequest struct {
	partitionKey string
	tag          CheckpointTag
	stream       string
}
