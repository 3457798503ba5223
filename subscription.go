package projection

import (
	"context"
	"time"

	es "github.com/shogotsuneto/go-simple-eventstore"
)

// Subscription adapts an underlying github.com/shogotsuneto/go-simple-eventstore
// Consumer into the CommittedEventReceived/ProgressChanged bus messages the
// runtime consumes, numbering them for the subscription sequence guard
// (SPEC_FULL.md §4.F).
//
// It owns exactly the polling loop the teacher's Runner used to own
// directly (see the teacher's projector.go Run method); the runtime now
// owns everything downstream of "here is the next committed event". go-
// simple-eventstore's es.Envelope carries only EventID, Type, and Data (no
// stream identity or metadata of its own), so this adapter uses the
// envelope's Type as the routing key EventFilter and PartitionSelector see
// as StreamID; a richer Consumer implementation may naturally carry a
// distinct stream id in its own Cursor/Envelope wiring.
type Subscription struct {
	Source    es.Consumer
	BatchSize int
	IdleSleep time.Duration
	Logger    func(msg string, kv ...any)

	seq int64
}

func (s *Subscription) logf(msg string, kv ...any) {
	if s.Logger != nil {
		s.Logger(msg, kv...)
	}
}

// Run polls Source starting at cursor and publishes one CommittedEventReceived
// per event (numbered from 0) followed by a ProgressChanged per batch, until
// ctx is canceled or a fetch/commit error occurs.
func (s *Subscription) Run(ctx context.Context, bus Bus, cursor es.Cursor) error {
	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = 512
	}
	idleSleep := s.IdleSleep
	if idleSleep <= 0 {
		idleSleep = 200 * time.Millisecond
	}

	s.logf("subscription starting", "cursor", cursor, "batchSize", batchSize)

	for {
		select {
		case <-ctx.Done():
			s.logf("subscription stopped due to context cancellation")
			return ctx.Err()
		default:
		}

		batch, next, err := s.Source.Fetch(ctx, cursor, batchSize)
		if err != nil {
			s.logf("fetch error", "error", err)
			return err
		}

		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(idleSleep):
			}
			continue
		}

		for i, env := range batch {
			bus.Publish(CommittedEventReceived{
				SubscriptionSeq: s.seq,
				StreamID:        env.Type,
				EventType:       env.Type,
				EventID:         env.EventID,
				SequenceNumber:  int64(i),
				Position:        s.seq,
				Cursor:          string(next),
				Data:            env.Data,
			})
			s.seq++
		}

		bus.Publish(ProgressChanged{SubscriptionSeq: s.seq, Tag: CheckpointTag{Commit: s.seq - 1, Cursor: string(next)}, Progress: 1})
		s.seq++

		if err := s.Source.Commit(ctx, next); err != nil {
			s.logf("commit error", "error", err)
			return err
		}
		cursor = next
	}
}
