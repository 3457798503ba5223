// Command projectionrunner wires the runtime to a Redis checkpoint
// manager and an env-loaded configuration, in the same spirit as the
// teacher's examples/pg_to_pg/main.go: a runnable demonstration of
// loading a starting position from user-managed storage, running the
// projection, and restarting from the saved checkpoint without
// reprocessing past events.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	projection "github.com/shogotsuneto/go-projection-runtime"
	"github.com/shogotsuneto/go-projection-runtime/checkpoint/redischeckpoint"
	es "github.com/shogotsuneto/go-simple-eventstore"
)

// tagAdded and tagRemoved mirror the teacher's pg_to_pg product-tag
// projection example, now expressed against the Handler interface
// instead of a single ApplyFunc.
type tagAdded struct {
	ProductID string `json:"product_id"`
	Tag       string `json:"tag"`
}

type tagRemoved struct {
	ProductID string `json:"product_id"`
	Tag       string `json:"tag"`
}

// productTagsHandler accumulates a single set of tag names across all
// products (the product id is not recorded) into the root partition's
// state, JSON-encoded, so a restart can recover it from the
// StateUpdated trail without touching the source database at all.
type productTagsHandler struct {
	tags map[string]struct{}
}

func (h *productTagsHandler) Initialize() {
	h.tags = map[string]struct{}{}
}

func (h *productTagsHandler) Load(state string) {
	h.tags = map[string]struct{}{}
	if state == "" {
		return
	}
	var tags []string
	if err := json.Unmarshal([]byte(state), &tags); err == nil {
		for _, t := range tags {
			h.tags[t] = struct{}{}
		}
	}
}

func (h *productTagsHandler) Handle(ctx context.Context, event projection.EventContext) (bool, string, []projection.EmittedEvent, error) {
	switch event.EventType {
	case "product.tag_added":
		var e tagAdded
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return false, "", nil, fmt.Errorf("unmarshal tag_added: %w", err)
		}
		h.tags[e.Tag] = struct{}{}
	case "product.tag_removed":
		var e tagRemoved
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return false, "", nil, fmt.Errorf("unmarshal tag_removed: %w", err)
		}
		delete(h.tags, e.Tag)
	default:
		return false, "", nil, nil
	}

	tags := make([]string, 0, len(h.tags))
	for t := range h.tags {
		tags = append(tags, t)
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return false, "", nil, fmt.Errorf("marshal tag set: %w", err)
	}
	return true, string(encoded), nil, nil
}

func main() {
	cfg, err := projection.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{redisAddr}})
	defer client.Close()

	bus := projection.NewChannelBus(256)
	version := projection.ProjectionVersion{ID: "product-tags", Epoch: 1, Version: 1}
	manager := redischeckpoint.New(client, bus, "projections:product-tags:checkpoint", version)
	manager.UnhandledBytesThreshold = cfg.CheckpointUnhandledBytesThreshold

	runtime := &projection.Runtime{
		Name:     "product-tags",
		Handler:  &productTagsHandler{},
		Manager:  manager,
		Bus:      bus,
		Reader:   noopReadDispatcher{}, // this projection keeps a single global partition; recovery reads never fire
		Selector: projection.RootPartitionSelector{},
		Config:   cfg,
		Logger: func(msg string, kv ...any) {
			log.Printf("[projection] %s %v", msg, kv)
		},
	}

	source := newEventSource()
	sub := &projection.Subscription{
		Source: source,
		Logger: func(msg string, kv ...any) {
			log.Printf("[subscription] %s %v", msg, kv)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go watchAndSubscribe(ctx, bus, sub)

	host := &projection.Host{
		Runtime: runtime,
		Bus:     bus,
		Logger: func(msg string, kv ...any) {
			log.Printf("[host] %s %v", msg, kv)
		},
	}

	log.Println("starting projection runner")
	if err := host.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("host run: %v", err)
	}
}

// watchAndSubscribe waits for the runtime's SubscribeProjection request
// and starts the polling subscription from the requested tag's cursor.
func watchAndSubscribe(ctx context.Context, bus *projection.ChannelBus, sub *projection.Subscription) {
	for msg := range bus.Watch() {
		if req, ok := msg.(projection.SubscribeProjection); ok {
			go func() {
				if err := sub.Run(ctx, bus, es.Cursor(req.FromTag.Cursor)); err != nil {
					log.Printf("subscription stopped: %v", err)
				}
			}()
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// noopReadDispatcher never resolves a recovery read; suitable only for
// projections that always use the root partition, which never needs one.
type noopReadDispatcher struct{}

func (noopReadDispatcher) ReadStreamBackward(ctx context.Context, stream string, before projection.CheckpointTag, maxCount int) (uuid.UUID, error) {
	return uuid.Nil, fmt.Errorf("recovery read requested on a single-partition projection")
}

func (noopReadDispatcher) CancelRead(ctx context.Context, requestID uuid.UUID) {}

// eventSource is a minimal es.Consumer wired against a hypothetical
// upstream; a real deployment replaces this with go-simple-eventstore's
// own store-backed Consumer implementation.
type eventSource struct{}

func newEventSource() es.Consumer { return eventSource{} }

func (eventSource) Fetch(ctx context.Context, cursor es.Cursor, limit int) ([]es.Envelope, es.Cursor, error) {
	select {
	case <-ctx.Done():
		return nil, cursor, ctx.Err()
	case <-time.After(200 * time.Millisecond):
	}
	return nil, cursor, nil
}

func (eventSource) Commit(ctx context.Context, cursor es.Cursor) error { return nil }
