package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// backwardPageSize bounds how many events a single backward partition
// recovery read asks for at a time (SPEC_FULL.md §4.H.a: "walk backward
// page-by-page").
const backwardPageSize = 100

// errParked signals that a work item cannot complete yet because it is
// waiting on an external reply (a partition-state recovery read). The
// queue leaves a parked item at the head instead of treating it as a
// failure.
var errParked = errors.New("projection: waiting on partition state recovery")

// Runtime is the per-projection lifecycle state machine, work queue, and
// partition state cache described in SPEC_FULL.md. Like the teacher's
// Runner, it is a plain struct with public fields for its collaborators;
// unset optional fields get sane defaults the first time the runtime is
// used.
type Runtime struct {
	// Name identifies the projection; it feeds stream naming and appears
	// in fault reasons and statistics.
	Name string

	// Handler is the user-supplied per-partition projection logic.
	Handler Handler

	// Manager persists emitted events and checkpoint markers.
	Manager CheckpointManager

	// Bus is where the runtime publishes outbound messages.
	Bus Bus

	// Reader issues backward partition-state recovery reads.
	Reader ReadDispatcher

	// Filter classifies incoming events; defaults to AllEventsFilter{}.
	Filter EventFilter

	// Tagger mints CheckpointTags from raw positions; defaults to
	// SequentialPositionTagger{}.
	Tagger PositionTagger

	// Selector maps events to partition keys; defaults to
	// RootPartitionSelector{} (single global partition).
	Selector PartitionSelector

	// Namer formats the stream names state and checkpoints live under;
	// defaults to DefaultStreamNamer{ProjectionName: Name}.
	Namer StreamNamer

	// Config carries the enumerated configuration options.
	Config Config

	// Logger is a nil-safe structured logging hook, matching the
	// teacher's Runner.Logger field: the caller wires it to whatever
	// logging library it already uses.
	Logger func(msg string, kv ...any)

	state            State
	cache            *PartitionStateCache
	queue            *Queue
	seq              sequenceGuard
	faultedReason    string
	tickPending      bool
	loadRequests     map[uuid.UUID]loadStateRequest
	currentPartition string
	handlerLoaded    bool
	initialized      bool
}

func (r *Runtime) logf(msg string, kv ...any) {
	if r.Logger != nil {
		r.Logger(msg, kv...)
	}
}

// init lazily applies defaults and resets internal state to Initial. It is
// idempotent and safe to call from every public entry point.
func (r *Runtime) init() {
	if r.initialized {
		return
	}
	if r.Filter == nil {
		r.Filter = AllEventsFilter{}
	}
	if r.Tagger == nil {
		r.Tagger = SequentialPositionTagger{}
	}
	if r.Selector == nil {
		r.Selector = RootPartitionSelector{}
	}
	if r.Namer == nil {
		r.Namer = DefaultStreamNamer{ProjectionName: r.Name}
	}
	if r.Config.PendingEventsThreshold <= 0 {
		r.Config.PendingEventsThreshold = 1000
	}
	r.cache = NewPartitionStateCache()
	r.loadRequests = make(map[uuid.UUID]loadStateRequest)
	r.queue = NewQueue(r.Config.PendingEventsThreshold, r.onPressure)
	r.state = StateInitial
	r.initialized = true
}

// State reports the runtime's current lifecycle state.
func (r *Runtime) State() State {
	r.init()
	return r.state
}

// Stats returns the statistics surface synchronously (SPEC_FULL.md §6).
func (r *Runtime) Stats() Statistics {
	r.init()
	return Statistics{
		Status:           r.state.String(),
		Mode:             string(r.Config.Mode),
		Name:             r.Name,
		StateReason:      r.faultedReason,
		BufferedEvents:   r.queue.BufferedEventCount(),
		PartitionsCached: r.cache.CachedItemCount(),
	}
}

// HandleUpdateStatistics publishes a StatisticsReport with the current
// Stats().
func (r *Runtime) HandleUpdateStatistics(ctx context.Context) {
	r.init()
	r.Bus.Publish(StatisticsReport{Stats: r.Stats()})
}

// Start drives Initial -> LoadStateRequested, asking the checkpoint
// manager to begin loading the last durable checkpoint.
func (r *Runtime) Start(ctx context.Context) error {
	r.init()
	if err := r.ensureState(StateInitial); err != nil {
		r.fault(ctx, err)
		return err
	}
	r.transitionTo(StateLoadStateRequested)
	if err := r.Manager.BeginLoadState(ctx); err != nil {
		fault := stateLoadFailureFault(err)
		r.fault(ctx, fault)
		return fault
	}
	return nil
}

// HandleCheckpointLoaded drives LoadStateRequested -> StateLoadedSubscribed
// -> Running.
func (r *Runtime) HandleCheckpointLoaded(ctx context.Context, msg CheckpointLoaded) error {
	r.init()
	if err := r.ensureState(StateLoadStateRequested); err != nil {
		r.fault(ctx, err)
		return err
	}
	tag := r.Tagger.ZeroTag()
	if msg.Tag != nil {
		tag = *msg.Tag
	}
	if err := r.Manager.Start(ctx, tag); err != nil {
		fault := stateLoadFailureFault(err)
		r.fault(ctx, fault)
		return fault
	}
	r.transitionTo(StateStateLoadedSubscribed)
	r.enterStateLoadedSubscribed(tag)
	return nil
}

// enterStateLoadedSubscribed runs the StateLoadedSubscribed entry action
// and its automatic transition to Running.
func (r *Runtime) enterStateLoadedSubscribed(tag CheckpointTag) {
	// Arm the sequence guard to 0 immediately before publishing the
	// subscription request, so the subscriber's contract is that its
	// first message is numbered 0 (SPEC_FULL.md §4.F).
	r.seq.arm()
	r.Bus.Publish(SubscribeProjection{FromTag: tag})
	r.queue.InitializeQueue(tag)
	r.Bus.Publish(Started{})
	r.transitionTo(StateRunning)
	r.queue.SetRunning()
}

// HandleCommittedEventReceived applies the sequence guard, filters and
// tags the event, and admits it to the queue.
func (r *Runtime) HandleCommittedEventReceived(ctx context.Context, msg CommittedEventReceived) error {
	r.init()
	if !r.seq.check(msg.SubscriptionSeq) {
		return nil // stale or duplicate subscription message: silently discarded
	}
	if err := r.ensureState(StateStateLoadedSubscribed, StateRunning, StatePaused, StateResumed); err != nil {
		r.fault(ctx, err)
		return err
	}
	accept, category := r.Filter.Accept(msg.StreamID, msg.EventType)
	if !accept {
		return nil
	}
	tag := r.Tagger.Tag(msg.Position, msg.Cursor)
	key := r.Selector.SelectPartition(msg.StreamID, msg.EventType)
	item := &WorkItem{
		Kind:      KindCommitted,
		Committed: &CommittedPayload{PartitionKey: key, Event: msg, Category: category},
	}
	if err := r.queue.Enqueue(item, tag, false); err != nil {
		r.fault(ctx, err)
		return err
	}
	r.armTick()
	return nil
}

// HandleProgressChanged applies the sequence guard and admits a progress
// report at the current tag.
func (r *Runtime) HandleProgressChanged(ctx context.Context, msg ProgressChanged) error {
	r.init()
	if !r.seq.check(msg.SubscriptionSeq) {
		return nil
	}
	if err := r.ensureState(StateStateLoadedSubscribed, StateRunning, StatePaused, StateResumed); err != nil {
		r.fault(ctx, err)
		return err
	}
	item := &WorkItem{Kind: KindProgress, Progress: &ProgressPayload{Progress: msg.Progress}}
	if err := r.queue.Enqueue(item, msg.Tag, true); err != nil {
		r.fault(ctx, err)
		return err
	}
	r.armTick()
	return nil
}

// HandleCheckpointSuggested admits a checkpoint suggestion at the current
// tag, unless checkpoints are disabled by configuration.
func (r *Runtime) HandleCheckpointSuggested(ctx context.Context, msg CheckpointSuggested) error {
	r.init()
	if !r.Config.CheckpointsEnabled {
		return nil
	}
	if err := r.ensureState(StateStateLoadedSubscribed, StateRunning, StatePaused, StateResumed); err != nil {
		r.fault(ctx, err)
		return err
	}
	item := &WorkItem{Kind: KindCheckpointSuggested, CheckpointSuggested: &CheckpointSuggestedPayload{}}
	if err := r.queue.EnqueueCheckpointSuggestion(item, msg.Tag); err != nil {
		r.fault(ctx, err)
		return err
	}
	r.armTick()
	return nil
}

// HandleCheckpointCompleted unlocks the cache up to the completed tag and
// advances the lifecycle: Paused -> Resumed -> Running, Stopping ->
// Stopped, FaultedStopping -> Faulted.
func (r *Runtime) HandleCheckpointCompleted(ctx context.Context, msg CheckpointCompleted) error {
	r.init()
	if err := r.ensureState(StateRunning, StatePaused, StateResumed, StateStopping, StateFaultedStopping); err != nil {
		r.fault(ctx, err)
		return err
	}
	r.cache.Unlock(msg.Tag)
	switch r.state {
	case StatePaused:
		r.transitionTo(StateResumed)
		r.queue.SetRunning()
		r.transitionTo(StateRunning) // auto
		r.armTick()
	case StateStopping:
		r.transitionTo(StateStopped)
		r.enterStopped(ctx)
	case StateFaultedStopping:
		r.transitionTo(StateFaulted)
		r.enterFaulted(ctx)
	default:
		// mid-stream checkpoint while Running/Resumed: unlock only.
	}
	return nil
}

// HandlePauseRequested drives Running -> Paused.
func (r *Runtime) HandlePauseRequested(ctx context.Context) error {
	r.init()
	if err := r.ensureState(StateRunning); err != nil {
		r.fault(ctx, err)
		return err
	}
	r.queue.SetPaused()
	r.transitionTo(StatePaused)
	return nil
}

// HandleStop drives {StateLoadedSubscribed,Running,Paused,Resumed} ->
// Stopping. A Stop received while Paused takes priority over any pending
// auto Paused->Resumed transition, since Paused is itself in the allowed
// set (SPEC_FULL.md's design notes, second open question).
func (r *Runtime) HandleStop(ctx context.Context) error {
	r.init()
	if err := r.ensureState(StateStateLoadedSubscribed, StateRunning, StatePaused, StateResumed); err != nil {
		r.fault(ctx, err)
		return err
	}
	r.transitionTo(StateStopping)
	r.enterStopping(ctx)
	return nil
}

// HandleRestartRequested resets to Initial from any state and immediately
// restarts.
func (r *Runtime) HandleRestartRequested(ctx context.Context) error {
	r.init()
	r.enterInitial(ctx)
	return r.Start(ctx)
}

// HandleGetState answers an out-of-band partition state query. It bypasses
// tag ordering entirely by enqueuing out of order.
func (r *Runtime) HandleGetState(ctx context.Context, msg GetState) error {
	r.init()
	item := &WorkItem{Kind: KindGetState, GetState: &GetStatePayload{Partition: msg.Partition, Reply: msg.Reply}}
	r.queue.EnqueueOutOfOrder(item)
	r.armTick()
	return nil
}

// HandleTick consumes a previously armed Tick, draining the queue. A Tick
// received while not armed is dropped, protecting against ticks that
// outlive a restart.
func (r *Runtime) HandleTick(ctx context.Context) error {
	r.init()
	if !r.tickPending {
		return nil
	}
	r.tickPending = false
	return r.drive(ctx)
}

// HandleReadStreamEventsBackwardCompleted resumes a parked partition
// recovery: it looks for the most recent StateUpdated event whose
// metadata tag precedes the tag the read was issued for, walking further
// pages backward if the current page holds nothing usable, and caches an
// empty state once the stream is exhausted.
func (r *Runtime) HandleReadStreamEventsBackwardCompleted(ctx context.Context, msg ReadStreamEventsBackwardCompleted) error {
	r.init()
	req, ok := r.loadRequests[msg.RequestID]
	if !ok {
		return nil // stale reply for a canceled/superseded request; ignore
	}
	if msg.Err != nil {
		delete(r.loadRequests, msg.RequestID)
		r.fault(ctx, stateLoadFailureFault(msg.Err))
		return msg.Err
	}

	for _, ev := range msg.Events {
		if ev.EventType != "StateUpdated" {
			continue
		}
		tag, err := ParseTag(ev.Metadata)
		if err != nil {
			delete(r.loadRequests, msg.RequestID)
			fault := stateLoadFailureFault(err)
			r.fault(ctx, fault)
			return fault
		}
		if tag != nil && tag.Less(req.tag) {
			delete(r.loadRequests, msg.RequestID)
			owner := r.Name
			if err := r.cache.CacheAndLock(req.partitionKey, string(ev.Data), &req.tag, &owner); err != nil {
				r.fault(ctx, err)
				return err
			}
			r.armTick()
			return nil
		}
	}

	if msg.EndOfStream {
		delete(r.loadRequests, msg.RequestID)
		owner := r.Name
		if err := r.cache.CacheAndLock(req.partitionKey, "", &req.tag, &owner); err != nil {
			r.fault(ctx, err)
			return err
		}
		r.armTick()
		return nil
	}

	// Page held nothing usable; walk further back before the oldest event
	// we just saw.
	before := req.tag
	if len(msg.Events) > 0 {
		before = msg.Events[len(msg.Events)-1].Tag
	}
	delete(r.loadRequests, msg.RequestID)
	nextReqID, err := r.Reader.ReadStreamBackward(ctx, req.stream, before, backwardPageSize)
	if err != nil {
		fault := stateLoadFailureFault(err)
		r.fault(ctx, fault)
		return fault
	}
	r.loadRequests[nextReqID] = req
	return nil
}

// drive runs one round of queue draining and rearms the tick if there is
// more drainable work waiting. A parked head item doesn't count: it can
// only be unparked by the eventual read-completion reply, whose own handler
// arms the tick once the partition is cached, not by drive spinning here.
func (r *Runtime) drive(ctx context.Context) error {
	if err := r.queue.ProcessEvent(ctx, r); err != nil {
		r.fault(ctx, err)
		return err
	}
	if r.queue.BufferedEventCount() > 0 && !r.queue.Parked() {
		r.armTick()
	}
	return nil
}

// armTick publishes at most one outstanding Tick, and only while there is
// somewhere for it to do useful work.
func (r *Runtime) armTick() {
	if r.tickPending {
		return
	}
	if r.state != StateRunning && r.state != StateStopping && r.state != StateFaultedStopping {
		return
	}
	r.tickPending = true
	r.Bus.Publish(Tick{})
}

// onPressure is the queue's pending-events pressure callback. It must not
// enqueue directly into the queue it was raised from: ProcessEvent invokes
// it mid-drain, and a synchronous self-enqueue would keep the buffered
// count pinned above the threshold for as long as the drain runs. Instead
// it publishes a CheckpointSuggested for the ordinary bus dispatch path to
// admit on a later tick, the same way a manager-raised suggestion arrives.
func (r *Runtime) onPressure(ctx context.Context, tag CheckpointTag) {
	if !r.Config.CheckpointsEnabled {
		return
	}
	r.logf("pending events threshold exceeded", "tag", tag)
	r.Bus.Publish(CheckpointSuggested{Tag: tag})
}

// enterInitial performs the Initial entry action: cancel outstanding read
// requests, reset cache/queue/manager, seed the root partition, clear
// tick_pending, and unarm the sequence guard.
func (r *Runtime) enterInitial(ctx context.Context) {
	for id := range r.loadRequests {
		r.Reader.CancelRead(ctx, id)
	}
	r.loadRequests = make(map[uuid.UUID]loadStateRequest)
	r.cache.Initialize()
	r.queue.Reset()
	if err := r.Manager.Initialize(ctx); err != nil {
		r.logf("checkpoint manager initialize failed", "error", err)
	}
	r.tickPending = false
	r.seq.reset()
	r.currentPartition = ""
	r.handlerLoaded = false
	r.faultedReason = ""
	r.state = StateInitial
}

// enterStopping performs the Stopping/FaultedStopping shared entry
// action: notify the manager, unsubscribe, and request a final checkpoint
// that must always eventually complete.
func (r *Runtime) enterStopping(ctx context.Context) {
	_ = r.Manager.Stopping(ctx)
	r.Bus.Publish(UnsubscribeProjection{})
	r.queue.SetStopped()
	if err := r.Manager.RequestCheckpointToStop(ctx); err != nil {
		r.logf("request checkpoint to stop failed", "error", err)
	}
}

func (r *Runtime) enterStopped(ctx context.Context) {
	_ = r.Manager.Stopped(ctx)
	r.Bus.Publish(Stopped{})
}

func (r *Runtime) enterFaulted(ctx context.Context) {
	r.Bus.Publish(Faulted{Reason: r.faultedReason})
}

// fault drives the lifecycle into FaultedStopping (or directly into
// Faulted for state-load failures, which have no in-flight checkpoint to
// flush) and records the reason. Once already Faulted or FaultedStopping,
// further faults are ignored: fault containment guarantees no further
// event_processed calls are made for any tag once faulted.
func (r *Runtime) fault(ctx context.Context, err error) {
	if r.state == StateFaulted || r.state == StateFaultedStopping {
		return
	}
	r.faultedReason = err.Error()
	var fe *FaultError
	if errors.As(err, &fe) && fe.Kind == FaultStateLoadFailure {
		r.transitionTo(StateFaulted)
		r.enterFaulted(ctx)
		return
	}
	r.transitionTo(StateFaultedStopping)
	r.enterStopping(ctx)
}

// ensurePartitionLoaded implements SPEC_FULL.md §4.H.a. The root partition
// is always cached. A non-root partition tries a cache hit first, then
// issues (or waits on) a backward recovery read and reports errParked
// until it resolves.
func (r *Runtime) ensurePartitionLoaded(ctx context.Context, key string, tag CheckpointTag) (string, error) {
	if key == rootPartitionKey {
		return r.cache.GetLocked(rootPartitionKey)
	}
	owner := r.Name
	if state, ok, err := r.cache.TryGetAndLock(key, &tag, &owner); err != nil {
		return "", err
	} else if ok {
		return state, nil
	}
	if _, pending := r.findPendingLoad(key, tag); pending {
		return "", errParked
	}
	stream := r.Namer.PartitionStateStream(key)
	reqID, err := r.Reader.ReadStreamBackward(ctx, stream, tag, backwardPageSize)
	if err != nil {
		return "", stateLoadFailureFault(err)
	}
	r.loadRequests[reqID] = loadStateRequest{partitionKey: key, tag: tag, stream: stream}
	return "", errParked
}

func (r *Runtime) findPendingLoad(key string, tag CheckpointTag) (uuid.UUID, bool) {
	for id, req := range r.loadRequests {
		if req.partitionKey == key && req.tag.Equal(tag) {
			return id, true
		}
	}
	return uuid.Nil, false
}

// processCommittedEvent implements SPEC_FULL.md §4.H steps a-f: it loads
// (or parks awaiting) the partition, switches the handler onto it if
// needed, invokes the handler, validates emissions against configuration,
// and updates the cache and StateUpdated emission on a genuine state
// change.
func (r *Runtime) processCommittedEvent(ctx context.Context, tag CheckpointTag, payload CommittedPayload) ([]EmittedEvent, error) {
	key := payload.PartitionKey
	state, err := r.ensurePartitionLoaded(ctx, key, tag)
	if err != nil {
		return nil, err
	}

	if r.currentPartition != key || !r.handlerLoaded {
		if state == "" {
			r.Handler.Initialize()
		} else {
			r.Handler.Load(state)
		}
		r.currentPartition = key
		r.handlerLoaded = true
	}

	ev := payload.Event
	eventCtx := EventContext{
		Position:       ev.Position,
		StreamID:       ev.StreamID,
		EventType:      ev.EventType,
		Category:       payload.Category,
		EventID:        ev.EventID,
		SequenceNumber: ev.SequenceNumber,
		Metadata:       ev.Metadata,
		Data:           ev.Data,
	}

	processed, newState, emitted, err := r.Handler.Handle(ctx, eventCtx)
	if err != nil {
		return nil, handlerFailureFault(r.Name, fmt.Sprintf("%T", r.Handler), ev.Position, err)
	}
	if len(emitted) > 0 && !r.Config.EmitEventEnabled {
		return nil, policyViolationFault(ErrEmitNotAllowed)
	}
	if !processed {
		return nil, nil
	}

	scheduled := append([]EmittedEvent(nil), emitted...)
	if newState != state {
		owner := r.Name
		lockAt := &tag
		if key == rootPartitionKey {
			lockAt = nil // the root partition is never locked
		}
		if err := r.cache.CacheAndLock(key, newState, lockAt, &owner); err != nil {
			return nil, err
		}
		if r.Config.PublishStateUpdates {
			metaTag, err := MarshalTag(tag)
			if err != nil {
				return nil, err
			}
			scheduled = append(scheduled, EmittedEvent{
				Stream:    r.Namer.PartitionStateStream(key),
				EventID:   uuid.NewString(),
				EventType: "StateUpdated",
				Data:      []byte(newState),
				Metadata:  metaTag,
			})
		}
	}
	return scheduled, nil
}

// finalizeEventProcessing hands a work item's scheduled emissions and tag
// to the checkpoint manager, per SPEC_FULL.md §4.H step 4.
func (r *Runtime) finalizeEventProcessing(ctx context.Context, scheduled []EmittedEvent, tag CheckpointTag, progress float64) error {
	state, _ := r.cache.GetLocked(r.currentPartition)
	return r.Manager.EventProcessed(ctx, state, scheduled, tag, progress)
}

// answerGetState implements the KindGetState work item.
func (r *Runtime) answerGetState(payload GetStatePayload) {
	state, err := r.cache.GetLocked(payload.Partition)
	if payload.Reply != nil {
		payload.Reply <- GetStateResult{State: state, Found: err == nil, Err: err}
	}
}
