package projection

import "fmt"

// rootPartitionKey is the always-present, never-locked root partition.
const rootPartitionKey = ""

// PartitionState is one cached entry: the derived state string for a
// partition, the tag it is locked at (nil means unlockable except by
// re-initialization), and the opaque owner that acquired the lock.
type PartitionState struct {
	State    string
	LockedAt *CheckpointTag
	Owner    *string
}

// PartitionStateCache holds the runtime's in-memory view of per-partition
// derived state, keyed by partition key. It is purely in-memory: durability
// of partition state is indirect, via emitted StateUpdated events (see
// Runtime.processCommittedEvent and the backward-scan recovery path).
//
// The runtime drives the cache from its single message loop, so no
// internal synchronization is needed (see the concurrency model in
// SPEC_FULL.md): invariants are maintained by message ordering, not
// mutexes.
type PartitionStateCache struct {
	entries map[string]PartitionState
}

// NewPartitionStateCache returns an initialized cache with the root
// partition seeded.
func NewPartitionStateCache() *PartitionStateCache {
	c := &PartitionStateCache{}
	c.Initialize()
	return c
}

// Initialize clears all entries and reseeds the root partition with empty
// state and no lock. Called whenever the lifecycle resets to Initial.
func (c *PartitionStateCache) Initialize() {
	c.entries = map[string]PartitionState{
		rootPartitionKey: {State: "", LockedAt: nil, Owner: nil},
	}
}

// CacheAndLock upserts the entry for key, replacing whatever was cached
// under it, and locks it at the given tag. It fails if the key is already
// locked at or after at by a different owner: that would mean two work
// items disagree about which position they are caching state for.
func (c *PartitionStateCache) CacheAndLock(key, state string, at *CheckpointTag, owner *string) error {
	if existing, ok := c.entries[key]; ok && existing.LockedAt != nil && at != nil {
		if existing.LockedAt.Compare(*at) >= 0 && !sameOwner(existing.Owner, owner) {
			return fmt.Errorf("partition %q locked at %s by a different owner, cannot relock at %s", key, existing.LockedAt, at)
		}
	}
	c.entries[key] = PartitionState{State: state, LockedAt: at, Owner: owner}
	return nil
}

// TryGetAndLock returns the cached state for key, if present, and
// atomically advances its lock to at. It returns ok=false if the key is
// not cached at all (the caller must then recover it, e.g. via a backward
// stream scan). It fails if the entry is locked by a different owner at an
// incompatible (not-older) tag.
func (c *PartitionStateCache) TryGetAndLock(key string, at *CheckpointTag, owner *string) (state string, ok bool, err error) {
	entry, present := c.entries[key]
	if !present {
		return "", false, nil
	}
	if entry.LockedAt != nil && at != nil && entry.LockedAt.Compare(*at) >= 0 && !sameOwner(entry.Owner, owner) {
		return "", false, fmt.Errorf("partition %q locked at %s by a different owner, cannot lock at %s", key, entry.LockedAt, at)
	}
	entry.LockedAt = at
	entry.Owner = owner
	c.entries[key] = entry
	return entry.State, true, nil
}

// GetLocked reads the current state for key without changing its lock. It
// fails if the entry is absent.
func (c *PartitionStateCache) GetLocked(key string) (string, error) {
	entry, ok := c.entries[key]
	if !ok {
		return "", fmt.Errorf("partition %q not cached", key)
	}
	return entry.State, nil
}

// Unlock purges every non-root entry whose lock is strictly older than
// upto. Called when the runtime learns a checkpoint covering upto has
// durably completed, since state below that tag is now safely recoverable
// from the checkpoint/StateUpdated trail rather than needing to stay
// resident.
func (c *PartitionStateCache) Unlock(upto CheckpointTag) {
	for key, entry := range c.entries {
		if key == rootPartitionKey {
			continue
		}
		if entry.LockedAt != nil && entry.LockedAt.Less(upto) {
			delete(c.entries, key)
		}
	}
}

// CachedItemCount reports how many partitions (including root) are
// currently cached, for the statistics surface.
func (c *PartitionStateCache) CachedItemCount() int {
	return len(c.entries)
}

func sameOwner(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
