package projection

import "testing"

func TestPartitionStateCacheSeedsRoot(t *testing.T) {
	c := NewPartitionStateCache()
	state, err := c.GetLocked(rootPartitionKey)
	if err != nil {
		t.Fatalf("expected root partition to be seeded, got %v", err)
	}
	if state != "" {
		t.Errorf("expected empty root state, got %q", state)
	}
}

func TestPartitionStateCacheTryGetAndLockMiss(t *testing.T) {
	c := NewPartitionStateCache()
	tag := CheckpointTag{Commit: 1}
	owner := "runtime"

	_, ok, err := c.TryGetAndLock("tenant-a", &tag, &owner)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ok {
		t.Errorf("expected a miss for an uncached partition")
	}
}

func TestPartitionStateCacheCacheAndLockThenTryGet(t *testing.T) {
	c := NewPartitionStateCache()
	tag := CheckpointTag{Commit: 5}
	owner := "runtime"

	if err := c.CacheAndLock("tenant-a", "state-1", &tag, &owner); err != nil {
		t.Fatalf("cache and lock: %v", err)
	}

	nextTag := CheckpointTag{Commit: 6}
	state, ok, err := c.TryGetAndLock("tenant-a", &nextTag, &owner)
	if err != nil {
		t.Fatalf("try get and lock: %v", err)
	}
	if !ok {
		t.Fatalf("expected a cache hit")
	}
	if state != "state-1" {
		t.Errorf("expected state-1, got %q", state)
	}
}

func TestPartitionStateCacheRejectsDifferentOwnerAtIncompatibleTag(t *testing.T) {
	c := NewPartitionStateCache()
	tag := CheckpointTag{Commit: 5}
	ownerA := "runtime-a"
	ownerB := "runtime-b"

	if err := c.CacheAndLock("tenant-a", "state-1", &tag, &ownerA); err != nil {
		t.Fatalf("cache and lock: %v", err)
	}

	sameTag := CheckpointTag{Commit: 5}
	if _, _, err := c.TryGetAndLock("tenant-a", &sameTag, &ownerB); err == nil {
		t.Errorf("expected an error locking at or before an existing lock under a different owner")
	}
}

func TestPartitionStateCacheUnlockPurgesOlderNonRootEntries(t *testing.T) {
	c := NewPartitionStateCache()
	owner := "runtime"
	oldTag := CheckpointTag{Commit: 1}
	newTag := CheckpointTag{Commit: 10}

	if err := c.CacheAndLock("tenant-old", "s", &oldTag, &owner); err != nil {
		t.Fatalf("cache and lock: %v", err)
	}
	if err := c.CacheAndLock("tenant-new", "s", &newTag, &owner); err != nil {
		t.Fatalf("cache and lock: %v", err)
	}

	c.Unlock(CheckpointTag{Commit: 5})

	if _, err := c.GetLocked("tenant-old"); err == nil {
		t.Errorf("expected tenant-old to be purged")
	}
	if _, err := c.GetLocked("tenant-new"); err != nil {
		t.Errorf("expected tenant-new to survive, got %v", err)
	}
	if _, err := c.GetLocked(rootPartitionKey); err != nil {
		t.Errorf("expected root partition to never be purged, got %v", err)
	}
}

func TestPartitionStateCacheCachedItemCount(t *testing.T) {
	c := NewPartitionStateCache()
	owner := "runtime"
	tag := CheckpointTag{Commit: 1}

	if c.CachedItemCount() != 1 {
		t.Fatalf("expected 1 (root only), got %d", c.CachedItemCount())
	}
	if err := c.CacheAndLock("tenant-a", "s", &tag, &owner); err != nil {
		t.Fatalf("cache and lock: %v", err)
	}
	if c.CachedItemCount() != 2 {
		t.Errorf("expected 2, got %d", c.CachedItemCount())
	}
}
