package entity

import (
	"errors"
	"fmt"
	"sync"

	"github.com/udisondev/regions/internal/geom"
)

var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already tracked")
)

// Tracker keeps entity positions bucketed by chunk column.
// All methods are safe for concurrent use.
type Tracker struct {
	entities sync.Map // map[uint32]*trackedEntity
	buckets  sync.Map // map[geom.ChunkKey]*bucket
}

type trackedEntity struct {
	*Entity
	removed bool // guarded by Entity.mu
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) bucketFor(key geom.ChunkKey) *bucket {
	if b, ok := t.buckets.Load(key); ok {
		return b.(*bucket)
	}
	b, _ := t.buckets.LoadOrStore(key, newBucket(key))
	return b.(*bucket)
}

// Spawn starts tracking an entity at loc.
func (t *Tracker) Spawn(id uint32, name string, loc geom.Location) error {
	if !loc.Valid() {
		return fmt.Errorf("spawn entity %d: %w", id, geom.ErrInvalidArgument)
	}

	te := &trackedEntity{Entity: newEntity(id, name, loc)}
	if _, loaded := t.entities.LoadOrStore(id, te); loaded {
		return fmt.Errorf("spawn entity %d: %w", id, ErrAlreadyExists)
	}

	te.mu.Lock()
	t.bucketFor(loc.Block().Chunk()).add(te.Entity)
	te.mu.Unlock()
	return nil
}

// Despawn stops tracking an entity. Unknown ids are ignored.
func (t *Tracker) Despawn(id uint32) {
	value, ok := t.entities.LoadAndDelete(id)
	if !ok {
		return
	}

	te := value.(*trackedEntity)
	te.mu.Lock()
	defer te.mu.Unlock()
	te.removed = true
	t.bucketFor(te.location.Block().Chunk()).remove(id)
}

// Move relocates an entity, rebucketing it if it changed chunk column.
func (t *Tracker) Move(id uint32, loc geom.Location) error {
	if !loc.Valid() {
		return fmt.Errorf("move entity %d: %w", id, geom.ErrInvalidArgument)
	}

	value, ok := t.entities.Load(id)
	if !ok {
		return fmt.Errorf("move entity %d: %w", id, ErrNotFound)
	}

	te := value.(*trackedEntity)
	te.mu.Lock()
	defer te.mu.Unlock()
	if te.removed {
		return fmt.Errorf("move entity %d: %w", id, ErrNotFound)
	}

	from := te.location.Block().Chunk()
	to := loc.Block().Chunk()
	te.location = loc
	if from != to {
		t.bucketFor(from).remove(id)
		t.bucketFor(to).add(te.Entity)
	}
	return nil
}

// Get returns a snapshot of one entity.
func (t *Tracker) Get(id uint32) (Snapshot, bool) {
	value, ok := t.entities.Load(id)
	if !ok {
		return Snapshot{}, false
	}
	return value.(*trackedEntity).Snapshot(), true
}

// InChunks returns snapshots of all entities standing in the given chunk columns.
// Entities are re-checked against their current chunk, so a concurrent move never
// yields the same entity twice.
func (t *Tracker) InChunks(keys []geom.ChunkKey) []Snapshot {
	wanted := make(map[geom.ChunkKey]struct{}, len(keys))
	for _, k := range keys {
		wanted[k] = struct{}{}
	}

	seen := make(map[uint32]struct{})
	var out []Snapshot
	for k := range wanted {
		value, ok := t.buckets.Load(k)
		if !ok {
			continue
		}
		for _, e := range value.(*bucket).snapshot() {
			if _, dup := seen[e.ID()]; dup {
				continue
			}
			snap := e.Snapshot()
			if _, in := wanted[snap.Location.Block().Chunk()]; !in {
				continue
			}
			seen[e.ID()] = struct{}{}
			out = append(out, snap)
		}
	}
	return out
}

// Count returns the number of tracked entities (O(N)).
func (t *Tracker) Count() int {
	n := 0
	t.entities.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// ChunkVersion returns the change counter of one chunk column's bucket.
func (t *Tracker) ChunkVersion(key geom.ChunkKey) uint64 {
	value, ok := t.buckets.Load(key)
	if !ok {
		return 0
	}
	return value.(*bucket).Version()
}
