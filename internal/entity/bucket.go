package entity

import (
	"sync"
	"sync/atomic"

	"github.com/udisondev/regions/internal/geom"
)

// bucket holds the entities standing in one chunk column.
// Reads go through an immutable snapshot rebuilt lazily after changes.
type bucket struct {
	key geom.ChunkKey

	entities sync.Map // map[uint32]*Entity

	snapshotCache atomic.Value // []*Entity (immutable after rebuild)
	snapshotDirty atomic.Bool

	version atomic.Uint64 // incremented on add/remove
}

func newBucket(key geom.ChunkKey) *bucket {
	return &bucket{key: key}
}

func (b *bucket) add(e *Entity) {
	b.entities.Store(e.ID(), e)
	b.version.Add(1)
	b.snapshotDirty.Store(true)
}

func (b *bucket) remove(id uint32) {
	b.entities.Delete(id)
	b.version.Add(1)
	b.snapshotDirty.Store(true)
}

// Version returns the bucket version, bumped on every add/remove.
func (b *bucket) Version() uint64 {
	return b.version.Load()
}

// snapshot returns the cached entity slice. DO NOT modify it.
func (b *bucket) snapshot() []*Entity {
	if !b.snapshotDirty.Load() {
		if cache := b.snapshotCache.Load(); cache != nil {
			return cache.([]*Entity)
		}
	}
	return b.rebuildSnapshot()
}

func (b *bucket) rebuildSnapshot() []*Entity {
	// сначала сбрасываем флаг: изменения во время обхода снова пометят кэш грязным
	b.snapshotDirty.Store(false)

	out := make([]*Entity, 0, 16)
	b.entities.Range(func(_, value any) bool {
		out = append(out, value.(*Entity))
		return true
	})

	b.snapshotCache.Store(out)
	return out
}
