package region

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/udisondev/regions/internal/geom"
)

// chunkBucket holds the ids of regions whose footprint touches one chunk column.
// The id slice is sorted and immutable once stored; writers copy it under mu.
type chunkBucket struct {
	mu  sync.Mutex
	ids atomic.Pointer[[]int]
}

func (b *chunkBucket) load() []int {
	if p := b.ids.Load(); p != nil {
		return *p
	}
	return nil
}

func (b *chunkBucket) insert(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.load()
	pos, found := slices.BinarySearch(cur, id)
	if found {
		return
	}
	next := make([]int, 0, len(cur)+1)
	next = append(next, cur[:pos]...)
	next = append(next, id)
	next = append(next, cur[pos:]...)
	b.ids.Store(&next)
}

func (b *chunkBucket) delete(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.load()
	pos, found := slices.BinarySearch(cur, id)
	if !found {
		return
	}
	next := make([]int, 0, len(cur)-1)
	next = append(next, cur[:pos]...)
	next = append(next, cur[pos+1:]...)
	b.ids.Store(&next)
}

// Lookup resolves region ids, e.g. a Registry.
type Lookup interface {
	Get(id int) (*Region, bool)
}

// ChunkIndex maps chunk columns to the regions whose footprint touches them,
// plus the inverse (region id → footprint) for removal without scanning.
//
// Queries never lock. A writer locks only the buckets it touches, one at a
// time, so a mutation on one region never blocks queries on unrelated chunks.
// Writes for the same region id must be serialised by the caller (Region.mu).
type ChunkIndex struct {
	buckets    sync.Map // map[geom.ChunkKey]*chunkBucket
	footprints sync.Map // map[int][]geom.ChunkKey (immutable slices)
}

// NewChunkIndex creates an empty index.
func NewChunkIndex() *ChunkIndex {
	return &ChunkIndex{}
}

func (ix *ChunkIndex) bucket(key geom.ChunkKey) *chunkBucket {
	if b, ok := ix.buckets.Load(key); ok {
		return b.(*chunkBucket)
	}
	b, _ := ix.buckets.LoadOrStore(key, &chunkBucket{})
	return b.(*chunkBucket)
}

// Insert registers the region's current footprint.
func (ix *ChunkIndex) Insert(r *Region) {
	g := r.geo.Load()
	ix.add(r.id, g.footprint)
	ix.footprints.Store(r.id, g.footprint)
}

// Remove unregisters a region id from every chunk it was registered under.
func (ix *ChunkIndex) Remove(id int) {
	value, ok := ix.footprints.LoadAndDelete(id)
	if !ok {
		return
	}
	for _, k := range value.([]geom.ChunkKey) {
		if b, ok := ix.buckets.Load(k); ok {
			b.(*chunkBucket).delete(id)
		}
	}
}

// add puts id into every bucket of keys. Footprint bookkeeping is left to replace.
func (ix *ChunkIndex) add(id int, keys []geom.ChunkKey) {
	for _, k := range keys {
		ix.bucket(k).insert(id)
	}
}

// replace drops id from the chunks of old that are not in next and records next
// as the footprint. next must already be added.
func (ix *ChunkIndex) replace(id int, old, next []geom.ChunkKey) {
	keep := make(map[geom.ChunkKey]struct{}, len(next))
	for _, k := range next {
		keep[k] = struct{}{}
	}
	for _, k := range old {
		if _, ok := keep[k]; ok {
			continue
		}
		if b, ok := ix.buckets.Load(k); ok {
			b.(*chunkBucket).delete(id)
		}
	}
	ix.footprints.Store(id, next)
}

// Candidates returns the ids registered in p's chunk, ascending.
// IMPORTANT: the returned slice is shared and immutable. DO NOT modify.
func (ix *ChunkIndex) Candidates(p geom.BlockPos) []int {
	b, ok := ix.buckets.Load(p.Chunk())
	if !ok {
		return nil
	}
	return b.(*chunkBucket).load()
}

// Query returns the ids of regions that exactly contain p, ascending.
func (ix *ChunkIndex) Query(p geom.BlockPos, lookup Lookup) []int {
	candidates := ix.Candidates(p)
	var out []int
	for _, id := range candidates {
		r, ok := lookup.Get(id)
		if ok && r.Contains(p) {
			out = append(out, id)
		}
	}
	instrumentQuery(len(candidates), len(out))
	return out
}

// Footprint returns the chunk keys a region id is registered under.
func (ix *ChunkIndex) Footprint(id int) []geom.ChunkKey {
	value, ok := ix.footprints.Load(id)
	if !ok {
		return nil
	}
	return slices.Clone(value.([]geom.ChunkKey))
}

// Registered reports whether id is in the bucket of chunk key.
func (ix *ChunkIndex) Registered(id int, key geom.ChunkKey) bool {
	b, ok := ix.buckets.Load(key)
	if !ok {
		return false
	}
	_, found := slices.BinarySearch(b.(*chunkBucket).load(), id)
	return found
}

// Len returns the number of indexed regions (O(N)).
func (ix *ChunkIndex) Len() int {
	n := 0
	ix.footprints.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
