package region

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/udisondev/regions/internal/geom"
)

// Registry owns region ids and the authoritative id → Region map.
// Ids grow monotonically and are never reused, so a stale id can never alias
// a newer region.
type Registry struct {
	lastID  atomic.Int64 // last allocated id
	regions sync.Map     // map[int]*Region
	count   atomic.Int64
	index   *ChunkIndex
}

// NewRegistry creates an empty registry with its own chunk index.
func NewRegistry() *Registry {
	return &Registry{index: NewChunkIndex()}
}

// Index returns the chunk index backing the registry.
func (reg *Registry) Index() *ChunkIndex { return reg.index }

// Create validates the areas, allocates a fresh id and registers the region.
func (reg *Registry) Create(included, excluded []geom.Area) (*Region, error) {
	g, err := buildGeometry("", included, excluded)
	if err != nil {
		return nil, fmt.Errorf("create region: %w", err)
	}

	id := int(reg.lastID.Add(1))
	r := newRegion(id, reg.index, g)
	reg.register(r)

	slog.Debug("region created", "id", id, "world", g.world, "chunks", len(g.footprint))
	return r, nil
}

// Restore re-registers a persisted region under its original id.
// The id counter is bumped so that later Create calls never hand it out again.
func (reg *Registry) Restore(id int, included, excluded []geom.Area) (*Region, error) {
	if id < 0 {
		return nil, fmt.Errorf("restore region %d: %w: negative id", id, geom.ErrInvalidArgument)
	}
	g, err := buildGeometry("", included, excluded)
	if err != nil {
		return nil, fmt.Errorf("restore region %d: %w", id, err)
	}

	r := newRegion(id, reg.index, g)
	if _, loaded := reg.regions.LoadOrStore(id, r); loaded {
		return nil, fmt.Errorf("restore region %d: %w", id, ErrAlreadyExists)
	}
	for {
		last := reg.lastID.Load()
		if int64(id) <= last || reg.lastID.CompareAndSwap(last, int64(id)) {
			break
		}
	}
	reg.index.Insert(r)
	reg.count.Add(1)
	instrumentRegionCount(reg.count.Load())
	return r, nil
}

func (reg *Registry) register(r *Region) {
	// index first: a query may see the id before Get resolves it and simply skips it
	reg.index.Insert(r)
	reg.regions.Store(r.id, r)
	reg.count.Add(1)
	instrumentRegionCount(reg.count.Load())
}

// Get returns the region with the given id. Destroyed regions are never returned.
func (reg *Registry) Get(id int) (*Region, bool) {
	value, ok := reg.regions.Load(id)
	if !ok {
		return nil, false
	}
	return value.(*Region), true
}

// Destroy removes the region from the index and the id map.
func (reg *Registry) Destroy(id int) error {
	value, ok := reg.regions.LoadAndDelete(id)
	if !ok {
		return fmt.Errorf("destroy region %d: %w", id, ErrNotFound)
	}

	r := value.(*Region)
	r.mu.Lock()
	r.destroyed.Store(true)
	reg.index.Remove(id)
	r.mu.Unlock()

	reg.count.Add(-1)
	instrumentRegionCount(reg.count.Load())
	slog.Debug("region destroyed", "id", id)
	return nil
}

// RegionsAt returns the regions containing p, ordered by id.
func (reg *Registry) RegionsAt(p geom.BlockPos) []*Region {
	ids := reg.index.Query(p, reg)
	out := make([]*Region, 0, len(ids))
	for _, id := range ids {
		if r, ok := reg.Get(id); ok {
			out = append(out, r)
		}
	}
	return out
}

// All returns every registered region ordered by id.
func (reg *Registry) All() []*Region {
	var out []*Region
	reg.regions.Range(func(_, value any) bool {
		out = append(out, value.(*Region))
		return true
	})
	slices.SortFunc(out, func(a, b *Region) int { return a.id - b.id })
	return out
}

// Len returns the number of registered regions (O(1) cached count).
func (reg *Registry) Len() int {
	return int(reg.count.Load())
}
