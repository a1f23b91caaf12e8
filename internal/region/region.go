// Package region implements named spatial containers (union of included areas
// minus union of excluded areas), the chunk footprint index and the registry
// that owns region ids.
package region

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/udisondev/regions/internal/entity"
	"github.com/udisondev/regions/internal/geom"
)

const noResidence int64 = -1

// MaxFootprintChunks bounds the chunk columns one region may touch
// (4096×4096 blocks). Larger geometry is rejected with ErrInvalidGeometry.
const MaxFootprintChunks int64 = 1 << 16

// geometry is immutable once published through Region.geo.
type geometry struct {
	world     geom.WorldID
	included  []geom.Area
	excluded  []geom.Area
	footprint []geom.ChunkKey
}

func (g *geometry) contains(p geom.BlockPos) bool {
	if p.World != g.world {
		return false
	}
	in := false
	for _, a := range g.included {
		if a.Contains(p) {
			in = true
			break
		}
	}
	if !in {
		return false
	}
	for _, a := range g.excluded {
		if a.Contains(p) {
			return false
		}
	}
	return true
}

// buildGeometry validates the area lists and computes the footprint.
// world is the region's fixed world, or "" for a new region.
func buildGeometry(world geom.WorldID, included, excluded []geom.Area) (*geometry, error) {
	if len(included) == 0 {
		return nil, fmt.Errorf("%w: no included areas", ErrInvalidGeometry)
	}
	if world == "" {
		world = included[0].World()
	}

	g := &geometry{
		world:    world,
		included: make([]geom.Area, len(included)),
		excluded: make([]geom.Area, len(excluded)),
	}
	copy(g.included, included)
	copy(g.excluded, excluded)

	var total int64
	for i, a := range g.included {
		if !a.Valid() {
			return nil, fmt.Errorf("%w: included area %d is invalid", ErrInvalidGeometry, i)
		}
		if a.World() != world {
			return nil, fmt.Errorf("%w: included area %d in world %q, region is in %q",
				ErrInvalidGeometry, i, a.World(), world)
		}
		total += a.ChunkCount()
		if total > MaxFootprintChunks {
			return nil, fmt.Errorf("%w: footprint of %d chunks exceeds %d at included area %d",
				ErrInvalidGeometry, total, MaxFootprintChunks, i)
		}
	}

	seen := make(map[geom.ChunkKey]struct{}, total)
	for _, a := range g.included {
		for k := range a.ChunkSeq() {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			g.footprint = append(g.footprint, k)
		}
	}
	// excluded areas only narrow containment, each is checked on its own
	for i, a := range g.excluded {
		if !a.Valid() {
			return nil, fmt.Errorf("%w: excluded area %d is invalid", ErrInvalidGeometry, i)
		}
	}

	return g, nil
}

// Region is a named spatial container registered in the chunk index.
// Reads are lock-free; geometry writers are serialised per region.
type Region struct {
	id    int
	index *ChunkIndex

	mu        sync.Mutex // serialises Update/destroy
	geo       atomic.Pointer[geometry]
	destroyed atomic.Bool

	allowEnter atomic.Bool
	residence  atomic.Int64
}

func newRegion(id int, index *ChunkIndex, g *geometry) *Region {
	r := &Region{id: id, index: index}
	r.geo.Store(g)
	r.allowEnter.Store(true)
	r.residence.Store(noResidence)
	return r
}

// ID returns the region id. Stable for the region's lifetime.
func (r *Region) ID() int { return r.id }

// World returns the world the region lives in.
func (r *Region) World() geom.WorldID { return r.geo.Load().world }

// Included returns a copy of the included areas.
func (r *Region) Included() []geom.Area {
	g := r.geo.Load()
	out := make([]geom.Area, len(g.included))
	copy(out, g.included)
	return out
}

// Excluded returns a copy of the excluded areas.
func (r *Region) Excluded() []geom.Area {
	g := r.geo.Load()
	out := make([]geom.Area, len(g.excluded))
	copy(out, g.excluded)
	return out
}

// Chunks returns the chunk columns the included areas touch.
func (r *Region) Chunks() []geom.ChunkKey {
	g := r.geo.Load()
	out := make([]geom.ChunkKey, len(g.footprint))
	copy(out, g.footprint)
	return out
}

// Contains reports whether p is inside some included area and outside every excluded one.
func (r *Region) Contains(p geom.BlockPos) bool {
	return r.geo.Load().contains(p)
}

// ContainsLocation reports whether the block under l is inside the region.
func (r *Region) ContainsLocation(l geom.Location) bool {
	if !l.Valid() {
		return false
	}
	return r.Contains(l.Block())
}

// Destroyed reports whether the region was removed from its registry.
func (r *Region) Destroyed() bool { return r.destroyed.Load() }

// Update replaces the included and excluded areas. Readers observe either the
// old or the new geometry, never a mix; the footprint is re-registered before
// this returns.
func (r *Region) Update(included, excluded []geom.Area) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed.Load() {
		return fmt.Errorf("update region %d: %w", r.id, ErrNotFound)
	}

	old := r.geo.Load()
	g, err := buildGeometry(old.world, included, excluded)
	if err != nil {
		return fmt.Errorf("update region %d: %w", r.id, err)
	}

	// footprint grows first, geometry swaps, stale chunks go last:
	// at every instant the index stays a superset of exact containment
	r.index.add(r.id, g.footprint)
	r.geo.Store(g)
	r.index.replace(r.id, old.footprint, g.footprint)

	instrumentRegionUpdate()
	return nil
}

// SetAllowEnter sets whether users may enter the region. Consulted by the
// movement gate only; has no effect on containment or indexing.
func (r *Region) SetAllowEnter(allow bool) { r.allowEnter.Store(allow) }

// AllowedToEnter reports whether users may enter the region.
func (r *Region) AllowedToEnter() bool { return r.allowEnter.Load() }

// SetResidence stores the id of the residence using this region (weak reference).
func (r *Region) SetResidence(id int) { r.residence.Store(int64(id)) }

// ClearResidence drops the residence back-reference.
func (r *Region) ClearResidence() { r.residence.Store(noResidence) }

// Residence returns the id of the residence using this region, if any.
func (r *Region) Residence() (int, bool) {
	id := r.residence.Load()
	if id == noResidence {
		return 0, false
	}
	return int(id), true
}

// EntitySource is the position feed narrowed to chunk columns.
type EntitySource interface {
	InChunks(keys []geom.ChunkKey) []entity.Snapshot
}

// Positions is the position feed with relocation, used to kick entities.
type Positions interface {
	EntitySource
	Get(id uint32) (entity.Snapshot, bool)
	Move(id uint32, loc geom.Location) error
}

// UsersInRegion returns a snapshot of the entities currently inside the region.
func (r *Region) UsersInRegion(src EntitySource) []entity.Snapshot {
	g := r.geo.Load()
	var out []entity.Snapshot
	for _, e := range src.InChunks(g.footprint) {
		if e.Location.Valid() && g.contains(e.Location.Block()) {
			out = append(out, e)
		}
	}
	return out
}

// KickUser moves an entity that is inside the region to target.
// target must be in the region's world and outside the region.
func (r *Region) KickUser(pos Positions, id uint32, target geom.Location) error {
	g := r.geo.Load()
	if !target.Valid() || target.World != g.world {
		return fmt.Errorf("kick %d from region %d: %w: target not in world %q",
			id, r.id, geom.ErrInvalidArgument, g.world)
	}
	if g.contains(target.Block()) {
		return fmt.Errorf("kick %d from region %d: %w: target inside region",
			id, r.id, geom.ErrInvalidArgument)
	}

	snap, ok := pos.Get(id)
	if !ok || !snap.Location.Valid() || !g.contains(snap.Location.Block()) {
		return fmt.Errorf("kick %d from region %d: %w", id, r.id, ErrNotInside)
	}
	if err := pos.Move(id, target); err != nil {
		return fmt.Errorf("kick %d from region %d: %w", id, r.id, err)
	}
	return nil
}

// KickAll kicks every entity inside the region to target, except those for
// which keep returns true (keep may be nil). Returns the ids that were moved.
func (r *Region) KickAll(pos Positions, target geom.Location, keep func(entity.Snapshot) bool) ([]uint32, error) {
	var kicked []uint32
	for _, e := range r.UsersInRegion(pos) {
		if keep != nil && keep(e) {
			continue
		}
		if err := r.KickUser(pos, e.ID, target); err != nil {
			if errors.Is(err, ErrNotInside) {
				continue // left on its own meanwhile
			}
			return kicked, err
		}
		kicked = append(kicked, e.ID)
	}
	return kicked, nil
}
