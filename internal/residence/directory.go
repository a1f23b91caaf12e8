package residence

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/udisondev/regions/internal/geom"
	"github.com/udisondev/regions/internal/region"
)

// RegionLookup resolves region ids (region.Registry).
type RegionLookup interface {
	Get(id int) (*region.Region, bool)
}

// Directory is the in-process view of the residences known to the engine.
// A residence may claim several regions; a region belongs to at most one residence.
type Directory struct {
	regions RegionLookup

	mu       sync.RWMutex
	byID     map[int]Residence
	byRegion map[int]int // region id → residence id
}

// NewDirectory creates an empty directory bound to a region lookup.
func NewDirectory(regions RegionLookup) *Directory {
	return &Directory{
		regions:  regions,
		byID:     make(map[int]Residence),
		byRegion: make(map[int]int),
	}
}

// Register adds a residence and sets the back-reference on each of its regions.
// Only plots may carry tiles and merge seams.
func (d *Directory) Register(res Residence) error {
	if !res.Kind.Valid() || res.ID < 0 {
		return fmt.Errorf("register residence %d: %w", res.ID, geom.ErrInvalidArgument)
	}
	if res.Kind != Plot && (len(res.Tiles) > 0 || len(res.Merges) > 0) {
		return fmt.Errorf("register residence %d: %s cannot have tiles or merges: %w", res.ID, res.Kind, geom.ErrInvalidArgument)
	}
	res = res.clone()
	claimed, err := d.lookup(res.Regions())
	if err != nil {
		return fmt.Errorf("register residence %d: %w", res.ID, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byID[res.ID]; exists {
		return fmt.Errorf("register residence %d: %w", res.ID, ErrAlreadyExists)
	}
	if err := d.checkFree(claimed); err != nil {
		return fmt.Errorf("register residence %d: %w", res.ID, err)
	}

	d.byID[res.ID] = res
	d.claim(res.ID, claimed)

	slog.Debug("residence registered", "id", res.ID, "kind", res.Kind, "region", res.RegionID,
		"tiles", len(res.Tiles), "merges", len(res.Merges))
	return nil
}

// Merge adds tile and seam regions to an existing plot and returns the plot.
func (d *Directory) Merge(plotID int, tiles, merges []int) (Residence, error) {
	ids := append(slices.Clone(tiles), merges...)
	if len(ids) == 0 {
		return Residence{}, fmt.Errorf("merge plot %d: nothing to merge: %w", plotID, geom.ErrInvalidArgument)
	}
	claimed, err := d.lookup(ids)
	if err != nil {
		return Residence{}, fmt.Errorf("merge plot %d: %w", plotID, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	res, ok := d.byID[plotID]
	if !ok {
		return Residence{}, fmt.Errorf("merge plot %d: %w", plotID, ErrNotFound)
	}
	if res.Kind != Plot {
		return Residence{}, fmt.Errorf("merge plot %d: residence is a %s: %w", plotID, res.Kind, geom.ErrInvalidArgument)
	}
	if err := d.checkFree(claimed); err != nil {
		return Residence{}, fmt.Errorf("merge plot %d: %w", plotID, err)
	}

	res.Tiles = append(slices.Clone(res.Tiles), tiles...)
	res.Merges = append(slices.Clone(res.Merges), merges...)
	d.byID[plotID] = res
	d.claim(plotID, claimed)

	slog.Debug("plot merged", "id", plotID, "tiles", tiles, "merges", merges)
	return res.clone(), nil
}

// Detach removes a tile or seam region from its plot and returns the plot.
// A residence's own region cannot be detached; unregister the residence instead.
func (d *Directory) Detach(regionID int) (Residence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.byRegion[regionID]
	if !ok {
		return Residence{}, fmt.Errorf("detach region %d: %w", regionID, ErrNotFound)
	}
	res := d.byID[id]
	if res.RegionID == regionID {
		return Residence{}, fmt.Errorf("detach region %d: main region of residence %d: %w", regionID, id, geom.ErrInvalidArgument)
	}

	detached := func(v int) bool { return v == regionID }
	res.Tiles = slices.DeleteFunc(slices.Clone(res.Tiles), detached)
	res.Merges = slices.DeleteFunc(slices.Clone(res.Merges), detached)
	d.byID[id] = res
	d.release(id, []int{regionID})
	return res.clone(), nil
}

// Unregister removes a residence and clears its regions' back-references.
func (d *Directory) Unregister(id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, ok := d.byID[id]
	if !ok {
		return fmt.Errorf("unregister residence %d: %w", id, ErrNotFound)
	}
	delete(d.byID, id)
	d.release(id, res.Regions())
	return nil
}

// Get returns a residence by id.
func (d *Directory) Get(id int) (Residence, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	res, ok := d.byID[id]
	return res.clone(), ok
}

// ForRegion returns the residence claiming a region (main, tile or seam), if any.
func (d *Directory) ForRegion(regionID int) (Residence, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byRegion[regionID]
	if !ok {
		return Residence{}, false
	}
	return d.byID[id].clone(), true
}

// PlotOfTile returns the plot a tile region belongs to. Seams are no tiles.
func (d *Directory) PlotOfTile(regionID int) (Residence, bool) {
	res, ok := d.ForRegion(regionID)
	if !ok || !res.IsTile(regionID) {
		return Residence{}, false
	}
	return res, true
}

// All returns every residence ordered by id.
func (d *Directory) All() []Residence {
	return d.filter(func(Residence) bool { return true })
}

// ByKind returns the residences of one class ordered by id.
func (d *Directory) ByKind(kind Kind) []Residence {
	return d.filter(func(r Residence) bool { return r.Kind == kind })
}

// ApartmentsIn returns the apartments of an apartment block ordered by id.
func (d *Directory) ApartmentsIn(blockID int) []Residence {
	return d.filter(func(r Residence) bool { return r.Kind == Apartment && r.BlockID == blockID })
}

func (d *Directory) filter(keep func(Residence) bool) []Residence {
	d.mu.RLock()
	out := make([]Residence, 0, len(d.byID))
	for _, r := range d.byID {
		if keep(r) {
			out = append(out, r.clone())
		}
	}
	d.mu.RUnlock()

	slices.SortFunc(out, func(a, b Residence) int { return a.ID - b.ID })
	return out
}

// lookup resolves region ids, rejecting unknown and repeated ones.
func (d *Directory) lookup(ids []int) ([]*region.Region, error) {
	out := make([]*region.Region, 0, len(ids))
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("region %d listed twice: %w", id, geom.ErrInvalidArgument)
		}
		seen[id] = struct{}{}
		r, ok := d.regions.Get(id)
		if !ok {
			return nil, fmt.Errorf("region %d: %w", id, region.ErrNotFound)
		}
		out = append(out, r)
	}
	return out, nil
}

// checkFree fails if another residence claims one of rs. Caller holds mu.
func (d *Directory) checkFree(rs []*region.Region) error {
	for _, r := range rs {
		if other, taken := d.byRegion[r.ID()]; taken {
			return fmt.Errorf("region %d held by %d: %w", r.ID(), other, ErrRegionTaken)
		}
	}
	return nil
}

// claim records rs as belonging to residence id. Caller holds mu.
func (d *Directory) claim(id int, rs []*region.Region) {
	for _, r := range rs {
		d.byRegion[r.ID()] = id
		r.SetResidence(id)
	}
}

// release drops the claims of residence id on regionIDs. Caller holds mu.
func (d *Directory) release(id int, regionIDs []int) {
	for _, rid := range regionIDs {
		delete(d.byRegion, rid)
		if r, ok := d.regions.Get(rid); ok {
			if cur, has := r.Residence(); has && cur == id {
				r.ClearResidence()
			}
		}
	}
}
