package residence

import (
	"slices"

	"github.com/udisondev/regions/internal/geom"
	"github.com/udisondev/regions/internal/region"
)

// RegionQuery answers which regions contain a block (region.Registry).
type RegionQuery interface {
	RegionsAt(p geom.BlockPos) []*region.Region
}

// Resolver picks residences at a block.
type Resolver struct {
	regions RegionQuery
	dir     *Directory
}

// NewResolver creates a resolver over a region query and a residence directory.
func NewResolver(regions RegionQuery, dir *Directory) *Resolver {
	return &Resolver{regions: regions, dir: dir}
}

// ResidencesAt returns every residence with a region containing p, ordered by
// the lowest such region id. A plot whose tiles and seams overlap at p is
// listed once.
func (rs *Resolver) ResidencesAt(p geom.BlockPos) []Residence {
	var out []Residence
	for _, r := range rs.regions.RegionsAt(p) {
		id, ok := r.Residence()
		if !ok || slices.ContainsFunc(out, func(res Residence) bool { return res.ID == id }) {
			continue
		}
		if res, ok := rs.dir.Get(id); ok {
			out = append(out, res)
		}
	}
	return out
}

// Dominant returns the residence that owns p for interaction purposes:
// the highest-priority class present, ties broken by the lowest region id.
func (rs *Resolver) Dominant(p geom.BlockPos) (Residence, bool) {
	var best Residence
	found := false
	// RegionsAt is ordered by region id, so the first of a class wins ties
	for _, res := range rs.ResidencesAt(p) {
		prio := res.Kind.Priority()
		if prio == 0 {
			continue
		}
		if !found || prio > best.Kind.Priority() {
			best = res
			found = true
		}
	}
	return best, found
}

// PlotAt returns the plot containing p.
func (rs *Resolver) PlotAt(p geom.BlockPos) (Residence, bool) {
	return rs.firstOf(p, Plot)
}

// PlotTileAt returns the plot tile region containing p and its plot. Merge
// seams belong to their plot but are no tile; the lowest tile region id wins.
func (rs *Resolver) PlotTileAt(p geom.BlockPos) (int, Residence, bool) {
	for _, r := range rs.regions.RegionsAt(p) {
		id, ok := r.Residence()
		if !ok {
			continue
		}
		if res, ok := rs.dir.Get(id); ok && res.IsTile(r.ID()) {
			return r.ID(), res, true
		}
	}
	return 0, Residence{}, false
}

// ApartmentAt returns the apartment containing p.
func (rs *Resolver) ApartmentAt(p geom.BlockPos) (Residence, bool) {
	return rs.firstOf(p, Apartment)
}

func (rs *Resolver) firstOf(p geom.BlockPos, kind Kind) (Residence, bool) {
	for _, res := range rs.ResidencesAt(p) {
		if res.Kind == kind {
			return res, true
		}
	}
	return Residence{}, false
}
