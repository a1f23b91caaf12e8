package db

import (
	"errors"

	"github.com/udisondev/regions/internal/geom"
)

// ErrNotFound is returned when a row to delete does not exist.
var ErrNotFound = errors.New("row not found")

const (
	areaIncluded int16 = 0
	areaExcluded int16 = 1
)

const (
	rolePlotTile  int16 = 1
	roleMergeSeam int16 = 2
)

// AreaRow is one persisted cuboid.
type AreaRow struct {
	World            string
	MinX, MinY, MinZ int32
	MaxX, MaxY, MaxZ int32
}

// AreaRowOf converts an area to its row form.
func AreaRowOf(a geom.Area) AreaRow {
	mn, mx := a.Min(), a.Max()
	return AreaRow{
		World: string(a.World()),
		MinX:  mn.X,
		MinY:  mn.Y,
		MinZ:  mn.Z,
		MaxX:  mx.X,
		MaxY:  mx.Y,
		MaxZ:  mx.Z,
	}
}

// Area rebuilds the cuboid.
func (r AreaRow) Area() (geom.Area, error) {
	w := geom.WorldID(r.World)
	return geom.NewArea(
		geom.NewBlockPos(w, r.MinX, r.MinY, r.MinZ),
		geom.NewBlockPos(w, r.MaxX, r.MaxY, r.MaxZ),
	)
}

// RegionRow is a persisted region with its ordered area lists.
type RegionRow struct {
	ID         int64
	AllowEnter bool
	Included   []AreaRow
	Excluded   []AreaRow
}

// ResidenceRow is a persisted residence.
type ResidenceRow struct {
	ID           int64
	Kind         int16
	RegionID     int64
	Name         string
	Street       string
	SignRotation int16
	BlockID      int64
	// Tiles and Merges are the further plot tile and merge seam region ids.
	Tiles  []int64
	Merges []int64
}

// linkedRegions returns the non-main regions of res with their role and order.
func (res ResidenceRow) linkedRegions() []residenceLink {
	out := make([]residenceLink, 0, len(res.Tiles)+len(res.Merges))
	for i, id := range res.Tiles {
		out = append(out, residenceLink{regionID: id, role: rolePlotTile, ord: i})
	}
	for i, id := range res.Merges {
		out = append(out, residenceLink{regionID: id, role: roleMergeSeam, ord: i})
	}
	return out
}

type residenceLink struct {
	regionID int64
	role     int16
	ord      int
}

// groupLinks appends a scanned linked region to its residence.
func groupLinks(byID map[int64]*ResidenceRow, residenceID int64, role int16, regionID int64) {
	res, ok := byID[residenceID]
	if !ok {
		return
	}
	if role == roleMergeSeam {
		res.Merges = append(res.Merges, regionID)
	} else {
		res.Tiles = append(res.Tiles, regionID)
	}
}

// groupAreas appends a scanned area to the right list of its region.
func groupAreas(byID map[int64]*RegionRow, regionID int64, kind int16, a AreaRow) {
	r, ok := byID[regionID]
	if !ok {
		return
	}
	if kind == areaExcluded {
		r.Excluded = append(r.Excluded, a)
	} else {
		r.Included = append(r.Included, a)
	}
}
