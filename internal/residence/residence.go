// Package residence carries the residence tags (plot, apartment, apartment
// block) that point at regions, and resolves which residence dominates a block
// where several overlap.
package residence

import (
	"errors"
	"slices"

	"github.com/udisondev/regions/internal/geom"
)

var (
	ErrNotFound      = errors.New("residence not found")
	ErrAlreadyExists = errors.New("residence already registered")
	ErrRegionTaken   = errors.New("region already used by another residence")
)

// Kind is the residence class.
type Kind uint8

const (
	Plot Kind = iota + 1
	Apartment
	ApartmentBlock
)

// Priority returns the dominance rank of the class; higher wins.
// Zero means the class never dominates (an apartment block is the building
// that holds apartments, not a home itself).
func (k Kind) Priority() int {
	switch k {
	case Apartment:
		return 2
	case Plot:
		return 1
	default:
		return 0
	}
}

// Valid reports whether k is a known class.
func (k Kind) Valid() bool {
	return k >= Plot && k <= ApartmentBlock
}

func (k Kind) String() string {
	switch k {
	case Plot:
		return "plot"
	case Apartment:
		return "apartment"
	case ApartmentBlock:
		return "apartment_block"
	default:
		return "unknown"
	}
}

// Residence is the slice of an external residence the engine needs.
// It references its regions by id; each region only keeps the residence id back.
type Residence struct {
	ID   int
	Kind Kind
	// RegionID is the residence's own region. For a plot it is the main tile,
	// the one carrying the sign.
	RegionID     int
	Name         string
	Street       string
	SignRotation geom.Direction
	// BlockID is the apartment block holding an apartment, 0 if none.
	BlockID int

	// Tiles are the further tile regions merged into a plot.
	Tiles []int
	// Merges are the seam regions lying between merged tiles. A seam belongs
	// to the plot but is not a tile.
	Merges []int
}

// Regions returns every region id the residence claims: main, tiles, seams.
func (r Residence) Regions() []int {
	out := make([]int, 0, 1+len(r.Tiles)+len(r.Merges))
	out = append(out, r.RegionID)
	out = append(out, r.Tiles...)
	return append(out, r.Merges...)
}

// IsTile reports whether regionID is the main tile or a merged tile of a plot.
func (r Residence) IsTile(regionID int) bool {
	if r.Kind != Plot {
		return false
	}
	return r.RegionID == regionID || slices.Contains(r.Tiles, regionID)
}

func (r Residence) clone() Residence {
	r.Tiles = slices.Clone(r.Tiles)
	r.Merges = slices.Clone(r.Merges)
	return r
}
