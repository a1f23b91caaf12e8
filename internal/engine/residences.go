package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/udisondev/regions/internal/db"
	"github.com/udisondev/regions/internal/entity"
	"github.com/udisondev/regions/internal/geom"
	"github.com/udisondev/regions/internal/residence"
	"github.com/udisondev/regions/internal/structure"
)

// RegisterResidence attaches a residence to its region and persists it.
func (e *Engine) RegisterResidence(ctx context.Context, res residence.Residence) error {
	if err := e.residences.Register(res); err != nil {
		return err
	}
	if e.store != nil {
		if err := e.store.SaveResidence(ctx, residenceRowOf(res)); err != nil {
			_ = e.residences.Unregister(res.ID)
			return fmt.Errorf("persist residence %d: %w", res.ID, err)
		}
	}
	return nil
}

// MergePlot adds tile and seam regions to a plot and persists it. If persisting
// fails the plot is put back as it was.
func (e *Engine) MergePlot(ctx context.Context, plotID int, tiles, merges []int) (residence.Residence, error) {
	res, err := e.residences.Merge(plotID, tiles, merges)
	if err != nil {
		return residence.Residence{}, err
	}
	if e.store != nil {
		if err := e.store.SaveResidence(ctx, residenceRowOf(res)); err != nil {
			for _, id := range append(slices.Clone(tiles), merges...) {
				if _, derr := e.residences.Detach(id); derr != nil {
					slog.Error("plot merge rollback failed", "plot", plotID, "region", id, "error", derr)
				}
			}
			return residence.Residence{}, fmt.Errorf("persist residence %d: %w", plotID, err)
		}
	}
	return res, nil
}

// UnregisterResidence detaches a residence from its region and deletes it.
func (e *Engine) UnregisterResidence(ctx context.Context, id int) error {
	res, ok := e.residences.Get(id)
	if !ok {
		return fmt.Errorf("unregister residence %d: %w", id, residence.ErrNotFound)
	}
	if e.store != nil {
		if err := e.store.DeleteResidence(ctx, int64(id)); err != nil {
			return fmt.Errorf("unregister residence %d: %w", res.ID, err)
		}
	}
	return e.residences.Unregister(id)
}

// Residence returns a residence by id.
func (e *Engine) Residence(id int) (residence.Residence, bool) {
	return e.residences.Get(id)
}

// ResidenceOf returns the residence claiming a region: its own region, a plot
// tile or a merge seam.
func (e *Engine) ResidenceOf(regionID int) (residence.Residence, bool) {
	return e.residences.ForRegion(regionID)
}

// Residences returns every residence of one class.
func (e *Engine) Residences(kind residence.Kind) []residence.Residence {
	return e.residences.ByKind(kind)
}

// ApartmentsIn returns the apartments of an apartment block.
func (e *Engine) ApartmentsIn(blockID int) []residence.Residence {
	return e.residences.ApartmentsIn(blockID)
}

// DominantResidence returns the residence that owns p for interactions.
func (e *Engine) DominantResidence(p geom.BlockPos) (residence.Residence, bool) {
	return e.resolver.Dominant(p)
}

// ResidencesAt returns every residence covering p.
func (e *Engine) ResidencesAt(p geom.BlockPos) []residence.Residence {
	return e.resolver.ResidencesAt(p)
}

// PlotAt returns the plot covering p.
func (e *Engine) PlotAt(p geom.BlockPos) (residence.Residence, bool) {
	return e.resolver.PlotAt(p)
}

// PlotTileAt returns the plot tile region covering p and its plot.
func (e *Engine) PlotTileAt(p geom.BlockPos) (int, residence.Residence, bool) {
	return e.resolver.PlotTileAt(p)
}

// PlotOfTile returns the plot a tile region belongs to.
func (e *Engine) PlotOfTile(regionID int) (residence.Residence, bool) {
	return e.residences.PlotOfTile(regionID)
}

// ApartmentAt returns the apartment covering p.
func (e *Engine) ApartmentAt(p geom.BlockPos) (residence.Residence, bool) {
	return e.resolver.ApartmentAt(p)
}

// District returns the district containing p.
func (e *Engine) District(p geom.BlockPos) (structure.District, bool) {
	return e.districts.At(p)
}

// UsersInDistrict returns the entities inside a district.
func (e *Engine) UsersInDistrict(id int) ([]entity.Snapshot, error) {
	return e.districts.UsersIn(id, e.entities)
}

// NearestRadioMast returns the closest radio mast in l's world.
func (e *Engine) NearestRadioMast(l geom.Location) (structure.RadioMast, bool) {
	return e.masts.Nearest(l)
}

func residenceRowOf(res residence.Residence) db.ResidenceRow {
	return db.ResidenceRow{
		ID:           int64(res.ID),
		Kind:         int16(res.Kind),
		RegionID:     int64(res.RegionID),
		Name:         res.Name,
		Street:       res.Street,
		SignRotation: int16(res.SignRotation),
		BlockID:      int64(res.BlockID),
		Tiles:        int64s(res.Tiles),
		Merges:       int64s(res.Merges),
	}
}

func residenceOf(row db.ResidenceRow) residence.Residence {
	return residence.Residence{
		ID:           int(row.ID),
		Kind:         residence.Kind(row.Kind),
		RegionID:     int(row.RegionID),
		Name:         row.Name,
		Street:       row.Street,
		SignRotation: geom.Direction(row.SignRotation),
		BlockID:      int(row.BlockID),
		Tiles:        ints(row.Tiles),
		Merges:       ints(row.Merges),
	}
}

func int64s(ids []int) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func ints(ids []int64) []int {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}
