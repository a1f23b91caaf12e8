// Package engine is the region engine facade. One Engine is built at startup
// and handed to every caller; it owns the region registry, residences, block
// store, bulk mutator and layout structures, and mirrors region changes into
// the persistent store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/udisondev/regions/internal/blockstore"
	"github.com/udisondev/regions/internal/db"
	"github.com/udisondev/regions/internal/entity"
	"github.com/udisondev/regions/internal/geom"
	"github.com/udisondev/regions/internal/mutator"
	"github.com/udisondev/regions/internal/region"
	"github.com/udisondev/regions/internal/residence"
	"github.com/udisondev/regions/internal/structure"
)

// Store persists regions and residences (db.RegionRepository, db.SQLiteRegionRepository).
type Store interface {
	LoadAll(ctx context.Context) ([]db.RegionRow, error)
	Save(ctx context.Context, row db.RegionRow) error
	Delete(ctx context.Context, id int64) error
	LoadResidences(ctx context.Context) ([]db.ResidenceRow, error)
	SaveResidence(ctx context.Context, res db.ResidenceRow) error
	DeleteResidence(ctx context.Context, id int64) error
}

// Deps are the collaborators of an Engine. Nil fields get fresh in-memory
// instances; a nil Store keeps everything in memory.
type Deps struct {
	Regions   *region.Registry
	Blocks    *blockstore.Store
	Entities  *entity.Tracker
	Mutator   *mutator.Mutator
	Districts *structure.Districts
	Masts     *structure.RadioMasts
	Store     Store
}

// Engine is the entry point to every region operation.
type Engine struct {
	regions    *region.Registry
	residences *residence.Directory
	resolver   *residence.Resolver
	blocks     *blockstore.Store
	entities   *entity.Tracker
	mutator    *mutator.Mutator
	districts  *structure.Districts
	masts      *structure.RadioMasts
	store      Store
}

// New wires an engine from its dependencies.
func New(d Deps) *Engine {
	if d.Regions == nil {
		d.Regions = region.NewRegistry()
	}
	if d.Blocks == nil {
		d.Blocks = blockstore.NewStore()
	}
	if d.Entities == nil {
		d.Entities = entity.NewTracker()
	}
	if d.Mutator == nil {
		d.Mutator = mutator.New(d.Blocks, d.Entities, mutator.Config{})
	}
	if d.Districts == nil {
		d.Districts = structure.NewDistricts()
	}
	if d.Masts == nil {
		d.Masts = structure.NewRadioMasts()
	}

	dir := residence.NewDirectory(d.Regions)
	return &Engine{
		regions:    d.Regions,
		residences: dir,
		resolver:   residence.NewResolver(d.Regions, dir),
		blocks:     d.Blocks,
		entities:   d.Entities,
		mutator:    d.Mutator,
		districts:  d.Districts,
		masts:      d.Masts,
		store:      d.Store,
	}
}

// Regions returns the region registry.
func (e *Engine) Regions() *region.Registry { return e.regions }

// Blocks returns the block store.
func (e *Engine) Blocks() *blockstore.Store { return e.blocks }

// Entities returns the entity position feed.
func (e *Engine) Entities() *entity.Tracker { return e.entities }

// Mutator returns the bulk job runner.
func (e *Engine) Mutator() *mutator.Mutator { return e.mutator }

// Districts returns the district table.
func (e *Engine) Districts() *structure.Districts { return e.districts }

// Masts returns the radio mast set.
func (e *Engine) Masts() *structure.RadioMasts { return e.masts }

// Load restores persisted regions and residences. Call once before serving.
func (e *Engine) Load(ctx context.Context) error {
	if e.store == nil {
		return nil
	}

	rows, err := e.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load regions: %w", err)
	}
	for _, row := range rows {
		inc, exc, err := areasOf(row)
		if err != nil {
			return fmt.Errorf("load region %d: %w", row.ID, err)
		}
		r, err := e.regions.Restore(int(row.ID), inc, exc)
		if err != nil {
			return fmt.Errorf("load region %d: %w", row.ID, err)
		}
		r.SetAllowEnter(row.AllowEnter)
	}

	resRows, err := e.store.LoadResidences(ctx)
	if err != nil {
		return fmt.Errorf("load residences: %w", err)
	}
	for _, row := range resRows {
		if err := e.residences.Register(residenceOf(row)); err != nil {
			return fmt.Errorf("load residence %d: %w", row.ID, err)
		}
	}

	slog.Info("regions loaded", "regions", len(rows), "residences", len(resRows))
	return nil
}

// GetRegion returns a live region by id.
func (e *Engine) GetRegion(id int) (*region.Region, bool) {
	return e.regions.Get(id)
}

// AllRegions returns every region ordered by id.
func (e *Engine) AllRegions() []*region.Region {
	return e.regions.All()
}

// GetRegions returns the regions containing p, ordered by id.
func (e *Engine) GetRegions(p geom.BlockPos) ([]*region.Region, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("get regions: %w", geom.ErrInvalidArgument)
	}
	return e.regions.RegionsAt(p), nil
}

// GetRegionsAt returns the regions containing the block under l.
func (e *Engine) GetRegionsAt(l geom.Location) ([]*region.Region, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("get regions: %w", geom.ErrInvalidArgument)
	}
	return e.regions.RegionsAt(l.Block()), nil
}

// GetArea builds an area from two corners in the same world.
func (e *Engine) GetArea(c1, c2 geom.BlockPos) (geom.Area, error) {
	return geom.NewArea(c1, c2)
}

// GetAreaOfBlock returns the one-block area at b.
func (e *Engine) GetAreaOfBlock(b geom.BlockPos) (geom.Area, error) {
	return geom.AreaOfBlock(b)
}

// CreateRegion registers and persists a new region.
func (e *Engine) CreateRegion(ctx context.Context, included, excluded []geom.Area) (*region.Region, error) {
	r, err := e.regions.Create(included, excluded)
	if err != nil {
		return nil, err
	}
	if err := e.persistRegion(ctx, r); err != nil {
		// not persisted, so not created
		_ = e.regions.Destroy(r.ID())
		return nil, err
	}
	return r, nil
}

// UpdateRegion replaces a region's geometry and persists it. If persisting
// fails the previous geometry is put back.
func (e *Engine) UpdateRegion(ctx context.Context, id int, included, excluded []geom.Area) error {
	r, ok := e.regions.Get(id)
	if !ok {
		return fmt.Errorf("update region %d: %w", id, region.ErrNotFound)
	}
	oldInc, oldExc := r.Included(), r.Excluded()
	if err := r.Update(included, excluded); err != nil {
		return err
	}
	if err := e.persistRegion(ctx, r); err != nil {
		if rerr := r.Update(oldInc, oldExc); rerr != nil {
			slog.Error("region geometry rollback failed", "id", id, "error", rerr)
		}
		return err
	}
	return nil
}

// SetAllowEnter sets and persists a region's enter gate.
func (e *Engine) SetAllowEnter(ctx context.Context, id int, allow bool) error {
	r, ok := e.regions.Get(id)
	if !ok {
		return fmt.Errorf("set allow enter %d: %w", id, region.ErrNotFound)
	}
	prev := r.AllowedToEnter()
	r.SetAllowEnter(allow)
	if err := e.persistRegion(ctx, r); err != nil {
		r.SetAllowEnter(prev)
		return err
	}
	return nil
}

// DestroyRegion removes a region and its persisted rows. A residence whose own
// region it is goes with it; a plot only loses the tile or seam.
func (e *Engine) DestroyRegion(ctx context.Context, id int) error {
	if _, ok := e.regions.Get(id); !ok {
		return fmt.Errorf("destroy region %d: %w", id, region.ErrNotFound)
	}
	if e.store != nil {
		if err := e.store.Delete(ctx, int64(id)); err != nil && !errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("destroy region %d: %w", id, err)
		}
	}
	if res, ok := e.residences.ForRegion(id); ok {
		if res.RegionID == id {
			_ = e.residences.Unregister(res.ID)
		} else {
			_, _ = e.residences.Detach(id)
		}
	}
	return e.regions.Destroy(id)
}

// UsersInRegion returns the entities currently inside a region.
func (e *Engine) UsersInRegion(id int) ([]entity.Snapshot, error) {
	r, ok := e.regions.Get(id)
	if !ok {
		return nil, fmt.Errorf("users in region %d: %w", id, region.ErrNotFound)
	}
	return r.UsersInRegion(e.entities), nil
}

// KickAll moves every entity inside a region to target.
func (e *Engine) KickAll(id int, target geom.Location, keep func(entity.Snapshot) bool) ([]uint32, error) {
	r, ok := e.regions.Get(id)
	if !ok {
		return nil, fmt.Errorf("kick all from region %d: %w", id, region.ErrNotFound)
	}
	return r.KickAll(e.entities, target, keep)
}

func (e *Engine) persistRegion(ctx context.Context, r *region.Region) error {
	if e.store == nil {
		return nil
	}
	if err := e.store.Save(ctx, rowOf(r)); err != nil {
		return fmt.Errorf("persist region %d: %w", r.ID(), err)
	}
	return nil
}
