package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/udisondev/regions/internal/db"
	"github.com/udisondev/regions/internal/geom"
	"github.com/udisondev/regions/internal/mutator"
	"github.com/udisondev/regions/internal/region"
)

// Translate copies req.Source by the delta and waits for the outcome. The
// regions named in shiftRegions are moved by the same delta on the worker,
// after every block is staged and before the copy is published; they must lie
// in the source world. Either the copy is published with every region shifted
// and persisted, or nothing changes.
func (e *Engine) Translate(ctx context.Context, req mutator.TranslateRequest, shiftRegions ...int) (mutator.Result, error) {
	shifted := make([]*region.Region, 0, len(shiftRegions))
	seen := make(map[int]struct{}, len(shiftRegions))
	for _, id := range shiftRegions {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		r, ok := e.regions.Get(id)
		if !ok {
			return mutator.Result{}, fmt.Errorf("translate: region %d: %w", id, region.ErrNotFound)
		}
		if r.World() != req.Source.World() {
			return mutator.Result{}, fmt.Errorf("translate: region %d is in world %q: %w", id, r.World(), geom.ErrInvalidArgument)
		}
		_, okInc := translateAll(r.Included(), req.DX, req.DY, req.DZ)
		_, okExc := translateAll(r.Excluded(), req.DX, req.DY, req.DZ)
		if !okInc || !okExc {
			return mutator.Result{}, fmt.Errorf("translate: region %d: %w", id, mutator.ErrOutOfBounds)
		}
		shifted = append(shifted, r)
	}

	if len(shifted) > 0 {
		next := req.BeforePublish
		req.BeforePublish = func(ctx context.Context, res mutator.Result) error {
			done, err := e.shiftRegions(ctx, shifted, req.DX, req.DY, req.DZ)
			if err != nil {
				return err
			}
			if next != nil {
				if err := next(ctx, res); err != nil {
					e.unshiftRegions(ctx, done)
					return err
				}
			}
			return nil
		}
	}

	job, err := e.mutator.Translate(ctx, req)
	if err != nil {
		return mutator.Result{}, err
	}
	return job.Wait(ctx)
}

// regionShift is the geometry a region had before Translate moved it.
type regionShift struct {
	r        *region.Region
	included []geom.Area
	excluded []geom.Area
}

// shiftRegions moves and persists every region, or none of them.
func (e *Engine) shiftRegions(ctx context.Context, rs []*region.Region, dx, dy, dz int32) ([]regionShift, error) {
	done := make([]regionShift, 0, len(rs))
	for _, r := range rs {
		prev := regionShift{r: r, included: r.Included(), excluded: r.Excluded()}
		inc, okInc := translateAll(prev.included, dx, dy, dz)
		exc, okExc := translateAll(prev.excluded, dx, dy, dz)
		if !okInc || !okExc {
			e.unshiftRegions(ctx, done)
			return nil, fmt.Errorf("shift region %d: %w", r.ID(), mutator.ErrOutOfBounds)
		}
		if err := r.Update(inc, exc); err != nil {
			e.unshiftRegions(ctx, done)
			return nil, fmt.Errorf("shift region %d: %w", r.ID(), err)
		}
		done = append(done, prev)
		if err := e.persistRegion(ctx, r); err != nil {
			e.unshiftRegions(ctx, done)
			return nil, fmt.Errorf("shift region %d: %w", r.ID(), err)
		}
		slog.Debug("region shifted", "id", r.ID(), "dx", dx, "dy", dy, "dz", dz)
	}
	return done, nil
}

// unshiftRegions puts back the geometry recorded by shiftRegions, newest first,
// and re-saves it so the store matches memory again.
func (e *Engine) unshiftRegions(ctx context.Context, done []regionShift) {
	ctx = context.WithoutCancel(ctx)
	for _, s := range slices.Backward(done) {
		if err := s.r.Update(s.included, s.excluded); err != nil {
			slog.Error("region shift rollback failed", "id", s.r.ID(), "error", err)
			continue
		}
		if err := e.persistRegion(ctx, s.r); err != nil {
			slog.Error("region shift rollback not persisted", "id", s.r.ID(), "error", err)
		}
	}
}

// LoadPreset copies a preset volume into the primary world and waits for it.
func (e *Engine) LoadPreset(ctx context.Context, presetArea geom.Area, presetPivot, mainPivot geom.BlockPos) (mutator.Result, error) {
	job, err := e.mutator.LoadPreset(ctx, presetArea, presetPivot, mainPivot)
	if err != nil {
		return mutator.Result{}, err
	}
	return job.Wait(ctx)
}

// RestoreBackup writes a destination backup taken by an earlier copy back in place.
func (e *Engine) RestoreBackup(ctx context.Context, path string) (mutator.Result, error) {
	job, err := e.mutator.Restore(ctx, path)
	if err != nil {
		return mutator.Result{}, err
	}
	return job.Wait(ctx)
}

func translateAll(areas []geom.Area, dx, dy, dz int32) ([]geom.Area, bool) {
	out := make([]geom.Area, len(areas))
	for i, a := range areas {
		moved, ok := a.MoveChecked(a.World(), dx, dy, dz)
		if !ok {
			return nil, false
		}
		out[i] = moved
	}
	return out, true
}

func rowOf(r *region.Region) db.RegionRow {
	row := db.RegionRow{ID: int64(r.ID()), AllowEnter: r.AllowedToEnter()}
	for _, a := range r.Included() {
		row.Included = append(row.Included, db.AreaRowOf(a))
	}
	for _, a := range r.Excluded() {
		row.Excluded = append(row.Excluded, db.AreaRowOf(a))
	}
	return row
}

func areasOf(row db.RegionRow) (included, excluded []geom.Area, err error) {
	for _, a := range row.Included {
		area, err := a.Area()
		if err != nil {
			return nil, nil, err
		}
		included = append(included, area)
	}
	for _, a := range row.Excluded {
		area, err := a.Area()
		if err != nil {
			return nil, nil, err
		}
		excluded = append(excluded, area)
	}
	return included, excluded, nil
}
