package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RegionRepository persists regions and residences in PostgreSQL.
type RegionRepository struct {
	pool *pgxpool.Pool
}

// NewRegionRepository creates a new region repository.
func NewRegionRepository(pool *pgxpool.Pool) *RegionRepository {
	return &RegionRepository{pool: pool}
}

// LoadAll loads every region with its areas, ordered by id.
func (r *RegionRepository) LoadAll(ctx context.Context) ([]RegionRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, allow_enter FROM regions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("loading regions: %w", err)
	}
	defer rows.Close()

	var out []*RegionRow
	byID := make(map[int64]*RegionRow)
	for rows.Next() {
		var row RegionRow
		if err := rows.Scan(&row.ID, &row.AllowEnter); err != nil {
			return nil, fmt.Errorf("scanning region row: %w", err)
		}
		out = append(out, &row)
		byID[row.ID] = &row
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating region rows: %w", err)
	}

	areaRows, err := r.pool.Query(ctx, `
		SELECT region_id, kind, world, min_x, min_y, min_z, max_x, max_y, max_z
		FROM region_areas
		ORDER BY region_id, kind, ord
	`)
	if err != nil {
		return nil, fmt.Errorf("loading region areas: %w", err)
	}
	defer areaRows.Close()

	for areaRows.Next() {
		var (
			regionID int64
			kind     int16
			a        AreaRow
		)
		if err := areaRows.Scan(&regionID, &kind, &a.World, &a.MinX, &a.MinY, &a.MinZ, &a.MaxX, &a.MaxY, &a.MaxZ); err != nil {
			return nil, fmt.Errorf("scanning region area row: %w", err)
		}
		groupAreas(byID, regionID, kind, a)
	}
	if err := areaRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating region area rows: %w", err)
	}

	result := make([]RegionRow, len(out))
	for i, row := range out {
		result[i] = *row
	}
	return result, nil
}

// Save upserts a region and replaces its areas in one transaction.
func (r *RegionRepository) Save(ctx context.Context, row RegionRow) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction for region %d: %w", row.ID, err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("rollback failed", "region", row.ID, "error", err)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO regions (id, allow_enter, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET allow_enter = EXCLUDED.allow_enter, updated_at = CURRENT_TIMESTAMP
	`, row.ID, row.AllowEnter)
	if err != nil {
		return fmt.Errorf("upserting region %d: %w", row.ID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM region_areas WHERE region_id = $1`, row.ID); err != nil {
		return fmt.Errorf("clearing areas of region %d: %w", row.ID, err)
	}

	batch := &pgx.Batch{}
	queueAreas := func(kind int16, areas []AreaRow) {
		for i, a := range areas {
			batch.Queue(`
				INSERT INTO region_areas (region_id, kind, ord, world, min_x, min_y, min_z, max_x, max_y, max_z)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			`, row.ID, kind, i, a.World, a.MinX, a.MinY, a.MinZ, a.MaxX, a.MaxY, a.MaxZ)
		}
	}
	queueAreas(areaIncluded, row.Included)
	queueAreas(areaExcluded, row.Excluded)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting areas of region %d: %w", row.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit region %d: %w", row.ID, err)
	}
	return nil
}

// Delete removes a region, its areas and any residence on it.
func (r *RegionRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM regions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting region %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting region %d: %w", id, ErrNotFound)
	}
	return nil
}

// LoadResidences loads every residence with its plot tiles and seams, ordered by id.
func (r *RegionRepository) LoadResidences(ctx context.Context) ([]ResidenceRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, kind, region_id, name, street, sign_rotation, block_id
		FROM residences
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("loading residences: %w", err)
	}
	defer rows.Close()

	var out []*ResidenceRow
	byID := make(map[int64]*ResidenceRow)
	for rows.Next() {
		var res ResidenceRow
		if err := rows.Scan(&res.ID, &res.Kind, &res.RegionID, &res.Name, &res.Street, &res.SignRotation, &res.BlockID); err != nil {
			return nil, fmt.Errorf("scanning residence row: %w", err)
		}
		out = append(out, &res)
		byID[res.ID] = &res
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating residence rows: %w", err)
	}

	linkRows, err := r.pool.Query(ctx, `
		SELECT residence_id, role, region_id
		FROM residence_regions
		ORDER BY residence_id, role, ord
	`)
	if err != nil {
		return nil, fmt.Errorf("loading residence regions: %w", err)
	}
	defer linkRows.Close()

	for linkRows.Next() {
		var (
			residenceID, regionID int64
			role                  int16
		)
		if err := linkRows.Scan(&residenceID, &role, &regionID); err != nil {
			return nil, fmt.Errorf("scanning residence region row: %w", err)
		}
		groupLinks(byID, residenceID, role, regionID)
	}
	if err := linkRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating residence region rows: %w", err)
	}

	result := make([]ResidenceRow, len(out))
	for i, res := range out {
		result[i] = *res
	}
	return result, nil
}

// SaveResidence upserts a residence and replaces its plot tiles and seams in
// one transaction.
func (r *RegionRepository) SaveResidence(ctx context.Context, res ResidenceRow) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction for residence %d: %w", res.ID, err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("rollback failed", "residence", res.ID, "error", err)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO residences (id, kind, region_id, name, street, sign_rotation, block_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			region_id = EXCLUDED.region_id,
			name = EXCLUDED.name,
			street = EXCLUDED.street,
			sign_rotation = EXCLUDED.sign_rotation,
			block_id = EXCLUDED.block_id
	`, res.ID, res.Kind, res.RegionID, res.Name, res.Street, res.SignRotation, res.BlockID)
	if err != nil {
		return fmt.Errorf("saving residence %d: %w", res.ID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM residence_regions WHERE residence_id = $1`, res.ID); err != nil {
		return fmt.Errorf("clearing regions of residence %d: %w", res.ID, err)
	}

	batch := &pgx.Batch{}
	for _, l := range res.linkedRegions() {
		batch.Queue(`
			INSERT INTO residence_regions (residence_id, region_id, role, ord)
			VALUES ($1, $2, $3, $4)
		`, res.ID, l.regionID, l.role, l.ord)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting regions of residence %d: %w", res.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit residence %d: %w", res.ID, err)
	}
	return nil
}

// DeleteResidence removes a residence.
func (r *RegionRepository) DeleteResidence(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM residences WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting residence %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting residence %d: %w", id, ErrNotFound)
	}
	return nil
}
