package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLite is a single-file region store for single-node and dev setups.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
// path may be ":memory:".
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("empty sqlite path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	// one connection: pragmas are per connection and :memory: is per connection
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.ExecContext(ctx, p); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("sqlite %q: %w", p, err)
		}
	}

	if err := migrate(ctx, sqlDB, "sqlite3"); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &SQLite{db: sqlDB}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// SQLiteRegionRepository persists regions and residences in SQLite.
type SQLiteRegionRepository struct {
	db *sql.DB
}

// NewSQLiteRegionRepository creates a repository on an open SQLite store.
func NewSQLiteRegionRepository(s *SQLite) *SQLiteRegionRepository {
	return &SQLiteRegionRepository{db: s.db}
}

// LoadAll loads every region with its areas, ordered by id.
func (r *SQLiteRegionRepository) LoadAll(ctx context.Context) ([]RegionRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, allow_enter FROM regions ORDER BY id`)
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
	rows.Close()

	areaRows, err := r.db.QueryContext(ctx, `
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
func (r *SQLiteRegionRepository) Save(ctx context.Context, row RegionRow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for region %d: %w", row.ID, err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.Error("rollback failed", "region", row.ID, "error", err)
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO regions (id, allow_enter, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET allow_enter = excluded.allow_enter, updated_at = CURRENT_TIMESTAMP
	`, row.ID, row.AllowEnter)
	if err != nil {
		return fmt.Errorf("upserting region %d: %w", row.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM region_areas WHERE region_id = ?`, row.ID); err != nil {
		return fmt.Errorf("clearing areas of region %d: %w", row.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO region_areas (region_id, kind, ord, world, min_x, min_y, min_z, max_x, max_y, max_z)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing area insert: %w", err)
	}
	defer stmt.Close()

	for _, part := range []struct {
		kind  int16
		areas []AreaRow
	}{{areaIncluded, row.Included}, {areaExcluded, row.Excluded}} {
		for i, a := range part.areas {
			if _, err := stmt.ExecContext(ctx, row.ID, part.kind, i, a.World, a.MinX, a.MinY, a.MinZ, a.MaxX, a.MaxY, a.MaxZ); err != nil {
				return fmt.Errorf("inserting area %d of region %d: %w", i, row.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit region %d: %w", row.ID, err)
	}
	return nil
}

// Delete removes a region, its areas and any residence on it.
func (r *SQLiteRegionRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM regions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting region %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deleting region %d: %w", id, ErrNotFound)
	}
	return nil
}

// LoadResidences loads every residence with its plot tiles and seams, ordered by id.
func (r *SQLiteRegionRepository) LoadResidences(ctx context.Context) ([]ResidenceRow, error) {
	rows, err := r.db.QueryContext(ctx, `
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
	rows.Close()

	linkRows, err := r.db.QueryContext(ctx, `
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
func (r *SQLiteRegionRepository) SaveResidence(ctx context.Context, res ResidenceRow) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for residence %d: %w", res.ID, err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.Error("rollback failed", "residence", res.ID, "error", err)
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO residences (id, kind, region_id, name, street, sign_rotation, block_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			kind = excluded.kind,
			region_id = excluded.region_id,
			name = excluded.name,
			street = excluded.street,
			sign_rotation = excluded.sign_rotation,
			block_id = excluded.block_id
	`, res.ID, res.Kind, res.RegionID, res.Name, res.Street, res.SignRotation, res.BlockID)
	if err != nil {
		return fmt.Errorf("saving residence %d: %w", res.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM residence_regions WHERE residence_id = ?`, res.ID); err != nil {
		return fmt.Errorf("clearing regions of residence %d: %w", res.ID, err)
	}
	for _, l := range res.linkedRegions() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO residence_regions (residence_id, region_id, role, ord)
			VALUES (?, ?, ?, ?)
		`, res.ID, l.regionID, l.role, l.ord)
		if err != nil {
			return fmt.Errorf("inserting region %d of residence %d: %w", l.regionID, res.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit residence %d: %w", res.ID, err)
	}
	return nil
}

// DeleteResidence removes a residence.
func (r *SQLiteRegionRepository) DeleteResidence(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM residences WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting residence %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deleting residence %d: %w", id, ErrNotFound)
	}
	return nil
}
