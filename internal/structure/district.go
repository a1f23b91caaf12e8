// Package structure holds the world's fixed layout features: districts
// (named groups of chunk columns) and radio masts.
package structure

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/udisondev/regions/internal/entity"
	"github.com/udisondev/regions/internal/geom"
)

var (
	ErrNotFound      = errors.New("structure not found")
	ErrAlreadyExists = errors.New("structure already exists")
	ErrChunkClaimed  = errors.New("chunk already belongs to a district")
)

// EntitySource returns entities per chunk column (entity.Tracker).
type EntitySource interface {
	InChunks(keys []geom.ChunkKey) []entity.Snapshot
}

// District is a named set of chunk columns. A chunk belongs to at most one district.
type District struct {
	ID          int
	Name        string
	Description string
	Chunks      []geom.ChunkKey
}

// Districts is the district table with a chunk → district lookup.
type Districts struct {
	mu      sync.RWMutex
	byID    map[int]District
	byChunk map[geom.ChunkKey]int
}

// NewDistricts creates an empty table.
func NewDistricts() *Districts {
	return &Districts{
		byID:    make(map[int]District),
		byChunk: make(map[geom.ChunkKey]int),
	}
}

// Add registers a district. Fails if the id is taken or any chunk is already claimed.
func (ds *Districts) Add(d District) error {
	if len(d.Chunks) == 0 {
		return fmt.Errorf("add district %d: no chunks: %w", d.ID, geom.ErrInvalidArgument)
	}
	d.Chunks = slices.Clone(d.Chunks)

	ds.mu.Lock()
	defer ds.mu.Unlock()

	if _, ok := ds.byID[d.ID]; ok {
		return fmt.Errorf("add district %d: %w", d.ID, ErrAlreadyExists)
	}
	for _, k := range d.Chunks {
		if other, ok := ds.byChunk[k]; ok && other != d.ID {
			return fmt.Errorf("add district %d: %s held by %d: %w", d.ID, k, other, ErrChunkClaimed)
		}
	}

	ds.byID[d.ID] = d
	for _, k := range d.Chunks {
		ds.byChunk[k] = d.ID
	}
	slog.Debug("district added", "id", d.ID, "name", d.Name, "chunks", len(d.Chunks))
	return nil
}

// Get returns a district by id.
func (ds *Districts) Get(id int) (District, bool) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	d, ok := ds.byID[id]
	return d, ok
}

// ForChunk returns the district holding a chunk column.
func (ds *Districts) ForChunk(key geom.ChunkKey) (District, bool) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	id, ok := ds.byChunk[key]
	if !ok {
		return District{}, false
	}
	return ds.byID[id], true
}

// At returns the district containing a block.
func (ds *Districts) At(p geom.BlockPos) (District, bool) {
	if !p.Valid() {
		return District{}, false
	}
	return ds.ForChunk(p.Chunk())
}

// AtLocation returns the district containing a location.
func (ds *Districts) AtLocation(l geom.Location) (District, bool) {
	if !l.Valid() {
		return District{}, false
	}
	return ds.At(l.Block())
}

// All returns every district ordered by id.
func (ds *Districts) All() []District {
	ds.mu.RLock()
	out := make([]District, 0, len(ds.byID))
	for _, d := range ds.byID {
		out = append(out, d)
	}
	ds.mu.RUnlock()

	slices.SortFunc(out, func(a, b District) int { return a.ID - b.ID })
	return out
}

// UsersIn returns the entities standing in a district.
func (ds *Districts) UsersIn(id int, src EntitySource) ([]entity.Snapshot, error) {
	d, ok := ds.Get(id)
	if !ok {
		return nil, fmt.Errorf("district %d: %w", id, ErrNotFound)
	}
	return src.InChunks(d.Chunks), nil
}
