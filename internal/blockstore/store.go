// Package blockstore keeps voxel block data per world as 16×16 chunk columns.
//
// Each world publishes an immutable chunk table behind an atomic pointer.
// Readers take a View (one pointer load) and never lock; writers stage
// copy-on-write chunks in a Tx and publish them with a single store, so a
// reader sees either all of a transaction's writes or none of them.
package blockstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/udisondev/regions/internal/geom"
)

var (
	ErrUnknownWorld = errors.New("unknown world")
	ErrWorldExists  = errors.New("world already exists")
	ErrNotLoaded    = errors.New("chunk not loaded")
	ErrOutOfHeight  = errors.New("position outside world height")
)

type chunkTable map[geom.ChunkKey]*Chunk

// World is the block data of one world.
type World struct {
	id     geom.WorldID
	minY   int32
	height int32

	writeMu sync.Mutex // serialises transactions; readers never take it
	table   atomic.Pointer[chunkTable]
	version atomic.Uint64
}

// ID returns the world id.
func (w *World) ID() geom.WorldID { return w.id }

// MinY returns the lowest valid block y.
func (w *World) MinY() int32 { return w.minY }

// Height returns the number of valid block layers.
func (w *World) Height() int32 { return w.height }

// InHeight reports whether the area lies within the world's height range.
func (w *World) InHeight(a geom.Area) bool {
	return a.Min().Y >= w.minY && a.Max().Y < w.minY+w.height
}

// View returns a consistent read snapshot of the world.
func (w *World) View() View {
	return View{world: w, table: *w.table.Load(), version: w.version.Load()}
}

// View is an immutable snapshot of one world's chunks.
type View struct {
	world   *World
	table   chunkTable
	version uint64
}

// World returns the world this view belongs to.
func (v View) World() *World { return v.world }

// Version returns the commit counter at snapshot time.
func (v View) Version() uint64 { return v.version }

// Chunk returns a published chunk.
func (v View) Chunk(key geom.ChunkKey) (*Chunk, bool) {
	c, ok := v.table[key]
	return c, ok
}

// Block returns the block id at p; false if p's chunk is not loaded or p is
// outside the height range.
func (v View) Block(p geom.BlockPos) (uint16, bool) {
	if p.World != v.world.id {
		return 0, false
	}
	c, ok := v.table[p.Chunk()]
	if !ok || !c.inHeight(p.Y) {
		return 0, false
	}
	return c.Get(p), true
}

// Loaded reports whether every chunk column of a is loaded and a fits the height range.
func (v View) Loaded(a geom.Area) bool {
	if a.World() != v.world.id || !v.world.InHeight(a) {
		return false
	}
	if a.ChunkCount() > int64(len(v.table)) {
		return false
	}
	for k := range a.ChunkSeq() {
		if _, ok := v.table[k]; !ok {
			return false
		}
	}
	return true
}

// LoadedChunks returns the number of loaded chunk columns.
func (v View) LoadedChunks() int { return len(v.table) }

// Store holds all worlds.
type Store struct {
	mu     sync.RWMutex
	worlds map[geom.WorldID]*World
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{worlds: make(map[geom.WorldID]*World)}
}

// CreateWorld registers a world with the given vertical range.
func (s *Store) CreateWorld(id geom.WorldID, minY, height int32) (*World, error) {
	if id == "" || height <= 0 {
		return nil, fmt.Errorf("create world %q: %w", id, geom.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.worlds[id]; ok {
		return nil, fmt.Errorf("create world %q: %w", id, ErrWorldExists)
	}

	w := &World{id: id, minY: minY, height: height}
	empty := chunkTable{}
	w.table.Store(&empty)
	s.worlds[id] = w
	return w, nil
}

// World returns a world by id.
func (s *Store) World(id geom.WorldID) (*World, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.worlds[id]
	return w, ok
}

// Worlds returns all world ids, sorted.
func (s *Store) Worlds() []geom.WorldID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.worlds))
}

// Block reads one block from the current published state.
func (s *Store) Block(p geom.BlockPos) (uint16, bool) {
	w, ok := s.World(p.World)
	if !ok {
		return 0, false
	}
	return w.View().Block(p)
}

// Tx stages writes against one or more worlds. Obtained through Store.Update.
type Tx struct {
	worlds map[geom.WorldID]*txWorld
}

type txWorld struct {
	world   *World
	base    View
	staged  map[geom.ChunkKey]*Chunk
	dropped map[geom.ChunkKey]struct{}
}

// View returns the pre-transaction snapshot of a locked world.
func (tx *Tx) View(id geom.WorldID) (View, error) {
	tw, ok := tx.worlds[id]
	if !ok {
		return View{}, fmt.Errorf("world %q not in transaction: %w", id, ErrUnknownWorld)
	}
	return tw.base, nil
}

// Set stages one block write.
func (tx *Tx) Set(p geom.BlockPos, id uint16) error {
	tw, ok := tx.worlds[p.World]
	if !ok {
		return fmt.Errorf("set %s: %w", p, ErrUnknownWorld)
	}
	c, err := tw.writable(p.Chunk())
	if err != nil {
		return fmt.Errorf("set %s: %w", p, err)
	}
	if !c.inHeight(p.Y) {
		return fmt.Errorf("set %s: %w", p, ErrOutOfHeight)
	}
	c.set(p, id)
	return nil
}

// LoadChunk stages an empty (air) chunk column unless it is already loaded.
func (tx *Tx) LoadChunk(key geom.ChunkKey) error {
	tw, ok := tx.worlds[key.World]
	if !ok {
		return fmt.Errorf("load chunk %s: %w", key, ErrUnknownWorld)
	}
	delete(tw.dropped, key)
	if _, ok := tw.staged[key]; ok {
		return nil
	}
	if _, ok := tw.base.table[key]; ok {
		return nil
	}
	tw.staged[key] = newChunk(key, tw.world.minY, tw.world.height)
	return nil
}

// UnloadChunk stages removal of a chunk column.
func (tx *Tx) UnloadChunk(key geom.ChunkKey) error {
	tw, ok := tx.worlds[key.World]
	if !ok {
		return fmt.Errorf("unload chunk %s: %w", key, ErrUnknownWorld)
	}
	delete(tw.staged, key)
	tw.dropped[key] = struct{}{}
	return nil
}

// StagedChunks returns the number of chunk columns the transaction will publish.
func (tx *Tx) StagedChunks() int {
	n := 0
	for _, tw := range tx.worlds {
		n += len(tw.staged)
	}
	return n
}

func (tw *txWorld) writable(key geom.ChunkKey) (*Chunk, error) {
	if c, ok := tw.staged[key]; ok {
		return c, nil
	}
	if _, gone := tw.dropped[key]; gone {
		return nil, ErrNotLoaded
	}
	base, ok := tw.base.table[key]
	if !ok {
		return nil, ErrNotLoaded
	}
	c := base.clone()
	tw.staged[key] = c
	return c, nil
}

func (tw *txWorld) commit() {
	if len(tw.staged) == 0 && len(tw.dropped) == 0 {
		return
	}
	next := make(chunkTable, len(tw.base.table)+len(tw.staged))
	maps.Copy(next, tw.base.table)
	for k := range tw.dropped {
		delete(next, k)
	}
	maps.Copy(next, tw.staged)

	tw.world.table.Store(&next)
	tw.world.version.Add(1)
}

// Update runs fn with exclusive write access to the given worlds and publishes
// the staged writes if fn returns nil. Worlds are locked in id order. If fn
// fails or ctx is done, nothing is published.
func (s *Store) Update(ctx context.Context, worlds []geom.WorldID, fn func(tx *Tx) error) error {
	ids := slices.Clone(worlds)
	slices.SortFunc(ids, cmp.Compare[geom.WorldID])
	ids = slices.Compact(ids)

	tx := &Tx{worlds: make(map[geom.WorldID]*txWorld, len(ids))}
	for _, id := range ids {
		w, ok := s.World(id)
		if !ok {
			return fmt.Errorf("update world %q: %w", id, ErrUnknownWorld)
		}
		w.writeMu.Lock()
		defer w.writeMu.Unlock()

		tx.worlds[id] = &txWorld{
			world:   w,
			base:    w.View(),
			staged:  make(map[geom.ChunkKey]*Chunk),
			dropped: make(map[geom.ChunkKey]struct{}),
		}
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		tx.worlds[id].commit()
	}
	return nil
}

// SetBlock writes a single block.
func (s *Store) SetBlock(ctx context.Context, p geom.BlockPos, id uint16) error {
	return s.Update(ctx, []geom.WorldID{p.World}, func(tx *Tx) error {
		return tx.Set(p, id)
	})
}

// Fill writes id into every block of a.
func (s *Store) Fill(ctx context.Context, a geom.Area, id uint16) error {
	return s.Update(ctx, []geom.WorldID{a.World()}, func(tx *Tx) error {
		for p := range a.Blocks() {
			if err := tx.Set(p, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadArea loads (as air) every chunk column a touches that is not loaded yet.
func (s *Store) LoadArea(ctx context.Context, a geom.Area) error {
	return s.Update(ctx, []geom.WorldID{a.World()}, func(tx *Tx) error {
		for k := range a.ChunkSeq() {
			if err := tx.LoadChunk(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// UnloadChunk drops one chunk column.
func (s *Store) UnloadChunk(ctx context.Context, key geom.ChunkKey) error {
	return s.Update(ctx, []geom.WorldID{key.World}, func(tx *Tx) error {
		return tx.UnloadChunk(key)
	})
}

// LoadChunk loads one chunk column as air.
func (s *Store) LoadChunk(ctx context.Context, key geom.ChunkKey) error {
	return s.Update(ctx, []geom.WorldID{key.World}, func(tx *Tx) error {
		return tx.LoadChunk(key)
	})
}

// Loaded reports whether every chunk column of a is currently loaded.
func (s *Store) Loaded(a geom.Area) bool {
	w, ok := s.World(a.World())
	if !ok {
		return false
	}
	return w.View().Loaded(a)
}

// InBounds reports whether a names a known world and fits its height range.
func (s *Store) InBounds(a geom.Area) bool {
	w, ok := s.World(a.World())
	return ok && w.InHeight(a)
}
