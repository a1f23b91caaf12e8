// Package mutator runs bulk block-volume operations (translate, preset load,
// backup restore) as asynchronous jobs off the query path.
//
// Every job stages its writes in a blockstore transaction and publishes them
// in one step; a failed job leaves the world unchanged.
package mutator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/regions/internal/blockstore"
	"github.com/udisondev/regions/internal/entity"
	"github.com/udisondev/regions/internal/geom"
	"github.com/udisondev/regions/internal/snapshot"
)

var (
	ErrOutOfBounds         = errors.New("volume out of bounds")
	ErrOverlappingVolumes  = errors.New("source and destination volumes overlap")
	ErrNotPrimaryAuthority = errors.New("process is not the primary world authority")
	ErrQueueFull           = errors.New("bulk job queue is full")
	ErrStopped             = errors.New("mutator stopped")
	ErrAlreadyRunning      = errors.New("mutator already running")
)

// ctx is checked once per this many copied blocks
const cancelCheckEvery = 4096

// Entities is the position feed bulk jobs relocate entities through (entity.Tracker).
type Entities interface {
	InChunks(keys []geom.ChunkKey) []entity.Snapshot
	Move(id uint32, loc geom.Location) error
}

// Config controls authority and the worker pool.
type Config struct {
	// Primary marks the single process allowed to load presets into the primary world.
	Primary      bool
	PrimaryWorld geom.WorldID
	PresetsWorld geom.WorldID

	Workers   int
	QueueSize int
	// BackupDir, when set, receives a snapshot of every destination volume
	// before it is overwritten.
	BackupDir string
}

// Mutator owns the bulk job queue.
type Mutator struct {
	store    *blockstore.Store
	entities Entities
	cfg      Config

	mu      sync.RWMutex // guards closed against enqueue
	closed  bool
	queue   chan *Job
	running atomic.Bool
}

// New creates a mutator. entities may be nil when no job relocates entities.
func New(store *blockstore.Store, entities Entities, cfg Config) *Mutator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	return &Mutator{
		store:    store,
		entities: entities,
		cfg:      cfg,
		queue:    make(chan *Job, cfg.QueueSize),
	}
}

// Run starts the workers and blocks until ctx is cancelled or a worker fails.
// Jobs still queued at shutdown finish with ErrStopped.
func (m *Mutator) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	slog.Info("mutator started", "workers", m.cfg.Workers, "queue", m.cfg.QueueSize)

	g, gctx := errgroup.WithContext(ctx)
	for i := range m.cfg.Workers {
		g.Go(func() error {
			return m.work(gctx, i)
		})
	}
	err := g.Wait()

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.drain()

	slog.Info("mutator stopped")
	return err
}

func (m *Mutator) work(ctx context.Context, worker int) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-m.queue:
			instrumentQueue(len(m.queue))
			m.execute(ctx, worker, j)
		}
	}
}

func (m *Mutator) drain() {
	for {
		select {
		case j := <-m.queue:
			j.state.CompareAndSwap(jobQueued, jobCancelled)
			j.finish(Result{}, ErrStopped)
		default:
			instrumentQueue(0)
			return
		}
	}
}

func (m *Mutator) execute(ctx context.Context, worker int, j *Job) {
	if !j.start() {
		slog.Debug("bulk job cancelled before start", "job", j.id, "op", j.op)
		return
	}
	start := time.Now()
	waited := start.Sub(j.created)
	res, err := j.run(ctx)
	took := time.Since(start)

	instrumentJob(j.op, took, res.Blocks, err)
	if err != nil {
		slog.Warn("bulk job failed", "job", j.id, "op", j.op, "worker", worker, "took", took, "error", err)
	} else {
		slog.Info("bulk job done",
			"job", j.id,
			"op", j.op,
			"area", res.Area,
			"blocks", res.Blocks,
			"moved", len(res.Moved),
			"waited", waited,
			"took", took)
	}
	j.finish(res, err)
}

func (m *Mutator) enqueue(j *Job) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrStopped
	}
	select {
	case m.queue <- j:
		instrumentQueue(len(m.queue))
		slog.Debug("bulk job queued", "job", j.id, "op", j.op)
		return nil
	default:
		return ErrQueueFull
	}
}

// TranslateRequest describes a same-world volume copy.
type TranslateRequest struct {
	Source       geom.Area
	DX, DY, DZ   int32
	MoveEntities bool
	// Reason is recorded in the backup header.
	Reason string
	// BeforePublish runs on the worker once every block is staged, while the
	// worlds are still write-locked. An error aborts the job and nothing is
	// published, so BeforePublish must undo its own changes before failing.
	// Once it returns nil the copy is published.
	BeforePublish func(ctx context.Context, res Result) error
}

// Translate queues a copy of req.Source shifted by the delta. The source is
// left untouched. With MoveEntities, entities inside the source are moved by
// the same delta after the copy is published.
func (m *Mutator) Translate(ctx context.Context, req TranslateRequest) (*Job, error) {
	if !req.Source.Valid() {
		return nil, fmt.Errorf("translate: source: %w", geom.ErrInvalidArgument)
	}
	if _, ok := req.Source.MoveChecked(req.Source.World(), req.DX, req.DY, req.DZ); !ok {
		return nil, fmt.Errorf("translate: %s by (%d,%d,%d) leaves the coordinate range: %w",
			req.Source, req.DX, req.DY, req.DZ, ErrOutOfBounds)
	}
	if req.MoveEntities && m.entities == nil {
		return nil, fmt.Errorf("translate: no entity feed to move entities through: %w", geom.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	j := newJob(OpTranslate, func(ctx context.Context) (Result, error) {
		return m.translate(ctx, req)
	})
	if err := m.enqueue(j); err != nil {
		return nil, fmt.Errorf("translate: %w", err)
	}
	return j, nil
}

// LoadPreset queues a copy of presetArea from the presets world into the
// primary world, moved by mainPivot - presetPivot. Only the primary process may
// call it.
func (m *Mutator) LoadPreset(ctx context.Context, presetArea geom.Area, presetPivot, mainPivot geom.BlockPos) (*Job, error) {
	if !m.cfg.Primary {
		return nil, fmt.Errorf("load preset: %w", ErrNotPrimaryAuthority)
	}
	if !presetArea.Valid() || !presetPivot.Valid() || !mainPivot.Valid() {
		return nil, fmt.Errorf("load preset: %w", geom.ErrInvalidArgument)
	}
	if presetArea.World() != m.cfg.PresetsWorld || presetPivot.World != m.cfg.PresetsWorld {
		return nil, fmt.Errorf("load preset: preset must be in world %q: %w", m.cfg.PresetsWorld, geom.ErrInvalidArgument)
	}
	if mainPivot.World != m.cfg.PrimaryWorld {
		return nil, fmt.Errorf("load preset: pivot must be in world %q: %w", m.cfg.PrimaryWorld, geom.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dx, dy, dz := mainPivot.Sub(presetPivot)
	if _, ok := presetArea.MoveChecked(m.cfg.PrimaryWorld, dx, dy, dz); !ok {
		return nil, fmt.Errorf("load preset: %s onto %s leaves the coordinate range: %w", presetArea, mainPivot, ErrOutOfBounds)
	}
	j := newJob(OpLoadPreset, func(ctx context.Context) (Result, error) {
		return m.copyVolume(ctx, presetArea, m.cfg.PrimaryWorld, dx, dy, dz, "load_preset", nil)
	})
	if err := m.enqueue(j); err != nil {
		return nil, fmt.Errorf("load preset: %w", err)
	}
	return j, nil
}

// Restore queues writing a backup volume back to where it was taken.
func (m *Mutator) Restore(ctx context.Context, path string) (*Job, error) {
	if path == "" {
		return nil, fmt.Errorf("restore: empty path: %w", geom.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	j := newJob(OpRestore, func(ctx context.Context) (Result, error) {
		return m.restore(ctx, path)
	})
	if err := m.enqueue(j); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	return j, nil
}

func (m *Mutator) translate(ctx context.Context, req TranslateRequest) (Result, error) {
	reason := req.Reason
	if reason == "" {
		reason = string(OpTranslate)
	}
	res, err := m.copyVolume(ctx, req.Source, req.Source.World(), req.DX, req.DY, req.DZ, reason, req.BeforePublish)
	if err != nil || !req.MoveEntities {
		return res, err
	}

	res.Moved = m.moveEntities(req.Source, req.DX, req.DY, req.DZ)
	return res, nil
}

// copyVolume copies src into dstWorld shifted by the delta as one transaction.
// ctx is honoured up to prepublish; once prepublish succeeds the copy is published.
func (m *Mutator) copyVolume(ctx context.Context, src geom.Area, dstWorld geom.WorldID, dx, dy, dz int32,
	reason string, prepublish func(context.Context, Result) error) (Result, error) {
	dst, ok := src.MoveChecked(dstWorld, dx, dy, dz)
	if !ok {
		return Result{}, fmt.Errorf("copy %s by (%d,%d,%d): %w", src, dx, dy, dz, ErrOutOfBounds)
	}
	if src.Intersects(dst) {
		return Result{}, fmt.Errorf("copy %s to %s: %w", src, dst, ErrOverlappingVolumes)
	}
	for _, w := range []geom.WorldID{src.World(), dstWorld} {
		if _, ok := m.store.World(w); !ok {
			return Result{}, fmt.Errorf("copy %s to %s: world %q: %w", src, dst, w, ErrOutOfBounds)
		}
	}

	res := Result{Area: dst, Blocks: src.Volume()}
	err := m.store.Update(context.WithoutCancel(ctx), []geom.WorldID{src.World(), dstWorld}, func(tx *blockstore.Tx) error {
		srcView, err := tx.View(src.World())
		if err != nil {
			return err
		}
		dstView, err := tx.View(dstWorld)
		if err != nil {
			return err
		}
		if !srcView.Loaded(src) {
			return fmt.Errorf("source %s: %w", src, ErrOutOfBounds)
		}
		if !dstView.Loaded(dst) {
			return fmt.Errorf("destination %s: %w", dst, ErrOutOfBounds)
		}

		if m.cfg.BackupDir != "" {
			path, err := m.backup(dstView, dst, reason)
			if err != nil {
				return err
			}
			res.Backup = path
		}

		n := 0
		for p := range src.Blocks() {
			if n%cancelCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			n++
			id, _ := srcView.Block(p)
			if err := tx.Set(p.InWorld(dstWorld).Add(dx, dy, dz), id); err != nil {
				return fmt.Errorf("%w: %w", ErrOutOfBounds, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if prepublish != nil {
			return prepublish(ctx, res)
		}
		return nil
	})
	if err != nil {
		m.discardBackup(res.Backup)
		return Result{}, fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return res, nil
}

// discardBackup removes the snapshot of a copy that was never published.
func (m *Mutator) discardBackup(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("removing unused backup", "path", path, "error", err)
	}
}

func (m *Mutator) backup(view blockstore.View, a geom.Area, reason string) (string, error) {
	v, err := snapshot.Capture(view, a, reason)
	if err != nil {
		return "", fmt.Errorf("backup %s: %w", a, err)
	}
	path := snapshot.Path(m.cfg.BackupDir, v)
	if err := snapshot.Write(path, v); err != nil {
		return "", fmt.Errorf("backup %s: %w", a, err)
	}
	return path, nil
}

func (m *Mutator) restore(ctx context.Context, path string) (Result, error) {
	v, err := snapshot.Read(path)
	if err != nil {
		return Result{}, fmt.Errorf("restore %s: %w", path, err)
	}
	a, err := v.Area()
	if err != nil {
		return Result{}, fmt.Errorf("restore %s: %w", path, err)
	}
	if a.World() == m.cfg.PrimaryWorld && !m.cfg.Primary {
		return Result{}, fmt.Errorf("restore %s: %w", path, ErrNotPrimaryAuthority)
	}
	if _, ok := m.store.World(a.World()); !ok {
		return Result{}, fmt.Errorf("restore %s: world %q: %w", path, a.World(), ErrOutOfBounds)
	}

	err = m.store.Update(ctx, []geom.WorldID{a.World()}, func(tx *blockstore.Tx) error {
		view, err := tx.View(a.World())
		if err != nil {
			return err
		}
		if !view.Loaded(a) {
			return fmt.Errorf("%s: %w", a, ErrOutOfBounds)
		}
		return snapshot.Apply(tx, v)
	})
	if err != nil {
		return Result{}, fmt.Errorf("restore %s: %w", path, err)
	}
	return Result{Area: a, Blocks: a.Volume()}, nil
}

func (m *Mutator) moveEntities(src geom.Area, dx, dy, dz int32) []uint32 {
	var moved []uint32
	for _, e := range m.entities.InChunks(src.Chunks()) {
		if !src.ContainsLocation(e.Location) {
			continue
		}
		if err := m.entities.Move(e.ID, e.Location.Add(dx, dy, dz)); err != nil {
			// despawned between snapshot and move
			slog.Debug("entity not moved", "id", e.ID, "error", err)
			continue
		}
		moved = append(moved, e.ID)
	}
	return moved
}
