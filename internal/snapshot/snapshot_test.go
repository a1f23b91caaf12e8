package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/regions/internal/blockstore"
	"github.com/udisondev/regions/internal/geom"
)

const testWorld geom.WorldID = "main"

func seeded(t *testing.T) (*blockstore.Store, geom.Area) {
	t.Helper()
	ctx := context.Background()
	s := blockstore.NewStore()
	_, err := s.CreateWorld(testWorld, 0, 64)
	require.NoError(t, err)

	a := geom.MustArea(geom.NewBlockPos(testWorld, -3, 1, 14), geom.NewBlockPos(testWorld, 4, 5, 18))
	require.NoError(t, s.LoadArea(ctx, a))
	require.NoError(t, s.Update(ctx, []geom.WorldID{testWorld}, func(tx *blockstore.Tx) error {
		for p := range a.Blocks() {
			if err := tx.Set(p, uint16(p.X+p.Y*7+p.Z*13+100)); err != nil {
				return err
			}
		}
		return nil
	}))
	return s, a
}

func TestWriteRead(t *testing.T) {
	s, a := seeded(t)
	w, _ := s.World(testWorld)

	v, err := Capture(w.View(), a, "test")
	require.NoError(t, err)
	require.Len(t, v.Blocks, int(a.Volume()))

	path := Path(t.TempDir(), v)
	require.NoError(t, Write(path, v))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, v.Header.ID, got.Header.ID)
	assert.Equal(t, v.Blocks, got.Blocks)

	ga, err := got.Area()
	require.NoError(t, err)
	assert.Equal(t, a, ga)

	h, err := ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, "test", h.Reason)
	assert.Equal(t, string(testWorld), h.World)
}

func TestApplyRestoresBlocks(t *testing.T) {
	s, a := seeded(t)
	ctx := context.Background()
	w, _ := s.World(testWorld)

	v, err := Capture(w.View(), a, "")
	require.NoError(t, err)

	require.NoError(t, s.Fill(ctx, a, blockstore.Air))
	id, _ := s.Block(a.Min())
	require.Equal(t, blockstore.Air, id)

	require.NoError(t, s.Update(ctx, []geom.WorldID{testWorld}, func(tx *blockstore.Tx) error {
		return Apply(tx, v)
	}))
	for p := range a.Blocks() {
		id, _ := s.Block(p)
		require.Equal(t, uint16(p.X+p.Y*7+p.Z*13+100), id, p.String())
	}
}

func TestApplyRejectsTruncatedVolume(t *testing.T) {
	s, a := seeded(t)
	w, _ := s.World(testWorld)
	v, err := Capture(w.View(), a, "")
	require.NoError(t, err)
	v.Blocks = v.Blocks[:10]

	err = s.Update(context.Background(), []geom.WorldID{testWorld}, func(tx *blockstore.Tx) error {
		return Apply(tx, v)
	})
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestCaptureRequiresLoaded(t *testing.T) {
	s, _ := seeded(t)
	w, _ := s.World(testWorld)
	far := geom.MustArea(geom.NewBlockPos(testWorld, 500, 0, 500), geom.NewBlockPos(testWorld, 501, 1, 501))

	_, err := Capture(w.View(), far, "")
	assert.True(t, errors.Is(err, blockstore.ErrNotLoaded))
}

func TestReadGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.vol.zst")
	require.NoError(t, os.WriteFile(path, []byte("not zstd at all"), 0o644))

	_, err := Read(path)
	assert.Error(t, err)
}
