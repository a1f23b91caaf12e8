package entity

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/regions/internal/geom"
)

const testWorld geom.WorldID = "main"

func loc(x, y, z float64) geom.Location {
	return geom.Location{World: testWorld, X: x, Y: y, Z: z}
}

func chunk(cx, cz int32) geom.ChunkKey {
	return geom.ChunkKey{World: testWorld, CX: cx, CZ: cz}
}

func TestTracker_SpawnGet(t *testing.T) {
	tr := NewTracker()

	require.NoError(t, tr.Spawn(1, "Alice", loc(1.5, 64, 2.5)))

	snap, ok := tr.Get(1)
	require.True(t, ok)
	assert.Equal(t, "Alice", snap.Name)
	assert.Equal(t, loc(1.5, 64, 2.5), snap.Location)
	assert.Equal(t, 1, tr.Count())

	err := tr.Spawn(1, "Again", loc(0, 0, 0))
	assert.True(t, errors.Is(err, ErrAlreadyExists))

	err = tr.Spawn(2, "Nowhere", geom.Location{X: 1})
	assert.True(t, errors.Is(err, geom.ErrInvalidArgument))
}

func TestTracker_MoveRebuckets(t *testing.T) {
	tr := NewTracker()
	require.NoError(t, tr.Spawn(7, "Bob", loc(1, 64, 1)))

	got := tr.InChunks([]geom.ChunkKey{chunk(0, 0)})
	require.Len(t, got, 1)

	v0 := tr.ChunkVersion(chunk(0, 0))
	require.NoError(t, tr.Move(7, loc(17, 64, 1)))
	assert.Greater(t, tr.ChunkVersion(chunk(0, 0)), v0)

	assert.Empty(t, tr.InChunks([]geom.ChunkKey{chunk(0, 0)}))
	got = tr.InChunks([]geom.ChunkKey{chunk(1, 0)})
	require.Len(t, got, 1)
	assert.Equal(t, uint32(7), got[0].ID)

	// move inside the same chunk keeps the bucket
	require.NoError(t, tr.Move(7, loc(18, 65, 2)))
	got = tr.InChunks([]geom.ChunkKey{chunk(1, 0), chunk(1, 0)})
	require.Len(t, got, 1)
	assert.Equal(t, loc(18, 65, 2), got[0].Location)
}

func TestTracker_MoveUnknown(t *testing.T) {
	tr := NewTracker()
	err := tr.Move(99, loc(0, 0, 0))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestTracker_Despawn(t *testing.T) {
	tr := NewTracker()
	require.NoError(t, tr.Spawn(3, "Carol", loc(-1, 70, -1)))

	tr.Despawn(3)
	tr.Despawn(3) // no-op

	_, ok := tr.Get(3)
	assert.False(t, ok)
	assert.Empty(t, tr.InChunks([]geom.ChunkKey{chunk(-1, -1)}))
	assert.True(t, errors.Is(tr.Move(3, loc(0, 0, 0)), ErrNotFound))
}

func TestTracker_ConcurrentMoves(t *testing.T) {
	tr := NewTracker()
	const n = 64
	for i := range n {
		require.NoError(t, tr.Spawn(uint32(i+1), "e", loc(float64(i), 64, 0)))
	}

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(id uint32) {
			defer wg.Done()
			for step := range 50 {
				_ = tr.Move(id, loc(float64(step*5), 64, float64(id)))
			}
		}(uint32(i + 1))
	}
	wg.Wait()

	var keys []geom.ChunkKey
	for cx := int32(0); cx <= 16; cx++ {
		for cz := int32(0); cz <= 4; cz++ {
			keys = append(keys, chunk(cx, cz))
		}
	}
	assert.Len(t, tr.InChunks(keys), n, "every entity must be in exactly one bucket")
}
