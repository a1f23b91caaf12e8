package structure

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/regions/internal/entity"
	"github.com/udisondev/regions/internal/geom"
)

const testWorld geom.WorldID = "main"

func key(cx, cz int32) geom.ChunkKey { return geom.ChunkKey{World: testWorld, CX: cx, CZ: cz} }

func loc(x, z float64) geom.Location { return geom.Location{World: testWorld, X: x, Y: 64, Z: z} }

func TestDistricts(t *testing.T) {
	ds := NewDistricts()
	require.NoError(t, ds.Add(District{ID: 2, Name: "harbour", Chunks: []geom.ChunkKey{key(0, 0), key(0, 1)}}))
	require.NoError(t, ds.Add(District{ID: 1, Name: "old town", Chunks: []geom.ChunkKey{key(-1, 0)}}))

	d, ok := ds.At(geom.NewBlockPos(testWorld, 5, 70, 20))
	require.True(t, ok)
	assert.Equal(t, "harbour", d.Name)

	d, ok = ds.AtLocation(geom.Location{World: testWorld, X: -0.5, Y: 64, Z: 3})
	require.True(t, ok)
	assert.Equal(t, 1, d.ID)

	_, ok = ds.ForChunk(key(9, 9))
	assert.False(t, ok)
	_, ok = ds.ForChunk(geom.ChunkKey{World: "nether", CX: 0, CZ: 0})
	assert.False(t, ok)

	all := ds.All()
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].ID)

	err := ds.Add(District{ID: 3, Chunks: []geom.ChunkKey{key(0, 1)}})
	assert.True(t, errors.Is(err, ErrChunkClaimed))
	err = ds.Add(District{ID: 2, Chunks: []geom.ChunkKey{key(5, 5)}})
	assert.True(t, errors.Is(err, ErrAlreadyExists))
	err = ds.Add(District{ID: 4})
	assert.True(t, errors.Is(err, geom.ErrInvalidArgument))
}

func TestDistricts_UsersIn(t *testing.T) {
	ds := NewDistricts()
	require.NoError(t, ds.Add(District{ID: 1, Chunks: []geom.ChunkKey{key(0, 0)}}))

	tr := entity.NewTracker()
	require.NoError(t, tr.Spawn(1, "a", loc(3, 3)))
	require.NoError(t, tr.Spawn(2, "b", loc(30, 3)))

	users, err := ds.UsersIn(1, tr)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, uint32(1), users[0].ID)

	_, err = ds.UsersIn(99, tr)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRadioMasts_Nearest(t *testing.T) {
	rm := NewRadioMasts()
	require.NoError(t, rm.Add(RadioMast{Name: "north", World: testWorld, X: 0, Z: -100, Range: 50}))
	require.NoError(t, rm.Add(RadioMast{Name: "south", World: testWorld, X: 0, Z: 100, Range: 50}))
	require.NoError(t, rm.Add(RadioMast{Name: "elsewhere", World: "nether", X: 0, Z: 0, Range: 500}))

	m, ok := rm.Nearest(loc(0, 60))
	require.True(t, ok)
	assert.Equal(t, "south", m.Name)

	m, ok = rm.Nearest(loc(0, 0))
	require.True(t, ok)
	assert.Equal(t, "north", m.Name, "ties go to the smaller name")

	_, ok = rm.Nearest(geom.Location{World: "flat", X: 0, Y: 0, Z: 0})
	assert.False(t, ok)

	d, err := m.Distance(loc(0, -70))
	require.NoError(t, err)
	assert.InDelta(t, 30.0, d, 1e-9)

	_, err = m.Distance(geom.Location{World: "nether"})
	assert.True(t, errors.Is(err, geom.ErrInvalidArgument))

	assert.True(t, errors.Is(rm.Add(RadioMast{Name: "north", World: testWorld}), ErrAlreadyExists))
	assert.True(t, errors.Is(rm.Add(RadioMast{World: testWorld}), geom.ErrInvalidArgument))
}

func TestRadioMasts_ConnectedUsers(t *testing.T) {
	rm := NewRadioMasts()
	require.NoError(t, rm.Add(RadioMast{Name: "tower", World: testWorld, X: 8, Z: 8, Range: 20}))

	tr := entity.NewTracker()
	require.NoError(t, tr.Spawn(1, "near", loc(20, 8)))
	require.NoError(t, tr.Spawn(2, "corner", loc(27, 27)))
	require.NoError(t, tr.Spawn(3, "far", loc(100, 100)))

	users, err := rm.ConnectedUsers("tower", tr)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "near", users[0].Name)

	_, err = rm.ConnectedUsers("missing", tr)
	assert.True(t, errors.Is(err, ErrNotFound))
}
