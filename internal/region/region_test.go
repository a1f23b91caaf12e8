package region

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/regions/internal/entity"
	"github.com/udisondev/regions/internal/geom"
)

const (
	testWorld  geom.WorldID = "main"
	otherWorld geom.WorldID = "presets"
)

func pos(x, y, z int32) geom.BlockPos {
	return geom.NewBlockPos(testWorld, x, y, z)
}

func cuboid(x1, y1, z1, x2, y2, z2 int32) geom.Area {
	return geom.MustArea(pos(x1, y1, z1), pos(x2, y2, z2))
}

func areas(a ...geom.Area) []geom.Area { return a }

func TestRegion_ContainsScenario(t *testing.T) {
	reg := NewRegistry()
	r, err := reg.Create(areas(cuboid(0, 0, 0, 9, 9, 9)), nil)
	require.NoError(t, err)

	assert.True(t, r.Contains(pos(5, 5, 5)))
	assert.False(t, r.Contains(pos(10, 0, 0)))
	assert.False(t, r.Contains(geom.NewBlockPos(otherWorld, 5, 5, 5)))
	assert.Equal(t, testWorld, r.World())
}

func TestRegion_ContainsUnionMinusExclusion(t *testing.T) {
	reg := NewRegistry()
	r, err := reg.Create(
		areas(cuboid(0, 0, 0, 9, 9, 9), cuboid(20, 0, 0, 29, 9, 9)),
		areas(cuboid(3, 3, 3, 5, 5, 5), cuboid(8, 0, 0, 25, 9, 9)),
	)
	require.NoError(t, err)

	// property: contains ⇔ in ⋃included ∧ ∉ ⋃excluded, checked block by block
	box := cuboid(-2, -1, -1, 32, 10, 10)
	for p := range box.Blocks() {
		in := false
		for _, a := range r.Included() {
			in = in || a.Contains(p)
		}
		out := false
		for _, a := range r.Excluded() {
			out = out || a.Contains(p)
		}
		require.Equal(t, in && !out, r.Contains(p), "point %s", p)
	}
}

func TestRegistry_CreateErrors(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name     string
		included []geom.Area
		excluded []geom.Area
	}{
		{"no included", nil, nil},
		{"empty included", []geom.Area{}, []geom.Area{}},
		{"zero included area", areas(geom.Area{}), nil},
		{"zero excluded area", areas(cuboid(0, 0, 0, 1, 1, 1)), areas(geom.Area{})},
		{"included across worlds", areas(
			cuboid(0, 0, 0, 1, 1, 1),
			geom.MustArea(geom.NewBlockPos(otherWorld, 0, 0, 0), geom.NewBlockPos(otherWorld, 1, 1, 1)),
		), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Create(tt.included, tt.excluded)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidGeometry))
			assert.True(t, errors.Is(err, geom.ErrInvalidArgument))
		})
	}
	assert.Equal(t, 0, reg.Len(), "failed creates must not register anything")
}

func TestRegistry_CreateWithExcludedInOtherWorld(t *testing.T) {
	reg := NewRegistry()
	foreign := geom.MustArea(geom.NewBlockPos(otherWorld, 0, 0, 0), geom.NewBlockPos(otherWorld, 9, 9, 9))

	r, err := reg.Create(areas(cuboid(0, 0, 0, 9, 9, 9)), areas(foreign))
	require.NoError(t, err)
	assert.True(t, r.Contains(pos(5, 5, 5)), "foreign exclusion never narrows containment")
}

func TestRegion_Update(t *testing.T) {
	reg := NewRegistry()
	r, err := reg.Create(areas(cuboid(0, 0, 0, 9, 9, 9)), nil)
	require.NoError(t, err)

	require.NoError(t, r.Update(areas(cuboid(100, 0, 100, 109, 9, 109)), nil))

	assert.False(t, r.Contains(pos(5, 5, 5)))
	assert.True(t, r.Contains(pos(105, 5, 105)))
	assert.Empty(t, reg.RegionsAt(pos(5, 5, 5)))
	require.Len(t, reg.RegionsAt(pos(105, 5, 105)), 1)
	assert.False(t, reg.Index().Registered(r.ID(), pos(5, 5, 5).Chunk()), "stale footprint must be dropped")
	assert.ElementsMatch(t, r.Chunks(), reg.Index().Footprint(r.ID()))
}

func TestRegion_UpdateErrors(t *testing.T) {
	reg := NewRegistry()
	r, err := reg.Create(areas(cuboid(0, 0, 0, 9, 9, 9)), nil)
	require.NoError(t, err)

	err = r.Update(nil, nil)
	assert.True(t, errors.Is(err, ErrInvalidGeometry))

	foreign := geom.MustArea(geom.NewBlockPos(otherWorld, 0, 0, 0), geom.NewBlockPos(otherWorld, 9, 9, 9))
	err = r.Update(areas(foreign), nil)
	assert.True(t, errors.Is(err, ErrInvalidGeometry), "a region never changes world")

	// failed updates leave geometry untouched
	assert.True(t, r.Contains(pos(5, 5, 5)))
	assert.Equal(t, areas(cuboid(0, 0, 0, 9, 9, 9)), r.Included())

	require.NoError(t, reg.Destroy(r.ID()))
	err = r.Update(areas(cuboid(0, 0, 0, 1, 1, 1)), nil)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, r.Destroyed())
}

func TestRegion_UpdateIdempotent(t *testing.T) {
	reg := NewRegistry()
	r, err := reg.Create(areas(cuboid(0, 0, 0, 3, 3, 3)), nil)
	require.NoError(t, err)

	inc := areas(cuboid(-20, 0, -20, 40, 10, 5))
	exc := areas(cuboid(0, 0, 0, 5, 5, 5))

	require.NoError(t, r.Update(inc, exc))
	footprint1 := reg.Index().Footprint(r.ID())
	var contains1 []bool
	box := cuboid(-25, -1, -25, 45, 11, 10)
	for p := range box.Blocks() {
		contains1 = append(contains1, r.Contains(p))
	}

	require.NoError(t, r.Update(inc, exc))
	assert.ElementsMatch(t, footprint1, reg.Index().Footprint(r.ID()))
	i := 0
	for p := range box.Blocks() {
		require.Equal(t, contains1[i], r.Contains(p))
		i++
	}
	for _, k := range footprint1 {
		assert.True(t, reg.Index().Registered(r.ID(), k))
	}
}

func TestRegion_UpdateIsolatesCallerSlices(t *testing.T) {
	reg := NewRegistry()
	inc := areas(cuboid(0, 0, 0, 3, 3, 3))
	r, err := reg.Create(inc, nil)
	require.NoError(t, err)

	inc[0] = cuboid(50, 0, 50, 51, 1, 51)
	assert.True(t, r.Contains(pos(1, 1, 1)))

	got := r.Included()
	got[0] = geom.Area{}
	assert.True(t, r.Contains(pos(1, 1, 1)))
}

func TestRegion_AllowEnterAndResidence(t *testing.T) {
	reg := NewRegistry()
	r, err := reg.Create(areas(cuboid(0, 0, 0, 3, 3, 3)), nil)
	require.NoError(t, err)

	assert.True(t, r.AllowedToEnter())
	r.SetAllowEnter(false)
	assert.False(t, r.AllowedToEnter())
	assert.True(t, r.Contains(pos(1, 1, 1)), "gate flag does not affect containment")

	_, ok := r.Residence()
	assert.False(t, ok)

	r.SetResidence(0)
	id, ok := r.Residence()
	require.True(t, ok)
	assert.Equal(t, 0, id)

	r.ClearResidence()
	_, ok = r.Residence()
	assert.False(t, ok)
}

func TestRegion_UsersAndKick(t *testing.T) {
	reg := NewRegistry()
	r, err := reg.Create(areas(cuboid(0, 0, 0, 20, 9, 20)), areas(cuboid(0, 0, 0, 2, 9, 2)))
	require.NoError(t, err)

	tr := entity.NewTracker()
	at := func(x, y, z float64) geom.Location { return geom.Location{World: testWorld, X: x, Y: y, Z: z} }
	require.NoError(t, tr.Spawn(1, "inside", at(10.5, 5, 10.5)))
	require.NoError(t, tr.Spawn(2, "excluded corner", at(1.5, 5, 1.5)))
	require.NoError(t, tr.Spawn(3, "outside", at(30, 5, 30)))
	require.NoError(t, tr.Spawn(4, "staff", at(18, 1, 18)))

	users := r.UsersInRegion(tr)
	ids := make([]uint32, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	assert.ElementsMatch(t, []uint32{1, 4}, ids)

	err = r.KickUser(tr, 3, at(40, 5, 40))
	assert.True(t, errors.Is(err, ErrNotInside))

	err = r.KickUser(tr, 1, geom.Location{World: otherWorld, X: 40, Y: 5, Z: 40})
	assert.True(t, errors.Is(err, geom.ErrInvalidArgument))

	err = r.KickUser(tr, 1, at(5, 5, 5))
	assert.True(t, errors.Is(err, geom.ErrInvalidArgument), "target inside region")

	kicked, err := r.KickAll(tr, at(40, 5, 40), func(s entity.Snapshot) bool { return s.Name == "staff" })
	require.NoError(t, err)
	assert.Equal(t, []uint32{1}, kicked)

	snap, ok := tr.Get(1)
	require.True(t, ok)
	assert.Equal(t, at(40, 5, 40), snap.Location)
	require.Len(t, r.UsersInRegion(tr), 1)
}
