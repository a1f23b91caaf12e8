package residence

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/regions/internal/geom"
	"github.com/udisondev/regions/internal/region"
)

const testWorld geom.WorldID = "main"

func pos(x, y, z int32) geom.BlockPos {
	return geom.NewBlockPos(testWorld, x, y, z)
}

func cuboid(x1, y1, z1, x2, y2, z2 int32) geom.Area {
	return geom.MustArea(pos(x1, y1, z1), pos(x2, y2, z2))
}

type fixture struct {
	regions  *region.Registry
	dir      *Directory
	resolver *Resolver
}

func newFixture() *fixture {
	regions := region.NewRegistry()
	dir := NewDirectory(regions)
	return &fixture{regions: regions, dir: dir, resolver: NewResolver(regions, dir)}
}

func (f *fixture) residence(t *testing.T, id int, kind Kind, area geom.Area) *region.Region {
	t.Helper()
	r, err := f.regions.Create([]geom.Area{area}, nil)
	require.NoError(t, err)
	require.NoError(t, f.dir.Register(Residence{ID: id, Kind: kind, RegionID: r.ID(), Name: kind.String()}))
	return r
}

func TestResolver_ApartmentDominatesPlot(t *testing.T) {
	f := newFixture()
	f.residence(t, 100, Plot, cuboid(0, 0, 0, 4, 4, 4))
	f.residence(t, 200, Apartment, cuboid(2, 2, 2, 6, 6, 6))

	res, ok := f.resolver.Dominant(pos(3, 3, 3))
	require.True(t, ok)
	assert.Equal(t, 200, res.ID)

	res, ok = f.resolver.Dominant(pos(0, 0, 0))
	require.True(t, ok)
	assert.Equal(t, 100, res.ID, "only the plot covers this corner")

	_, ok = f.resolver.Dominant(pos(50, 0, 50))
	assert.False(t, ok)
}

func TestResolver_TieBreakByRegionID(t *testing.T) {
	f := newFixture()
	// residence ids deliberately reversed against region ids
	first := f.residence(t, 900, Apartment, cuboid(0, 0, 0, 9, 9, 9))
	second := f.residence(t, 100, Apartment, cuboid(5, 5, 5, 14, 14, 14))
	require.Less(t, first.ID(), second.ID())

	for range 10 {
		res, ok := f.resolver.Dominant(pos(7, 7, 7))
		require.True(t, ok)
		assert.Equal(t, 900, res.ID)
	}
}

func TestResolver_IgnoresPlainRegionsAndBlocks(t *testing.T) {
	f := newFixture()
	_, err := f.regions.Create([]geom.Area{cuboid(0, 0, 0, 20, 20, 20)}, nil)
	require.NoError(t, err)
	f.residence(t, 5, ApartmentBlock, cuboid(0, 0, 0, 20, 20, 20))

	_, ok := f.resolver.Dominant(pos(10, 10, 10))
	assert.False(t, ok, "apartment blocks never dominate")

	all := f.resolver.ResidencesAt(pos(10, 10, 10))
	require.Len(t, all, 1)
	assert.Equal(t, ApartmentBlock, all[0].Kind)

	f.residence(t, 6, Plot, cuboid(0, 0, 0, 20, 20, 20))
	res, ok := f.resolver.Dominant(pos(10, 10, 10))
	require.True(t, ok)
	assert.Equal(t, 6, res.ID)
}

func TestResolver_PlotAndApartmentAt(t *testing.T) {
	f := newFixture()
	f.residence(t, 1, Plot, cuboid(0, 0, 0, 30, 30, 30))
	f.residence(t, 2, Apartment, cuboid(10, 10, 10, 12, 12, 12))

	plot, ok := f.resolver.PlotAt(pos(11, 11, 11))
	require.True(t, ok)
	assert.Equal(t, 1, plot.ID)

	apt, ok := f.resolver.ApartmentAt(pos(11, 11, 11))
	require.True(t, ok)
	assert.Equal(t, 2, apt.ID)

	_, ok = f.resolver.ApartmentAt(pos(1, 1, 1))
	assert.False(t, ok)
}

func TestResolver_FollowsRegionUpdates(t *testing.T) {
	f := newFixture()
	r := f.residence(t, 1, Apartment, cuboid(0, 0, 0, 3, 3, 3))

	require.NoError(t, r.Update([]geom.Area{cuboid(100, 0, 100, 103, 3, 103)}, nil))

	_, ok := f.resolver.Dominant(pos(1, 1, 1))
	assert.False(t, ok)
	res, ok := f.resolver.Dominant(pos(101, 1, 101))
	require.True(t, ok)
	assert.Equal(t, 1, res.ID)
}

func TestDirectory_RegisterErrors(t *testing.T) {
	f := newFixture()
	r := f.residence(t, 1, Plot, cuboid(0, 0, 0, 3, 3, 3))

	err := f.dir.Register(Residence{ID: 1, Kind: Plot, RegionID: r.ID()})
	assert.True(t, errors.Is(err, ErrAlreadyExists))

	err = f.dir.Register(Residence{ID: 2, Kind: Plot, RegionID: r.ID()})
	assert.True(t, errors.Is(err, ErrRegionTaken))

	err = f.dir.Register(Residence{ID: 3, Kind: Plot, RegionID: 12345})
	assert.True(t, errors.Is(err, region.ErrNotFound))

	err = f.dir.Register(Residence{ID: 4, RegionID: r.ID()})
	assert.True(t, errors.Is(err, geom.ErrInvalidArgument))
}

func TestDirectory_UnregisterClearsBackReference(t *testing.T) {
	f := newFixture()
	r := f.residence(t, 1, Plot, cuboid(0, 0, 0, 3, 3, 3))

	id, ok := r.Residence()
	require.True(t, ok)
	assert.Equal(t, 1, id)

	res, ok := f.dir.ForRegion(r.ID())
	require.True(t, ok)
	assert.Equal(t, 1, res.ID)

	require.NoError(t, f.dir.Unregister(1))
	_, ok = r.Residence()
	assert.False(t, ok)
	_, ok = f.dir.ForRegion(r.ID())
	assert.False(t, ok)
	assert.True(t, errors.Is(f.dir.Unregister(1), ErrNotFound))
}

func TestDirectory_Listing(t *testing.T) {
	f := newFixture()
	f.residence(t, 10, ApartmentBlock, cuboid(0, 0, 0, 30, 30, 30))
	for _, id := range []int{13, 11, 12} {
		r, err := f.regions.Create([]geom.Area{cuboid(1, 1, 1, 2, 2, 2)}, nil)
		require.NoError(t, err)
		require.NoError(t, f.dir.Register(Residence{ID: id, Kind: Apartment, RegionID: r.ID(), BlockID: 10}))
	}

	apts := f.dir.ApartmentsIn(10)
	require.Len(t, apts, 3)
	assert.Equal(t, []int{11, 12, 13}, []int{apts[0].ID, apts[1].ID, apts[2].ID})
	assert.Len(t, f.dir.ByKind(ApartmentBlock), 1)
	assert.Len(t, f.dir.All(), 4)
}

func (f *fixture) region(t *testing.T, area geom.Area) *region.Region {
	t.Helper()
	r, err := f.regions.Create([]geom.Area{area}, nil)
	require.NoError(t, err)
	return r
}

func TestResolver_MergedPlotSeam(t *testing.T) {
	f := newFixture()
	west := f.region(t, cuboid(0, 0, 0, 9, 9, 9))
	east := f.region(t, cuboid(12, 0, 0, 20, 9, 9))
	// the seam overlaps the western tile by one column
	seam := f.region(t, cuboid(9, 0, 0, 11, 9, 9))
	require.NoError(t, f.dir.Register(Residence{
		ID:       1,
		Kind:     Plot,
		RegionID: west.ID(),
		Tiles:    []int{east.ID()},
		Merges:   []int{seam.ID()},
	}))
	f.residence(t, 2, Apartment, cuboid(10, 2, 0, 13, 4, 2))

	res, ok := f.resolver.Dominant(pos(10, 6, 5))
	require.True(t, ok, "seam belongs to the plot")
	assert.Equal(t, 1, res.ID)

	all := f.resolver.ResidencesAt(pos(9, 1, 1))
	require.Len(t, all, 1, "tile and seam name the same plot")
	assert.Equal(t, 1, all[0].ID)

	_, _, ok = f.resolver.PlotTileAt(pos(10, 6, 5))
	assert.False(t, ok, "a seam is not a tile")

	tile, plot, ok := f.resolver.PlotTileAt(pos(15, 1, 1))
	require.True(t, ok)
	assert.Equal(t, east.ID(), tile)
	assert.Equal(t, 1, plot.ID)

	tile, _, ok = f.resolver.PlotTileAt(pos(9, 1, 1))
	require.True(t, ok)
	assert.Equal(t, west.ID(), tile)

	res, ok = f.resolver.Dominant(pos(10, 3, 1))
	require.True(t, ok)
	assert.Equal(t, 2, res.ID, "apartment on the seam outranks the plot")
	res, ok = f.resolver.PlotAt(pos(10, 3, 1))
	require.True(t, ok)
	assert.Equal(t, 1, res.ID)
}

func TestDirectory_MergeAndDetach(t *testing.T) {
	f := newFixture()
	west := f.region(t, cuboid(0, 0, 0, 9, 9, 9))
	east := f.region(t, cuboid(11, 0, 0, 20, 9, 9))
	seam := f.region(t, cuboid(10, 0, 0, 10, 9, 9))
	require.NoError(t, f.dir.Register(Residence{ID: 1, Kind: Plot, RegionID: west.ID()}))
	f.residence(t, 2, Apartment, cuboid(50, 0, 50, 52, 2, 52))

	plot, err := f.dir.Merge(1, []int{east.ID()}, []int{seam.ID()})
	require.NoError(t, err)
	assert.Equal(t, []int{east.ID()}, plot.Tiles)
	assert.Equal(t, []int{seam.ID()}, plot.Merges)
	assert.Equal(t, []int{west.ID(), east.ID(), seam.ID()}, plot.Regions())

	res, ok := f.dir.ForRegion(seam.ID())
	require.True(t, ok)
	assert.Equal(t, 1, res.ID)
	_, ok = f.dir.PlotOfTile(seam.ID())
	assert.False(t, ok)
	res, ok = f.dir.PlotOfTile(east.ID())
	require.True(t, ok)
	assert.Equal(t, 1, res.ID)

	spare := f.region(t, cuboid(30, 0, 0, 31, 1, 1))
	tests := []struct {
		name   string
		plot   int
		tiles  []int
		merges []int
		want   error
	}{
		{"tile already merged", 1, []int{east.ID()}, nil, ErrRegionTaken},
		{"apartment", 2, []int{spare.ID()}, nil, geom.ErrInvalidArgument},
		{"unknown plot", 77, []int{spare.ID()}, nil, ErrNotFound},
		{"unknown region", 1, []int{9999}, nil, region.ErrNotFound},
		{"nothing", 1, nil, nil, geom.ErrInvalidArgument},
		{"listed twice", 1, []int{spare.ID()}, []int{spare.ID()}, geom.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.dir.Merge(tt.plot, tt.tiles, tt.merges)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
	_, ok = spare.Residence()
	assert.False(t, ok, "failed merges claim nothing")

	err = f.dir.Register(Residence{ID: 3, Kind: Apartment, RegionID: spare.ID(), Tiles: []int{seam.ID()}})
	assert.True(t, errors.Is(err, geom.ErrInvalidArgument))
	err = f.dir.Register(Residence{ID: 3, Kind: Plot, RegionID: spare.ID(), Merges: []int{seam.ID()}})
	assert.True(t, errors.Is(err, ErrRegionTaken))

	plot, err = f.dir.Detach(seam.ID())
	require.NoError(t, err)
	assert.Empty(t, plot.Merges)
	_, ok = seam.Residence()
	assert.False(t, ok)
	_, err = f.dir.Detach(west.ID())
	assert.True(t, errors.Is(err, geom.ErrInvalidArgument))
	_, err = f.dir.Detach(seam.ID())
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, f.dir.Unregister(1))
	for _, r := range []*region.Region{west, east} {
		_, ok := r.Residence()
		assert.False(t, ok, "region %d released", r.ID())
	}
}
