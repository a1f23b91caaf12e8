package geom

import (
	"fmt"
	"iter"
)

// Area is an immutable axis-aligned cuboid of blocks in one world.
// Both corners are inclusive; min <= max on every axis.
type Area struct {
	min BlockPos
	max BlockPos
}

// NewArea builds an Area from two opposite corners in any order.
// Fails if a corner has no world or the corners lie in different worlds.
func NewArea(c1, c2 BlockPos) (Area, error) {
	if !c1.Valid() || !c2.Valid() {
		return Area{}, fmt.Errorf("%w: area corner without world", ErrInvalidArgument)
	}
	if c1.World != c2.World {
		return Area{}, fmt.Errorf("%w: area corners in different worlds (%s, %s)", ErrInvalidArgument, c1.World, c2.World)
	}

	return Area{
		min: BlockPos{World: c1.World, X: min(c1.X, c2.X), Y: min(c1.Y, c2.Y), Z: min(c1.Z, c2.Z)},
		max: BlockPos{World: c1.World, X: max(c1.X, c2.X), Y: max(c1.Y, c2.Y), Z: max(c1.Z, c2.Z)},
	}, nil
}

// MustArea is NewArea for literals known to be valid. Panics otherwise.
func MustArea(c1, c2 BlockPos) Area {
	a, err := NewArea(c1, c2)
	if err != nil {
		panic(err)
	}
	return a
}

// AreaOfBlock returns the one-block area at b.
func AreaOfBlock(b BlockPos) (Area, error) {
	return NewArea(b, b)
}

// Valid reports whether the area was built by NewArea (the zero Area is not).
func (a Area) Valid() bool { return a.min.Valid() }

// World returns the world of the area.
func (a Area) World() WorldID { return a.min.World }

// Min returns the block with the smallest x, y and z in the area.
func (a Area) Min() BlockPos { return a.min }

// Max returns the block with the largest x, y and z in the area.
func (a Area) Max() BlockPos { return a.max }

// Size returns the number of blocks along each axis.
func (a Area) Size() (sx, sy, sz int64) {
	return int64(a.max.X) - int64(a.min.X) + 1,
		int64(a.max.Y) - int64(a.min.Y) + 1,
		int64(a.max.Z) - int64(a.min.Z) + 1
}

// Volume returns the number of blocks in the area.
func (a Area) Volume() int64 {
	if !a.Valid() {
		return 0
	}
	sx, sy, sz := a.Size()
	return sx * sy * sz
}

// Contains reports whether b lies inside the area.
// Other-world and invalid positions are simply not contained.
func (a Area) Contains(b BlockPos) bool {
	if b.World != a.min.World || !a.Valid() {
		return false
	}
	return b.X >= a.min.X && b.X <= a.max.X &&
		b.Y >= a.min.Y && b.Y <= a.max.Y &&
		b.Z >= a.min.Z && b.Z <= a.max.Z
}

// ContainsLocation reports whether the block under l lies inside the area.
func (a Area) ContainsLocation(l Location) bool {
	if !l.Valid() {
		return false
	}
	return a.Contains(l.Block())
}

// Intersects reports whether the two areas share at least one block.
func (a Area) Intersects(o Area) bool {
	if !a.Valid() || !o.Valid() || a.World() != o.World() {
		return false
	}
	return a.min.X <= o.max.X && o.min.X <= a.max.X &&
		a.min.Y <= o.max.Y && o.min.Y <= a.max.Y &&
		a.min.Z <= o.max.Z && o.min.Z <= a.max.Z
}

// Translate returns the area shifted by (dx, dy, dz) in the same world.
// Corners wrap around on int32 overflow; use MoveChecked for untrusted deltas.
func (a Area) Translate(dx, dy, dz int32) Area {
	return Area{min: a.min.Add(dx, dy, dz), max: a.max.Add(dx, dy, dz)}
}

// MoveTo returns the area shifted by (dx, dy, dz) and placed in world.
func (a Area) MoveTo(world WorldID, dx, dy, dz int32) Area {
	t := a.Translate(dx, dy, dz)
	t.min.World = world
	t.max.World = world
	return t
}

// MoveChecked is MoveTo that reports false when a corner would leave the
// int32 coordinate range.
func (a Area) MoveChecked(world WorldID, dx, dy, dz int32) (Area, bool) {
	if !a.Valid() {
		return Area{}, false
	}
	lo, okLo := a.min.AddChecked(dx, dy, dz)
	hi, okHi := a.max.AddChecked(dx, dy, dz)
	if !okLo || !okHi {
		return Area{}, false
	}
	lo.World, hi.World = world, world
	return Area{min: lo, max: hi}, true
}

// Blocks yields every block of the area, x fastest, then z, then y.
// The sequence is lazy and can be ranged over again.
// Expensive: prefer Contains whenever a membership test is enough.
func (a Area) Blocks() iter.Seq[BlockPos] {
	return func(yield func(BlockPos) bool) {
		if !a.Valid() {
			return
		}
		for y := int64(a.min.Y); y <= int64(a.max.Y); y++ {
			for z := int64(a.min.Z); z <= int64(a.max.Z); z++ {
				for x := int64(a.min.X); x <= int64(a.max.X); x++ {
					if !yield(BlockPos{World: a.min.World, X: int32(x), Y: int32(y), Z: int32(z)}) {
						return
					}
				}
			}
		}
	}
}

// ChunkCount returns the number of chunk columns the area's footprint
// touches without enumerating them.
func (a Area) ChunkCount() int64 {
	if !a.Valid() {
		return 0
	}
	lo := a.min.Chunk()
	hi := a.max.Chunk()
	return (int64(hi.CX) - int64(lo.CX) + 1) * (int64(hi.CZ) - int64(lo.CZ) + 1)
}

// ChunkSeq yields the chunk columns the area's footprint touches, x major.
func (a Area) ChunkSeq() iter.Seq[ChunkKey] {
	return func(yield func(ChunkKey) bool) {
		if !a.Valid() {
			return
		}
		lo := a.min.Chunk()
		hi := a.max.Chunk()
		for cx := int64(lo.CX); cx <= int64(hi.CX); cx++ {
			for cz := int64(lo.CZ); cz <= int64(hi.CZ); cz++ {
				if !yield(ChunkKey{World: a.min.World, CX: int32(cx), CZ: int32(cz)}) {
					return
				}
			}
		}
	}
}

// Chunks returns the chunk columns the area's footprint touches.
// Allocates one key per column: check ChunkCount first for caller-sized areas.
func (a Area) Chunks() []ChunkKey {
	keys := make([]ChunkKey, 0, min(a.ChunkCount(), maxChunkPrealloc))
	for k := range a.ChunkSeq() {
		keys = append(keys, k)
	}
	return keys
}

const maxChunkPrealloc = 1 << 12

func (a Area) String() string {
	if !a.Valid() {
		return "area(invalid)"
	}
	return fmt.Sprintf("area(%s %d,%d,%d..%d,%d,%d)", a.min.World,
		a.min.X, a.min.Y, a.min.Z, a.max.X, a.max.Y, a.max.Z)
}
