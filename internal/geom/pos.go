// Package geom holds the block-space primitives of the region engine:
// world identity, block and entity coordinates, chunk keys and Area cuboids.
package geom

import (
	"errors"
	"fmt"
	"math"
)

// 2^4 = 16 blocks per chunk column side.
const (
	ChunkShift = 4
	ChunkSize  = 1 << ChunkShift
)

// ErrInvalidArgument is returned for missing geometry, corners spanning
// different worlds and other caller mistakes detected before any state change.
var ErrInvalidArgument = errors.New("invalid argument")

// WorldID identifies a world. The empty id is never valid.
type WorldID string

// BlockPos is an integer block coordinate inside a world.
// Value type, passed by value.
type BlockPos struct {
	World WorldID
	X     int32
	Y     int32
	Z     int32
}

// NewBlockPos creates BlockPos with the given coordinates.
func NewBlockPos(world WorldID, x, y, z int32) BlockPos {
	return BlockPos{World: world, X: x, Y: y, Z: z}
}

// Valid reports whether the position belongs to a world.
func (p BlockPos) Valid() bool {
	return p.World != ""
}

// Add returns the position shifted by (dx, dy, dz).
// Wraps around on int32 overflow; see AddChecked.
func (p BlockPos) Add(dx, dy, dz int32) BlockPos {
	p.X += dx
	p.Y += dy
	p.Z += dz
	return p
}

// AddChecked is Add that reports false instead of wrapping around.
func (p BlockPos) AddChecked(dx, dy, dz int32) (BlockPos, bool) {
	x, okX := addInt32(p.X, dx)
	y, okY := addInt32(p.Y, dy)
	z, okZ := addInt32(p.Z, dz)
	if !okX || !okY || !okZ {
		return p, false
	}
	return BlockPos{World: p.World, X: x, Y: y, Z: z}, true
}

func addInt32(a, b int32) (int32, bool) {
	s := int64(a) + int64(b)
	return int32(s), s >= math.MinInt32 && s <= math.MaxInt32
}

// Sub returns the delta that moves o onto p. Worlds are ignored.
func (p BlockPos) Sub(o BlockPos) (dx, dy, dz int32) {
	return p.X - o.X, p.Y - o.Y, p.Z - o.Z
}

// InWorld returns the same coordinates in another world.
func (p BlockPos) InWorld(world WorldID) BlockPos {
	p.World = world
	return p
}

// Chunk returns the chunk column containing the position.
func (p BlockPos) Chunk() ChunkKey {
	return ChunkKey{World: p.World, CX: p.X >> ChunkShift, CZ: p.Z >> ChunkShift}
}

func (p BlockPos) String() string {
	return fmt.Sprintf("%s(%d,%d,%d)", p.World, p.X, p.Y, p.Z)
}

// Location is a continuous entity position.
type Location struct {
	World WorldID
	X     float64
	Y     float64
	Z     float64
}

// Valid reports whether the location belongs to a world and has finite coordinates.
func (l Location) Valid() bool {
	if l.World == "" {
		return false
	}
	for _, v := range [...]float64{l.X, l.Y, l.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Block floors the location to the block it stands in.
func (l Location) Block() BlockPos {
	return BlockPos{
		World: l.World,
		X:     int32(math.Floor(l.X)),
		Y:     int32(math.Floor(l.Y)),
		Z:     int32(math.Floor(l.Z)),
	}
}

// Add returns the location shifted by a block delta.
func (l Location) Add(dx, dy, dz int32) Location {
	l.X += float64(dx)
	l.Y += float64(dy)
	l.Z += float64(dz)
	return l
}

// DistanceSquared returns squared distance (no sqrt). Worlds are ignored.
func (l Location) DistanceSquared(o Location) float64 {
	dx := l.X - o.X
	dy := l.Y - o.Y
	dz := l.Z - o.Z
	return dx*dx + dy*dy + dz*dz
}

// ChunkKey addresses a 16×16 chunk column in one world.
type ChunkKey struct {
	World WorldID
	CX    int32
	CZ    int32
}

// ChunkOf returns the chunk key of p.
func ChunkOf(p BlockPos) ChunkKey {
	return p.Chunk()
}

// MinBlock returns the lowest x/z block of the chunk at height y.
func (k ChunkKey) MinBlock(y int32) BlockPos {
	return BlockPos{World: k.World, X: k.CX << ChunkShift, Y: y, Z: k.CZ << ChunkShift}
}

func (k ChunkKey) String() string {
	return fmt.Sprintf("%s[%d,%d]", k.World, k.CX, k.CZ)
}
