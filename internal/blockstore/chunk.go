package blockstore

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/udisondev/regions/internal/geom"
)

// Air is the empty block id.
const Air uint16 = 0

// Chunk is one 16×16 column of block ids. Immutable once published in a
// world table; writers clone it first.
type Chunk struct {
	key    geom.ChunkKey
	minY   int32
	height int32
	blocks []uint16 // len = 16*16*height
}

func newChunk(key geom.ChunkKey, minY, height int32) *Chunk {
	return &Chunk{
		key:    key,
		minY:   minY,
		height: height,
		blocks: make([]uint16, geom.ChunkSize*geom.ChunkSize*int(height)),
	}
}

// Key returns the chunk column key.
func (c *Chunk) Key() geom.ChunkKey { return c.key }

func (c *Chunk) clone() *Chunk {
	out := *c
	out.blocks = make([]uint16, len(c.blocks))
	copy(out.blocks, c.blocks)
	return &out
}

// index: x fastest, then z, then y
func (c *Chunk) index(p geom.BlockPos) int {
	lx := int(p.X & (geom.ChunkSize - 1))
	lz := int(p.Z & (geom.ChunkSize - 1))
	ly := int(p.Y - c.minY)
	return (ly*geom.ChunkSize+lz)*geom.ChunkSize + lx
}

func (c *Chunk) inHeight(y int32) bool {
	return y >= c.minY && y < c.minY+c.height
}

// Get returns the block id at p. p must lie in this chunk and height range.
func (c *Chunk) Get(p geom.BlockPos) uint16 {
	return c.blocks[c.index(p)]
}

func (c *Chunk) set(p geom.BlockPos, id uint16) {
	c.blocks[c.index(p)] = id
}

// Digest hashes the raw block ids deterministically.
func (c *Chunk) Digest() [32]byte {
	h := sha256.New()
	var tmp [2]byte
	for _, v := range c.blocks {
		binary.LittleEndian.PutUint16(tmp[:], v)
		h.Write(tmp[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
