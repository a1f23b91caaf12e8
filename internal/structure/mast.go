package structure

import (
	"fmt"
	"math"
	"sync"

	"github.com/udisondev/regions/internal/entity"
	"github.com/udisondev/regions/internal/geom"
)

// RadioMast is a transmitter at a horizontal position with a reach in blocks.
type RadioMast struct {
	Name  string
	World geom.WorldID
	X, Z  int32
	Range int32
}

// Distance returns the horizontal distance from the mast to l.
func (m RadioMast) Distance(l geom.Location) (float64, error) {
	if !l.Valid() || l.World != m.World {
		return 0, fmt.Errorf("distance to mast %q: %w", m.Name, geom.ErrInvalidArgument)
	}
	return math.Sqrt(m.distanceSquared(l)), nil
}

func (m RadioMast) distanceSquared(l geom.Location) float64 {
	dx := l.X - float64(m.X)
	dz := l.Z - float64(m.Z)
	return dx*dx + dz*dz
}

// Covers reports whether l is within the mast's range.
func (m RadioMast) Covers(l geom.Location) bool {
	if !l.Valid() || l.World != m.World {
		return false
	}
	r := float64(m.Range)
	return m.distanceSquared(l) <= r*r
}

// chunks returns the chunk columns of the square bounding the mast's range.
func (m RadioMast) chunks() []geom.ChunkKey {
	lo := geom.NewBlockPos(m.World, m.X-m.Range, 0, m.Z-m.Range).Chunk()
	hi := geom.NewBlockPos(m.World, m.X+m.Range, 0, m.Z+m.Range).Chunk()
	keys := make([]geom.ChunkKey, 0, int(hi.CX-lo.CX+1)*int(hi.CZ-lo.CZ+1))
	for cx := lo.CX; cx <= hi.CX; cx++ {
		for cz := lo.CZ; cz <= hi.CZ; cz++ {
			keys = append(keys, geom.ChunkKey{World: m.World, CX: cx, CZ: cz})
		}
	}
	return keys
}

// RadioMasts is the set of known masts.
type RadioMasts struct {
	mu    sync.RWMutex
	masts map[string]RadioMast
}

// NewRadioMasts creates an empty set.
func NewRadioMasts() *RadioMasts {
	return &RadioMasts{masts: make(map[string]RadioMast)}
}

// Add registers a mast under its name.
func (rm *RadioMasts) Add(m RadioMast) error {
	if m.Name == "" || m.World == "" || m.Range < 0 {
		return fmt.Errorf("add radio mast %q: %w", m.Name, geom.ErrInvalidArgument)
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, ok := rm.masts[m.Name]; ok {
		return fmt.Errorf("add radio mast %q: %w", m.Name, ErrAlreadyExists)
	}
	rm.masts[m.Name] = m
	return nil
}

// Get returns a mast by name.
func (rm *RadioMasts) Get(name string) (RadioMast, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	m, ok := rm.masts[name]
	return m, ok
}

// Nearest returns the closest mast in l's world. Range is not considered;
// ties go to the lexically smaller name.
func (rm *RadioMasts) Nearest(l geom.Location) (RadioMast, bool) {
	if !l.Valid() {
		return RadioMast{}, false
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()

	var best RadioMast
	bestDist := math.Inf(1)
	found := false
	for _, m := range rm.masts {
		if m.World != l.World {
			continue
		}
		d := m.distanceSquared(l)
		if d < bestDist || (d == bestDist && m.Name < best.Name) {
			best, bestDist, found = m, d, true
		}
	}
	return best, found
}

// ConnectedUsers returns the entities within a mast's range.
func (rm *RadioMasts) ConnectedUsers(name string, src EntitySource) ([]entity.Snapshot, error) {
	m, ok := rm.Get(name)
	if !ok {
		return nil, fmt.Errorf("radio mast %q: %w", name, ErrNotFound)
	}
	var out []entity.Snapshot
	for _, e := range src.InChunks(m.chunks()) {
		if m.Covers(e.Location) {
			out = append(out, e)
		}
	}
	return out, nil
}
