// Package entity tracks entity positions per chunk column. It is the
// in-process adapter for the position feed consumed by region queries
// (users in region, kicking, relocation after a translate).
package entity

import (
	"sync"

	"github.com/udisondev/regions/internal/geom"
)

// Entity is any tracked object in a world (player, mob, item frame...).
type Entity struct {
	id   uint32
	name string

	mu       sync.RWMutex
	location geom.Location
}

// Snapshot is a point-in-time copy of an entity.
type Snapshot struct {
	ID       uint32
	Name     string
	Location geom.Location
}

func newEntity(id uint32, name string, loc geom.Location) *Entity {
	return &Entity{id: id, name: name, location: loc}
}

// ID returns the entity id (immutable).
func (e *Entity) ID() uint32 { return e.id }

// Name returns the display name.
func (e *Entity) Name() string { return e.name }

// Location returns a copy of the current location.
func (e *Entity) Location() geom.Location {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.location
}

func (e *Entity) setLocation(loc geom.Location) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.location = loc
}

// Snapshot returns a value copy safe to hand to other goroutines.
func (e *Entity) Snapshot() Snapshot {
	return Snapshot{ID: e.id, Name: e.name, Location: e.Location()}
}
