// Package world holds the small slice of the room model that entities need:
// a position and the room a unit stands in. Room simulation lives elsewhere.
package world

import "fmt"

// Position locates a unit inside a room.
type Position struct {
	RoomID uint32
	X      int32
	Y      int32
	Z      float64
}

// String implements fmt.Stringer.
func (p Position) String() string {
	return fmt.Sprintf("room %d (%d,%d,%.2f)", p.RoomID, p.X, p.Y, p.Z)
}

// SameRoom reports whether p and o are in the same room.
func (p Position) SameRoom(o Position) bool {
	return p.RoomID == o.RoomID
}

// Room accepts and releases units. Implementations are owned by the room
// simulation.
type Room interface {
	ID() uint32
	AddUnit(entityID uint32) (unitID int32, err error)
	RemoveUnit(unitID int32)
}

// Rooms resolves a room id to a loaded room.
type Rooms interface {
	Room(id uint32) (Room, bool)
}

// RoomMap is an in-memory Rooms keyed by id.
type RoomMap map[uint32]Room

// Room implements Rooms.
func (m RoomMap) Room(id uint32) (Room, bool) {
	r, ok := m[id]
	return r, ok
}
