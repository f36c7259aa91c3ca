package player

import (
	"context"
	"fmt"

	"github.com/ihi-server/ihi/pkg/events"
	"github.com/ihi-server/ihi/pkg/world"
)

// Position returns the player's current position. RoomID 0 means the player
// is not in a room.
func (p *Player) Position() world.Position {
	return p.position
}

// RoomUnitID returns the id of the player's unit in its current room.
func (p *Player) RoomUnitID() int32 {
	return p.roomUnitID
}

// SetPosition moves the player to pos.
//
// It fires events.MoveBefore first; a listener may cancel the move, in which
// case SetPosition returns false and nothing changes. Moving to another room
// removes the unit from the old room and adds it to the new one. After the
// move events.MoveAfter fires once with the same payload.
func (p *Player) SetPosition(ctx context.Context, pos world.Position) (bool, error) {
	ev := &events.MoveEvent{EntityID: p.id, From: p.position, To: pos}

	p.fire(ctx, events.MoveBefore, ev)
	if ev.Cancelled() {
		return false, nil
	}

	if !p.position.SameRoom(pos) {
		var next world.Room
		if pos.RoomID != 0 {
			r, ok := p.deps.Rooms.Room(pos.RoomID)
			if !ok {
				return false, fmt.Errorf("%w: %d", ErrRoomNotLoaded, pos.RoomID)
			}
			next = r
		}

		if prev, ok := p.deps.Rooms.Room(p.position.RoomID); ok && p.position.RoomID != 0 {
			prev.RemoveUnit(p.roomUnitID)
		}
		p.roomUnitID = 0

		if next != nil {
			unitID, err := next.AddUnit(p.id)
			if err != nil {
				p.position = world.Position{}
				return false, fmt.Errorf("player: enter room %d: %w", pos.RoomID, err)
			}
			p.roomUnitID = unitID
		}
	}
	p.position = pos

	p.fire(ctx, events.MoveAfter, ev)
	return true, nil
}

// fire hands an event to the sink, which also owns counting it.
func (p *Player) fire(ctx context.Context, name string, payload any) {
	p.deps.Events.Fire(ctx, name, payload)
}
