package app

import (
	"github.com/avolkov/parlor/internal/core"
	"github.com/avolkov/parlor/internal/domain"
)

// Hub bundles the shared chat services handed to every connection handler.
// Constructed once at process start; tests build fresh instances at will.
type Hub struct {
	Names *NameRegistry
	Rooms *RoomStore
	Conns *Registry
	Bcast *Broadcaster
}

func NewHub(defaultRoom domain.RoomName, historyCap int) *Hub {
	rooms := NewRoomStore(defaultRoom, historyCap)
	conns := NewRegistry()
	return &Hub{
		Names: NewNameRegistry(),
		Rooms: rooms,
		Conns: conns,
		Bcast: NewBroadcaster(rooms, conns),
	}
}

// NewSession creates the state machine for one connection.
func (h *Hub) NewSession(id core.ConnID) *Session {
	return NewSession(id, h.Names, h.Rooms, h.Bcast)
}
