package app

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/avolkov/parlor/internal/core"
	"github.com/avolkov/parlor/internal/domain"
	"github.com/avolkov/parlor/internal/metrics"
)

var ErrNameInRoom = errors.New("display name already in room")

// room is membership plus bounded history, guarded by its own mutex so
// unrelated rooms never contend. dead marks a struct that deleteIfEmpty has
// unmapped; a caller that resolved the pointer before the deletion must not
// write into it.
type room struct {
	mu      sync.Mutex
	dead    bool
	members map[core.ConnID]string
	history []domain.Message
}

func newRoom() *room {
	return &room{members: make(map[core.ConnID]string)}
}

// RoomInfo is a read-only view for APIs.
type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"client_count"`
}

// RoomStore owns every room's membership and history. The default room
// always exists and is never deleted; other rooms are created lazily on
// first join and deleted the moment they become empty.
type RoomStore struct {
	defaultRoom domain.RoomName
	historyCap  int

	mu    sync.RWMutex
	rooms map[domain.RoomName]*room
	order []domain.RoomName
}

func NewRoomStore(defaultRoom domain.RoomName, historyCap int) *RoomStore {
	s := &RoomStore{
		defaultRoom: defaultRoom,
		historyCap:  historyCap,
		rooms:       make(map[domain.RoomName]*room),
	}
	s.rooms[defaultRoom] = newRoom()
	s.order = append(s.order, defaultRoom)
	metrics.Rooms.Inc()
	return s
}

func (s *RoomStore) DefaultRoom() domain.RoomName { return s.defaultRoom }

// EnsureRoom creates an empty room if absent. Idempotent.
func (s *RoomStore) EnsureRoom(name domain.RoomName) {
	s.getOrCreate(name)
}

func (s *RoomStore) getOrCreate(name domain.RoomName) *room {
	s.mu.RLock()
	r, ok := s.rooms[name]
	s.mu.RUnlock()
	if ok {
		return r
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok = s.rooms[name]; ok {
		return r
	}
	r = newRoom()
	s.rooms[name] = r
	s.order = append(s.order, name)
	metrics.Rooms.Inc()
	log.Info().Str("module", "app.rooms").Str("room", string(name)).Msg("room created")
	return r
}

func (s *RoomStore) get(name domain.RoomName) (*room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[name]
	return r, ok
}

// RoomNames returns all existing room names in creation order.
func (s *RoomStore) RoomNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, string(name))
	}
	return out
}

// Infos returns name and member count per room, in creation order.
func (s *RoomStore) Infos() []RoomInfo {
	s.mu.RLock()
	names := make([]domain.RoomName, len(s.order))
	copy(names, s.order)
	s.mu.RUnlock()

	out := make([]RoomInfo, 0, len(names))
	for _, name := range names {
		if r, ok := s.get(name); ok {
			r.mu.Lock()
			out = append(out, RoomInfo{Name: name, MemberCount: len(r.members)})
			r.mu.Unlock()
		}
	}
	return out
}

// AddMember inserts id into the room, creating the room if absent. It fails
// with ErrNameInRoom when a different member of that room already holds name;
// the global registry check can race, so the room re-checks on its own.
func (s *RoomStore) AddMember(name domain.RoomName, id core.ConnID, display string) error {
	for {
		r := s.getOrCreate(name)
		r.mu.Lock()
		if r.dead {
			// Lost a race with deleteIfEmpty between the map lookup and
			// the room lock; the struct is orphaned, so resolve again.
			r.mu.Unlock()
			continue
		}
		for member, held := range r.members {
			if member != id && held == display {
				r.mu.Unlock()
				return ErrNameInRoom
			}
		}
		r.members[id] = display
		r.mu.Unlock()
		log.Info().Str("module", "app.rooms").Str("room", string(name)).
			Str("cid", string(id)).Str("name", display).Msg("member added")
		return nil
	}
}

// RemoveMember removes id from the room and returns the departing display
// name. A non-default room that becomes empty is deleted, history and all.
// Absent room or member is a no-op.
func (s *RoomStore) RemoveMember(name domain.RoomName, id core.ConnID) (display string, removed bool, roomDeleted bool) {
	r, ok := s.get(name)
	if !ok {
		return "", false, false
	}
	r.mu.Lock()
	display, removed = r.members[id]
	if removed {
		delete(r.members, id)
	}
	empty := len(r.members) == 0
	r.mu.Unlock()

	if !removed {
		return "", false, false
	}
	log.Info().Str("module", "app.rooms").Str("room", string(name)).
		Str("cid", string(id)).Str("name", display).Msg("member removed")

	if empty && name != s.defaultRoom {
		roomDeleted = s.deleteIfEmpty(name)
	}
	return display, removed, roomDeleted
}

// deleteIfEmpty re-checks emptiness under the store lock: a join may have
// slipped in between the member removal and now.
func (s *RoomStore) deleteIfEmpty(name domain.RoomName) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[name]
	if !ok {
		return false
	}
	r.mu.Lock()
	if len(r.members) > 0 {
		r.mu.Unlock()
		return false
	}
	// Marked under r.mu before unmapping so that a writer holding a stale
	// pointer sees the deletion instead of mutating an orphaned struct.
	r.dead = true
	r.mu.Unlock()
	delete(s.rooms, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	metrics.Rooms.Dec()
	log.Info().Str("module", "app.rooms").Str("room", string(name)).Msg("empty room deleted")
	return true
}

// AppendMessage appends to the room's history, evicting the oldest entry
// once the bound is reached. Messages to absent rooms are dropped.
func (s *RoomStore) AppendMessage(name domain.RoomName, msg domain.Message) {
	for {
		r, ok := s.get(name)
		if !ok {
			return
		}
		r.mu.Lock()
		if r.dead {
			r.mu.Unlock()
			continue
		}
		r.history = append(r.history, msg)
		if len(r.history) > s.historyCap {
			r.history = r.history[len(r.history)-s.historyCap:]
		}
		r.mu.Unlock()
		return
	}
}

// HistorySnapshot returns a copy of the room's history, oldest first.
func (s *RoomStore) HistorySnapshot(name domain.RoomName) []domain.Message {
	r, ok := s.get(name)
	if !ok {
		return []domain.Message{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Message, len(r.history))
	copy(out, r.history)
	return out
}

// MemberNames returns the display names currently in the room.
func (s *RoomStore) MemberNames(name domain.RoomName) []string {
	r, ok := s.get(name)
	if !ok {
		return []string{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.members))
	for _, display := range r.members {
		out = append(out, display)
	}
	return out
}

// MemberIDs returns a snapshot of the room's live membership.
func (s *RoomStore) MemberIDs(name domain.RoomName) []core.ConnID {
	r, ok := s.get(name)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.ConnID, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	return out
}
