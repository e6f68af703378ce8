package app

import (
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/avolkov/parlor/internal/core"
	"github.com/avolkov/parlor/internal/domain"
	"github.com/avolkov/parlor/internal/metrics"
)

// Join failure reasons, as seen by the client.
const (
	ReasonMissingName = "missing-name"
	ReasonInvalidName = "invalid-name"
	ReasonNameTaken   = "name-taken"
)

// JoinReply is the acknowledgement of a join request.
type JoinReply struct {
	OK       bool             `json:"ok"`
	Reason   string           `json:"reason,omitempty"`
	RoomName string           `json:"roomName,omitempty"`
	UserName string           `json:"userName,omitempty"`
	History  []domain.Message `json:"history"`
	UserList []string         `json:"userList"`
}

// Session is the per-connection join/identity state machine. It is driven
// only by its own connection's read loop, so its fields need no lock; all
// shared state sits behind NameRegistry and RoomStore.
type Session struct {
	id    core.ConnID
	names *NameRegistry
	rooms *RoomStore
	bcast *Broadcaster

	room domain.RoomName // empty while unjoined
	name string
}

func NewSession(id core.ConnID, names *NameRegistry, rooms *RoomStore, bcast *Broadcaster) *Session {
	return &Session{id: id, names: names, rooms: rooms, bcast: bcast}
}

// Joined reports the current room, if any.
func (s *Session) Joined() (domain.RoomName, bool) {
	return s.room, s.room != ""
}

// Join moves the session into targetRoom under requestedName. Re-joining
// from a joined state is a room/name switch, not an error; re-joining the
// current room under the current name is a pure no-op apart from the reply.
func (s *Session) Join(targetRoom, requestedName string) JoinReply {
	roomName := domain.RoomName(strings.TrimSpace(targetRoom))
	if roomName == "" {
		roomName = s.rooms.DefaultRoom()
	}

	name, err := domain.NormalizeName(requestedName)
	if err != nil {
		metrics.JoinsTotal.WithLabelValues("rejected").Inc()
		if errors.Is(err, domain.ErrNameEmpty) {
			return JoinReply{Reason: ReasonMissingName}
		}
		return JoinReply{Reason: ReasonInvalidName}
	}

	// Claim globally first, confirm room-level second. The room check can
	// still fail under a race, in which case the fresh claim is rolled back.
	freshClaim := s.name != name
	if err := s.names.Claim(name, s.id); err != nil {
		metrics.JoinsTotal.WithLabelValues("rejected").Inc()
		return JoinReply{Reason: ReasonNameTaken}
	}
	if err := s.rooms.AddMember(roomName, s.id, name); err != nil {
		if freshClaim {
			s.names.Release(name)
		}
		metrics.JoinsTotal.WithLabelValues("rejected").Inc()
		return JoinReply{Reason: ReasonNameTaken}
	}

	prevRoom, prevName := s.room, s.name
	rejoin := prevRoom == roomName && prevName == name

	if prevName != "" && !rejoin {
		if prevRoom != roomName {
			if display, removed, deleted := s.rooms.RemoveMember(prevRoom, s.id); removed {
				s.bcast.ToRoom(prevRoom, EventUserLeft, UserEvent{Name: display})
				if deleted {
					s.bcast.forget(prevRoom)
				}
			}
		} else {
			// Renamed in place: AddMember already rewrote the membership
			// row, only the departure of the old name needs announcing.
			s.bcast.ToRoom(roomName, EventUserLeft, UserEvent{Name: prevName})
		}
		if prevName != name {
			s.names.Release(prevName)
		}
	}

	s.room, s.name = roomName, name
	if !rejoin {
		s.bcast.ToRoom(roomName, EventUserJoined, UserEvent{Name: name})
	}

	reply := JoinReply{
		OK:       true,
		RoomName: string(roomName),
		UserName: name,
		History:  s.rooms.HistorySnapshot(roomName),
		UserList: s.rooms.MemberNames(roomName),
	}

	// Room set may have changed (created here, or the old room emptied out).
	s.bcast.ToAll(EventRoomsList, s.rooms.RoomNames())
	metrics.JoinsTotal.WithLabelValues("ok").Inc()
	log.Info().Str("module", "app.session").Str("cid", string(s.id)).
		Str("room", string(roomName)).Str("name", name).Msg("joined room")
	return reply
}

// Send relays a chat message to the current room. Messages from an unjoined
// session and blank bodies are dropped silently.
func (s *Session) Send(body string) {
	if s.room == "" {
		return
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return
	}
	s.bcast.Message(s.room, domain.NewMessage(s.name, body))
	metrics.MessagesTotal.Inc()
}

// Users returns the display names in the current room, nil when unjoined.
func (s *Session) Users() []string {
	if s.room == "" {
		return nil
	}
	return s.rooms.MemberNames(s.room)
}

// Disconnect tears the session down when the transport reports closure.
func (s *Session) Disconnect() {
	if s.room == "" {
		return
	}
	roomName, name := s.room, s.name
	s.room, s.name = "", ""

	_, removed, deleted := s.rooms.RemoveMember(roomName, s.id)
	s.names.Release(name)
	if removed {
		s.bcast.ToRoom(roomName, EventUserLeft, UserEvent{Name: name})
	}
	if deleted {
		s.bcast.forget(roomName)
		s.bcast.ToAll(EventRoomsList, s.rooms.RoomNames())
	}
	log.Info().Str("module", "app.session").Str("cid", string(s.id)).
		Str("room", string(roomName)).Str("name", name).Msg("disconnected")
}
