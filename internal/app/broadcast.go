package app

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/avolkov/parlor/internal/core"
	"github.com/avolkov/parlor/internal/domain"
)

// Events pushed to clients without a request id.
const (
	EventRoomsList   = "rooms-list"
	EventUserJoined  = "user joined"
	EventUserLeft    = "user left"
	EventChatMessage = "chat message"
)

// UserEvent is the payload of "user joined" / "user left".
type UserEvent struct {
	Name string `json:"name"`
}

type pushEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broadcaster fans events out to room members or to every connection.
// Delivery is fire-and-forget: a full client buffer drops that frame for
// that client only. A per-room sequence mutex guarantees that frames for
// one room go out in the order they were issued, and that chat messages
// are delivered in exactly their history append order.
type Broadcaster struct {
	store *RoomStore
	conns *Registry

	mu  sync.Mutex
	seq map[domain.RoomName]*sync.Mutex
}

func NewBroadcaster(store *RoomStore, conns *Registry) *Broadcaster {
	return &Broadcaster{
		store: store,
		conns: conns,
		seq:   make(map[domain.RoomName]*sync.Mutex),
	}
}

func (b *Broadcaster) seqFor(name domain.RoomName) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.seq[name]
	if !ok {
		m = &sync.Mutex{}
		b.seq[name] = m
	}
	return m
}

// forget drops the sequence lock of a deleted room.
func (b *Broadcaster) forget(name domain.RoomName) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.seq, name)
}

func encodeEvent(event string, payload any) (core.Frame, bool) {
	buf, err := json.Marshal(pushEnvelope{Type: event, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("module", "app.broadcast").Str("event", event).Msg("marshal event")
		return nil, false
	}
	return core.Frame(buf), true
}

// ToRoom delivers the event to every connection that is a member of the room
// at the moment of the call.
func (b *Broadcaster) ToRoom(name domain.RoomName, event string, payload any) {
	frame, ok := encodeEvent(event, payload)
	if !ok {
		return
	}
	seq := b.seqFor(name)
	seq.Lock()
	defer seq.Unlock()
	b.fanOut(b.store.MemberIDs(name), frame)
}

// Message appends msg to the room's history and fans it out under the same
// sequence lock, so no two messages are ever observed out of append order.
func (b *Broadcaster) Message(name domain.RoomName, msg domain.Message) {
	frame, ok := encodeEvent(EventChatMessage, msg)
	if !ok {
		return
	}
	seq := b.seqFor(name)
	seq.Lock()
	defer seq.Unlock()
	b.store.AppendMessage(name, msg)
	b.fanOut(b.store.MemberIDs(name), frame)
}

// ToAll delivers the event to every currently bound connection.
func (b *Broadcaster) ToAll(event string, payload any) {
	frame, ok := encodeEvent(event, payload)
	if !ok {
		return
	}
	for _, sink := range b.conns.Snapshot() {
		_ = sink.TrySend(frame)
	}
}

// ToConn delivers the event to a single connection, if still bound.
func (b *Broadcaster) ToConn(id core.ConnID, event string, payload any) {
	frame, ok := encodeEvent(event, payload)
	if !ok {
		return
	}
	if sink, bound := b.conns.Sink(id); bound {
		_ = sink.TrySend(frame)
	}
}

func (b *Broadcaster) fanOut(ids []core.ConnID, frame core.Frame) {
	sent, dropped := 0, 0
	for _, id := range ids {
		sink, ok := b.conns.Sink(id)
		if !ok {
			continue
		}
		if err := sink.TrySend(frame); err != nil {
			dropped++
			continue
		}
		sent++
	}
	log.Debug().Str("module", "app.broadcast").Int("sent_to", sent).Int("dropped", dropped).Msg("fan out")
}
