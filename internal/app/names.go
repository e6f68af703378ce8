package app

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/avolkov/parlor/internal/core"
)

var ErrNameTaken = errors.New("display name already taken")

// NameRegistry enforces process-wide display name uniqueness.
// It owns nothing but its own map; room membership lives in RoomStore.
type NameRegistry struct {
	mu     sync.Mutex
	owners map[string]core.ConnID
}

func NewNameRegistry() *NameRegistry {
	return &NameRegistry{owners: make(map[string]core.ConnID)}
}

// Claim binds name to id. Re-claiming a name already held by the same
// connection is a no-op success; a name held by any other connection fails.
func (n *NameRegistry) Claim(name string, id core.ConnID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if owner, ok := n.owners[name]; ok && owner != id {
		return ErrNameTaken
	}
	n.owners[name] = id
	log.Debug().Str("module", "app.names").Str("name", name).Str("cid", string(id)).Msg("name claimed")
	return nil
}

// Release is idempotent.
func (n *NameRegistry) Release(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.owners, name)
}

// Holder reports which connection currently owns name, if any.
func (n *NameRegistry) Holder(name string) (core.ConnID, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id, ok := n.owners[name]
	return id, ok
}
