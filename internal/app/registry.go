package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/avolkov/parlor/internal/core"
	"github.com/avolkov/parlor/internal/metrics"
)

// Registry tracks the outbound sink of every live connection. The transport
// binds at upgrade time and unbinds on close; broadcasts resolve sinks here.
type Registry struct {
	mu    sync.RWMutex
	sinks map[core.ConnID]core.Sink
}

func NewRegistry() *Registry {
	return &Registry{sinks: make(map[core.ConnID]core.Sink)}
}

func (r *Registry) Bind(id core.ConnID, sink core.Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[id] = sink
	metrics.Connections.Inc()
	log.Info().Str("module", "app.registry").Str("cid", string(id)).Msg("bound connection")
}

func (r *Registry) Unbind(id core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sinks[id]; !ok {
		return
	}
	delete(r.sinks, id)
	metrics.Connections.Dec()
	log.Info().Str("module", "app.registry").Str("cid", string(id)).Msg("unbind connection")
}

func (r *Registry) Sink(id core.ConnID) (core.Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sinks[id]
	return s, ok
}

// Snapshot returns every currently bound sink.
func (r *Registry) Snapshot() []core.Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Sink, 0, len(r.sinks))
	for _, s := range r.sinks {
		out = append(out, s)
	}
	return out
}
