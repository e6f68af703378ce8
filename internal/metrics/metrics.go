package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parlor_connections",
		Help: "Currently connected clients.",
	})
	Rooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parlor_rooms",
		Help: "Rooms currently in existence.",
	})
	MessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parlor_messages_total",
		Help: "Chat messages relayed.",
	})
	JoinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parlor_joins_total",
		Help: "Join attempts by result.",
	}, []string{"result"})
)

// Handler exposes Prometheus metrics at /metrics.
func Handler() http.Handler { return promhttp.Handler() }
