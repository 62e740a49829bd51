package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Real-time layer metrics.
var (
	wsActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_active_connections",
		Help: "Currently open WebSocket connections.",
	})

	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_events_total",
			Help: "Inbound client events by event name.",
		},
		[]string{"event"},
	)

	broadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_broadcasts_total",
			Help: "Room broadcasts by origin scope.",
		},
		[]string{"scope"}, // "local" or "remote"
	)

	fanoutState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fanout_adapter_state",
		Help: "Fan-out adapter state (0 unconfigured, 1 connecting, 2 ready, 3 degraded).",
	})
)

// Init registers the collectors with the default registry.
func Init() {
	prometheus.MustRegister(wsActiveConnections, wsEventsTotal, broadcastsTotal, fanoutState)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func ConnectionOpened()          { wsActiveConnections.Inc() }
func ConnectionClosed()          { wsActiveConnections.Dec() }
func EventReceived(event string) { wsEventsTotal.WithLabelValues(event).Inc() }
func BroadcastDelivered(scope string) {
	broadcastsTotal.WithLabelValues(scope).Inc()
}
func SetFanoutState(state int) { fanoutState.Set(float64(state)) }
