package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tawk_ws_connections",
		Help: "Open WebSocket sessions.",
	})
	wsEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tawk_ws_events_total",
		Help: "Inbound events by name and outcome (ok or an error kind).",
	}, []string{"event", "outcome"})
	wsNotifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tawk_ws_notifications_total",
		Help: "Outbound notifications by event and result (delivered, offline, dropped).",
	}, []string{"event", "result"})
)

func init() {
	prometheus.MustRegister(wsConnections, wsEvents, wsNotifications)
}
