package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// callTransitions counts applied call state changes by resulting verdict
	// and status.
	callTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tawk_call_transitions_total",
			Help: "Call record transitions by resulting verdict and status.",
		},
		[]string{"verdict", "status"},
	)

	// callStale counts call signals rejected as stale, by signal.
	callStale = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tawk_call_stale_events_total",
			Help: "Call signals that matched no ringing call.",
		},
		[]string{"signal"},
	)
)

func init() {
	prometheus.MustRegister(callTransitions, callStale)
}
