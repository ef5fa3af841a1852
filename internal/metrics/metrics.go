// Package metrics provides Prometheus instrumentation for the chat relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of open connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairchat_connections_total",
		Help: "Current number of open connections",
	})

	// WaitingPoolSize tracks the number of entries waiting for a partner.
	WaitingPoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairchat_waiting_pool_size",
		Help: "Current number of entries in the waiting pool",
	})

	// ActiveRooms tracks rooms that are not yet closed.
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairchat_active_rooms",
		Help: "Current number of open rooms",
	})

	// MatchesTotal counts successful pairings by match type.
	MatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairchat_matches_total",
		Help: "Total number of successful pairings",
	}, []string{"type"}) // type = "interest", "random"

	// MatchWait records the time an entry spent in the pool before pairing.
	MatchWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pairchat_match_wait_seconds",
		Help:    "Time from match request to match found",
		Buckets: []float64{1, 2, 3, 5, 10, 20, 30, 60, 120},
	})

	// MessagesTotal counts room messages by kind.
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairchat_messages_total",
		Help: "Total number of room messages",
	}, []string{"kind"})

	// RoomsClosedTotal counts room closures by reason.
	RoomsClosedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairchat_rooms_closed_total",
		Help: "Total number of closed rooms",
	}, []string{"reason"})

	// CollaboratorFailures counts failed best-effort calls by collaborator.
	CollaboratorFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pairchat_collaborator_failures_total",
		Help: "Failed calls to ban store, audit log and media forwarder",
	}, []string{"collaborator"})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		WaitingPoolSize,
		ActiveRooms,
		MatchesTotal,
		MatchWait,
		MessagesTotal,
		RoomsClosedTotal,
		CollaboratorFailures,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
