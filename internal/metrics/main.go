package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "duo"

var (
	RoomsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rooms_created_total",
		Help:      "Number of rooms created.",
	})

	ProposalTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "proposal_transitions_total",
		Help:      "Number of proposal status transitions by kind and resulting status.",
	}, []string{"kind", "status"})

	SessionCalls = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "session_service_call_seconds",
		Help:      "Latency of session service calls by method and outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "outcome"})

	Notifications = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "room_notifications_total",
		Help:      "Number of room change notifications delivered to subscribers.",
	})
)

// Register adds every collector of the service to the registerer.
func Register(registerer prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{RoomsCreated, ProposalTransitions, SessionCalls, Notifications} {
		if err := registerer.Register(c); err != nil {
			return err
		}
	}
	return nil
}
