// Package metrics exposes the daemon's prometheus counters, grounded on
// the client_golang conventions used throughout the r3e-network and
// cuemby-warren example repos: package-level collectors registered once
// and incremented from wherever the corresponding event happens.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Reconciliations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ers_reconciliations_total",
		Help: "Number of replication reconciliation passes run.",
	})

	ReplicationTasksCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ers_replication_tasks_created_total",
		Help: "Number of replicator tasks created.",
	})

	ReplicationTasksRemoved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ers_replication_tasks_removed_total",
		Help: "Number of replicator tasks removed because they were no longer desired.",
	})

	FederatedTimeouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ers_federated_timeouts_total",
		Help: "Number of federated calls to a peer that timed out.",
	}, []string{"peer"})

	FederatedCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ers_federated_calls_total",
		Help: "Number of federated calls made, by outcome.",
	}, []string{"peer", "outcome"})
)

// Registry is the default prometheus registry the daemon's /metrics
// endpoint serves from.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		Reconciliations,
		ReplicationTasksCreated,
		ReplicationTasksRemoved,
		FederatedTimeouts,
		FederatedCalls,
	)
}
