package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobExecutions counts scheduled job invocations by endpoint and result (success|failure).
	JobExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegate_job_executions_total",
			Help: "Total number of scheduled job executions",
		},
		[]string{"endpoint", "result"},
	)

	// MembersRemoved counts members revoked by the expiration sweep by outcome (removed|removal_failed).
	MembersRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegate_members_removed_total",
			Help: "Total number of members processed by the expiration sweep",
		},
		[]string{"outcome"},
	)

	// InvitesIssued counts single-use invite links issued after payment approval.
	InvitesIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telegate_invites_issued_total",
			Help: "Total number of single-use invite links issued",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "telegate_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
