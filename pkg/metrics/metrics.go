package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VerificationCodes counts verification code operations by kind (send|verify) and result.
	VerificationCodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edba_verification_codes_total",
			Help: "Total number of verification code operations",
		},
		[]string{"kind", "result"},
	)

	// ApprovalTransitions counts approval state machine transitions by action and result.
	ApprovalTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edba_approval_transitions_total",
			Help: "Total number of organization approval transitions",
		},
		[]string{"action", "result"},
	)

	// MembershipChanges counts organization membership mutations (add|remove|edit).
	MembershipChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edba_membership_changes_total",
			Help: "Total number of organization membership mutations",
		},
		[]string{"action", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edba_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
