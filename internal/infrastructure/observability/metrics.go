package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TokensIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tokens_issued_total",
			Help: "Total number of tokens issued",
		},
	)

	// Validation outcomes, labeled by the failure kind ("ok" on success).
	TokenValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_validations_total",
			Help: "Total number of token validation attempts by outcome",
		},
		[]string{"outcome"},
	)

	TokensRevoked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokens_revoked_total",
			Help: "Total number of tokens revoked by logout",
		},
		[]string{"mode"},
	)

	SweepMarkedExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sweep_tokens_marked_expired_total",
			Help: "Total number of ledger records marked expired by the sweep",
		},
	)

	RepositoryCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_calls_total",
			Help: "Total number of repository method calls",
		},
		[]string{"method", "status"},
	)

	RepositoryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repository_duration_seconds",
			Help:    "Duration of repository method calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(
		TokensIssued,
		TokenValidations,
		TokensRevoked,
		SweepMarkedExpired,
		RepositoryCalls,
		RepositoryDuration,
	)
}
