// Package observe defines the Prometheus metrics exposed at /metrics.
package observe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hostpulse"

// Worker registry metrics.
var (
	// WorkersCreated counts session records created by POST /worker.
	WorkersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "workers_created_total",
		Help:      "Worker session records created.",
	})

	// WorkersClaimed counts successful claims.
	WorkersClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "workers_claimed_total",
		Help:      "Worker session records claimed by a streaming connection.",
	})

	// WorkersSwept counts unclaimed records destroyed by the sweeper.
	WorkersSwept = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "workers_swept_total",
		Help:      "Unclaimed worker records destroyed after the grace period.",
	})

	// WorkersReleased counts claimed records destroyed when their
	// connection ended.
	WorkersReleased = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "workers_released_total",
		Help:      "Claimed worker records released on connection close.",
	})

	// ClaimFailures counts rejected claims by reason
	// (not_found, already_claimed, subject_mismatch).
	ClaimFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "claim_failures_total",
		Help:      "Rejected worker claims by reason.",
	}, []string{"reason"})
)

// Snapshot and streaming metrics.
var (
	// ProviderFailures counts snapshot provider errors by metric domain.
	ProviderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_failures_total",
		Help:      "Snapshot provider failures by domain.",
	}, []string{"domain"})

	// ActiveStreams tracks open streaming connections.
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_streams",
		Help:      "Currently open streaming connections.",
	})

	// HTTPRequests counts HTTP requests by path and status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by path and status code.",
	}, []string{"path", "code"})
)
