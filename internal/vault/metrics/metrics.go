// Package metrics declares the Prometheus instruments the key-lifecycle
// engine updates. Naming follows the vault_<subsystem>_<noun>_total/seconds
// convention.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// KeyRotationsTotal counts completed rotations per domain.
	KeyRotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_key_rotations_total",
			Help: "Total number of completed key rotations.",
		},
		[]string{"domain"},
	)

	// RotationLockContendedTotal counts rotation attempts that found the
	// domain's lock already held.
	RotationLockContendedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_rotation_lock_contended_total",
			Help: "Total number of rotation attempts skipped because the domain's lock was held.",
		},
		[]string{"domain"},
	)

	// GarbageCollectedTotal counts kids moved into a garbage record, by kind.
	GarbageCollectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_garbage_collected_total",
			Help: "Total number of kids recorded as garbage, by kind.",
		},
		[]string{"domain", "kind"},
	)

	// GarbageCriticalTotal counts garbage records that escalated to CRITICAL.
	GarbageCriticalTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vault_garbage_critical_total",
			Help: "Total number of garbage records that escalated to CRITICAL.",
		},
		[]string{"domain"},
	)

	// SignLatencySeconds observes end-to-end Sign call latency.
	SignLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vault_sign_latency_seconds",
			Help:    "Sign call latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"domain"},
	)
)
