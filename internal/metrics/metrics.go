// SafeNet - Personal Safety Tracking Agent
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jahanasherin1/SafeNet-sub000

// Package metrics provides Prometheus instrumentation for the tracking agent:
// acquisition channel throughput, delivery pipeline outcomes, sync queue
// health, heartbeat recoveries, and battery/wake-lock state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Acquisition metrics

	SamplesAcquired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safenet_samples_acquired_total",
			Help: "Location samples produced by each acquisition channel",
		},
		[]string{"channel"},
	)

	SamplesStale = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safenet_samples_stale_total",
			Help: "Samples discarded as older than the session or the stale cutoff",
		},
		[]string{"channel"},
	)

	// Delivery pipeline metrics

	DeliveryOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safenet_delivery_outcomes_total",
			Help: "Delivery pipeline outcomes per sample",
		},
		[]string{"outcome"}, // "sent", "low_accuracy", "rate_limited", "queued"
	)

	TransmitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "safenet_transmit_duration_seconds",
			Help:    "Duration of location-update requests to the remote API",
			Buckets: prometheus.DefBuckets,
		},
	)

	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "safenet_transmit_breaker_state",
			Help: "Circuit breaker state of the remote API client (0=closed, 1=half-open, 2=open)",
		},
	)

	// Sync queue metrics

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "safenet_queue_depth",
			Help: "Entries currently held in the durable sync queue",
		},
	)

	QueueEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "safenet_queue_evictions_total",
			Help: "Oldest entries evicted when the queue bound was exceeded",
		},
	)

	QueueRetryExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "safenet_queue_retry_exhausted_total",
			Help: "Entries dropped after exceeding the delivery retry ceiling",
		},
	)

	QueueDrains = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safenet_queue_drains_total",
			Help: "Drain passes over the sync queue",
		},
		[]string{"result"}, // "clean", "partial", "skipped"
	)

	// Orchestrator metrics

	TrackingState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "safenet_tracking_state",
			Help: "Orchestrator state (0=inactive, 1=active, 2=failed)",
		},
	)

	HeartbeatRecoveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "safenet_heartbeat_recoveries_total",
			Help: "Times the heartbeat restarted tracking after the platform dropped the scheduled task",
		},
	)

	// Device state metrics

	BatteryLevel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "safenet_battery_level_percent",
			Help: "Last battery level observed by the optimization policy",
		},
	)

	BatterySavingActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "safenet_battery_saving_active",
			Help: "Whether battery-saving mode is in effect (1) or not (0)",
		},
	)

	WakeLockHeld = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "safenet_wakelock_held",
			Help: "Whether the agent currently holds a wake lock (1) or not (0)",
		},
	)
)

// SetBool sets a gauge to 1 for true, 0 for false.
func SetBool(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}
