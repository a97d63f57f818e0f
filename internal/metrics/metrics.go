// Package metrics wires the Prometheus collectors the coordinator exposes
// (spec.md §6 Observability), grounded on the teacher's prom_proxy package —
// the only repo in the pack that already wires client_golang.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncLoss is master.sync.loss: the most recent epoch-end distributed
	// loss observed by the Sync Training Loop.
	SyncLoss = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "master_sync_loss",
		Help: "Most recent epoch-end distributed loss reported by the synchronous training loop.",
	})

	// SyncBatchDuration is master.sync.batch_duration_seconds: wall time of
	// one batch's scatter/gather round trip.
	SyncBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "master_sync_batch_duration_seconds",
		Help: "Duration of one synchronous batch scatter/gather round trip.",
	})

	// AsyncLoss is master.async.loss: the most recent smoothed local loss
	// observed by the Async Loss Monitor.
	AsyncLoss = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "master_async_loss",
		Help: "Most recent smoothed local loss reported by the async loss monitor.",
	})

	// AsyncUpdatesTotal is master.async.updates_total: the running count of
	// gradient updates applied by the async coordinator.
	AsyncUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "master_async_updates_total",
		Help: "Total number of gradient updates applied by the async training coordinator.",
	})
)
