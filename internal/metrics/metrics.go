// Package metrics exposes the matching core's health signal and basic
// throughput counters (spec.md §7: persistence failures "surfaced via a
// health signal") using github.com/prometheus/client_golang, pulled into
// the dependency stack from VictorVVedtion-perp-dex's go.mod (SPEC_FULL.md
// §B) since the teacher carries no metrics of its own.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TradesTotal counts executed trades per symbol.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fenrir",
		Name:      "trades_total",
		Help:      "Total number of executed trades, by symbol.",
	}, []string{"symbol"})

	// OrdersTotal counts accepted submissions per symbol, order type, and
	// final status.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fenrir",
		Name:      "orders_total",
		Help:      "Total number of submitted orders, by symbol, type, and final status.",
	}, []string{"symbol", "type", "status"})

	// SubmitDuration tracks the engine's Submit latency by symbol, measured
	// from after validation to return; coordinator queueing is not included.
	SubmitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fenrir",
		Name:      "submit_duration_seconds",
		Help:      "Submit call latency in seconds, by symbol.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"symbol"})

	// PersistenceHealthy mirrors persistence.Sink.Healthy: 0 after a failed
	// write or a record dropped on a full queue, 1 again after the next
	// successful write (spec.md §4.5/§7 health signal).
	PersistenceHealthy = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fenrir",
		Name:      "persistence_healthy",
		Help:      "0 after a failed write or a dropped record, 1 again after the next successful write.",
	})

	// SymbolsPoisoned counts symbols currently halted by an internal
	// invariant violation (spec.md §7 Internal error propagation policy).
	SymbolsPoisoned = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fenrir",
		Name:      "symbols_poisoned",
		Help:      "Number of symbol workers currently halted by an invariant violation.",
	})
)
