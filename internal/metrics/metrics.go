// Package metrics holds the Prometheus collectors of the ledger. Collectors
// register on the default registry and are served by promhttp at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var SalesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "kasirledger",
	Subsystem: "sales",
	Name:      "completed_total",
	Help:      "Committed sales by sale currency and credit flag.",
}, []string{"currency", "credit"})

var SalesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "kasirledger",
	Subsystem: "sales",
	Name:      "rejected_total",
	Help:      "Sales aborted before commit, by error code.",
}, []string{"code"})

var SaleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "kasirledger",
	Subsystem: "sales",
	Name:      "duration_seconds",
	Help:      "Wall time of CreateSale including the store transaction.",
	Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
})

var StockMovements = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "kasirledger",
	Subsystem: "kardex",
	Name:      "entries_total",
	Help:      "Kardex entries written, by movement type.",
}, []string{"type"})

var PurchaseReceipts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "kasirledger",
	Subsystem: "purchasing",
	Name:      "receipts_total",
	Help:      "Purchase orders received.",
})

var CashSessionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "kasirledger",
	Subsystem: "cash",
	Name:      "sessions_open",
	Help:      "Cash sessions currently open (0 or 1).",
})

var CashCloseDifference = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "kasirledger",
	Subsystem: "cash",
	Name:      "last_close_difference",
	Help:      "Reported minus expected cash at the last close, by currency.",
}, []string{"currency"})

var EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "kasirledger",
	Subsystem: "events",
	Name:      "published_total",
	Help:      "Events accepted by the dispatcher queue, by event type.",
}, []string{"type"})

var EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "kasirledger",
	Subsystem: "events",
	Name:      "dropped_total",
	Help:      "Events dropped because the dispatcher queue was full.",
}, []string{"type"})

var EventDeliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "kasirledger",
	Subsystem: "events",
	Name:      "delivery_failures_total",
	Help:      "Sink deliveries that returned an error, by sink.",
}, []string{"sink"})

func ObserveSale(currency string, credit bool, started time.Time) {
	label := "false"
	if credit {
		label = "true"
	}
	SalesCompleted.WithLabelValues(currency, label).Inc()
	SaleDuration.Observe(time.Since(started).Seconds())
}

func ObserveCloseDifference(currency string, diff decimal.Decimal) {
	CashCloseDifference.WithLabelValues(currency).Set(diff.InexactFloat64())
}
