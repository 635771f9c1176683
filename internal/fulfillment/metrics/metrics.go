package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the fulfillment engine.
type Metrics struct {
	TicksTotal      prometheus.Counter
	TickDuration    prometheus.Histogram
	OrdersProcessed *prometheus.CounterVec
	PaymentsCreated prometheus.Counter
	TransfersSent   prometheus.Counter
	StaleOrders     prometheus.Gauge
	FrozenOrders    prometheus.Gauge
}

// New creates and registers all fulfillment metrics.
func New() *Metrics {
	return &Metrics{
		TicksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veil_fulfillment_ticks_total",
			Help: "Total number of fulfillment scan ticks executed",
		}),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veil_fulfillment_tick_duration_seconds",
			Help:    "Wall-clock duration of fulfillment ticks",
			Buckets: prometheus.DefBuckets,
		}),
		OrdersProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veil_fulfillment_orders_processed_total",
			Help: "Orders processed per tick, labeled by outcome",
		}, []string{"outcome"}),
		PaymentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veil_fulfillment_payments_created_total",
			Help: "Registrar top-ups created",
		}),
		TransfersSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veil_fulfillment_transfers_sent_total",
			Help: "Outbound on-chain transfers broadcast",
		}),
		StaleOrders: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "veil_fulfillment_stale_orders",
			Help: "Paid undelivered orders older than the staleness threshold",
		}),
		FrozenOrders: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "veil_fulfillment_frozen_orders",
			Help: "Orders frozen on an unsupported TLD awaiting operator action",
		}),
	}
}

// Outcome labels for OrdersProcessed.
const (
	OutcomeAdvanced = "advanced"
	OutcomeNoop     = "noop"
	OutcomeSkipped  = "skipped"
	OutcomeError    = "error"
	OutcomeFailed   = "failed"
)

func (m *Metrics) IncOrdersProcessed(outcome string) {
	if m == nil {
		return
	}
	m.OrdersProcessed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncTicks() {
	if m == nil {
		return
	}
	m.TicksTotal.Inc()
}

func (m *Metrics) ObserveTick(seconds float64) {
	if m == nil {
		return
	}
	m.TickDuration.Observe(seconds)
}

func (m *Metrics) IncPaymentsCreated() {
	if m == nil {
		return
	}
	m.PaymentsCreated.Inc()
}

func (m *Metrics) IncTransfersSent() {
	if m == nil {
		return
	}
	m.TransfersSent.Inc()
}

func (m *Metrics) SetStaleOrders(n int) {
	if m == nil {
		return
	}
	m.StaleOrders.Set(float64(n))
}

func (m *Metrics) SetFrozenOrders(n int) {
	if m == nil {
		return
	}
	m.FrozenOrders.Set(float64(n))
}
