package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the perp market engine.
type Metrics struct {
	// --- Engine ---
	OpsApplied  *prometheus.CounterVec
	OpsRejected *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec
	Sequence    prometheus.Gauge

	// --- Market state ---
	MarketSkew         *prometheus.GaugeVec
	MarketSize         *prometheus.GaugeVec
	MarketFundingRate  *prometheus.GaugeVec
	MarketReportedDebt *prometheus.GaugeVec
	PendingOrders      prometheus.Gauge
	OpenPositions      prometheus.Gauge

	// --- Settlement flow ---
	OrdersSettled      *prometheus.CounterVec
	OrderFeesUsd       *prometheus.CounterVec
	KeeperFeesUsd      *prometheus.CounterVec
	StaleOrdersCleared *prometheus.CounterVec

	// --- Channels ---
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistBatchDur      prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistLastSequence  prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perps_engine_ops_applied_total",
			Help: "Operations successfully applied by the engine",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perps_engine_ops_rejected_total",
			Help: "Operations rejected by validation",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perps_engine_op_duration_seconds",
			Help:    "Time to apply a single operation",
			Buckets: latencyBuckets,
		}, []string{"op"}),

		Sequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "perps_engine_sequence",
			Help: "Current global event sequence number",
		}),

		MarketSkew: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perps_market_skew",
			Help: "Signed sum of position sizes per market",
		}, []string{"market"}),

		MarketSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perps_market_size",
			Help: "Total open interest per market",
		}, []string{"market"}),

		MarketFundingRate: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perps_market_funding_rate",
			Help: "Last recorded funding rate per market",
		}, []string{"market"}),

		MarketReportedDebt: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "perps_market_reported_debt_usd",
			Help: "Mark-to-market debt to traders per market, USD",
		}, []string{"market"}),

		PendingOrders: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "perps_pending_orders",
			Help: "Orders committed but not yet settled",
		}),

		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "perps_open_positions",
			Help: "Open positions across all markets",
		}),

		OrdersSettled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perps_orders_settled_total",
			Help: "Orders settled per market",
		}, []string{"market"}),

		OrderFeesUsd: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perps_order_fees_usd_total",
			Help: "Order fees collected per market, USD",
		}, []string{"market"}),

		KeeperFeesUsd: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perps_keeper_fees_usd_total",
			Help: "Keeper fees paid per market, USD",
		}, []string{"market"}),

		StaleOrdersCleared: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perps_stale_orders_cleared_total",
			Help: "Stale orders canceled per market",
		}, []string{"market"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "perps_publish_drops_total",
			Help: "Events dropped because the publish channel was full",
		}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "perps_persist_backpressure_total",
			Help: "Blocking sends to the persist channel that had to wait",
		}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "perps_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "perps_persist_batch_size",
			Help:    "Events per persisted batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "perps_persist_batch_duration_seconds",
			Help:    "Time to write one batch to Postgres",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "perps_persist_errors_total",
			Help: "Persistence failures by stage",
		}, []string{"stage"}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "perps_persist_last_sequence",
			Help: "Highest sequence confirmed written to Postgres",
		}),
	}
}
