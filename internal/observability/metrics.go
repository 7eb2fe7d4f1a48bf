// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ledger metrics
	TransactionsTotal   *prometheus.CounterVec
	TransactionDuration *prometheus.HistogramVec
	CurrentSlot         prometheus.Gauge

	// Escrow metrics
	SwapOperations *prometheus.CounterVec
	SwapErrors     *prometheus.CounterVec
	EscrowedAmount *prometheus.GaugeVec
	FeesCollected  *prometheus.CounterVec
	OpenSwaps      prometheus.Gauge

	// RPC metrics
	RPCRequests     *prometheus.CounterVec
	RPCLatency      *prometheus.HistogramVec
	WSSubscribers   prometheus.Gauge
	WSEventsDropped prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "atomic_swap"
	}

	return &Metrics{
		// Ledger metrics
		TransactionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Total number of ledger transactions by instruction and status",
		}, []string{"instruction", "status"}),
		TransactionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "transaction_duration_seconds",
			Help:      "Ledger transaction duration in seconds, including persistence",
			Buckets:   prometheus.DefBuckets,
		}, []string{"instruction"}),
		CurrentSlot: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "current_slot",
			Help:      "Last committed ledger slot",
		}),

		// Escrow metrics
		SwapOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "operations_total",
			Help:      "Total number of successful escrow operations",
		}, []string{"operation"}),
		SwapErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "errors_total",
			Help:      "Total number of rejected escrow operations by error",
		}, []string{"operation", "error"}),
		EscrowedAmount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "custody_amount",
			Help:      "Token amount held in pool custody",
		}, []string{"pool"}),
		FeesCollected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "fees_collected_total",
			Help:      "Total fees charged on redeem",
		}, []string{"pool"}),
		OpenSwaps: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "open_swaps",
			Help:      "Number of funded swaps not yet settled",
		}),

		// RPC metrics
		RPCRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Total number of JSON-RPC requests by method and status",
		}, []string{"method", "status"}),
		RPCLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "request_latency_seconds",
			Help:      "JSON-RPC request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WSSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "ws_subscribers",
			Help:      "Number of connected event stream subscribers",
		}),
		WSEventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "ws_events_dropped_total",
			Help:      "Events dropped for slow subscribers",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTransaction records a ledger transaction outcome.
func RecordTransaction(instruction, status string, seconds float64) {
	DefaultMetrics.TransactionsTotal.WithLabelValues(instruction, status).Inc()
	DefaultMetrics.TransactionDuration.WithLabelValues(instruction).Observe(seconds)
}

// UpdateSlot updates the current slot gauge.
func UpdateSlot(slot uint64) {
	DefaultMetrics.CurrentSlot.Set(float64(slot))
}

// RecordSwapOperation records a successful escrow operation.
func RecordSwapOperation(operation string) {
	DefaultMetrics.SwapOperations.WithLabelValues(operation).Inc()
	switch operation {
	case "deposit":
		DefaultMetrics.OpenSwaps.Inc()
	case "redeem", "refund":
		DefaultMetrics.OpenSwaps.Dec()
	}
}

// RecordSwapError records a rejected escrow operation.
func RecordSwapError(operation, errName string) {
	DefaultMetrics.SwapErrors.WithLabelValues(operation, errName).Inc()
}

// UpdateCustody sets the custody amount gauge for a pool.
func UpdateCustody(pool string, amount uint64) {
	DefaultMetrics.EscrowedAmount.WithLabelValues(pool).Set(float64(amount))
}

// RecordFee adds a collected fee.
func RecordFee(pool string, fee uint64) {
	DefaultMetrics.FeesCollected.WithLabelValues(pool).Add(float64(fee))
}

// RecordRPCRequest records a JSON-RPC request.
func RecordRPCRequest(method, status string, seconds float64) {
	DefaultMetrics.RPCRequests.WithLabelValues(method, status).Inc()
	DefaultMetrics.RPCLatency.WithLabelValues(method).Observe(seconds)
}

// UpdateWSSubscribers sets the subscriber gauge.
func UpdateWSSubscribers(n int) {
	DefaultMetrics.WSSubscribers.Set(float64(n))
}

// RecordWSDrop counts an event dropped for a slow subscriber.
func RecordWSDrop() {
	DefaultMetrics.WSEventsDropped.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
