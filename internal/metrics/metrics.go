// Package metrics defines the Prometheus collectors exported by ledgerd.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmerrifield20/tokenledger/internal/ledger"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tokenledger_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tokenledger_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tokenledger_operations_total",
		Help: "Ledger operations by name and result code.",
	}, []string{"op", "result"})

	totalSupply = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tokenledger_total_supply",
		Help: "Current total supply in base units.",
	})

	accounts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tokenledger_accounts",
		Help: "Number of principals holding a balance entry.",
	})

	historyRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tokenledger_history_records",
		Help: "Number of records in the transaction history.",
	})

	burntCycles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tokenledger_burnt_cycles",
		Help: "Cumulative burnt cycles.",
	})

	eventDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tokenledger_event_deliveries_total",
		Help: "Event deliveries by success status.",
	}, []string{"status"})

	checkpointsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tokenledger_checkpoints_total",
		Help: "Checkpoint saves by success status.",
	}, []string{"status"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// Handler returns a Gin handler that serves Prometheus metrics.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordOperation counts one ledger operation. err is reduced to its ledger
// error code; nil records "ok" and unknown errors record "error".
func RecordOperation(op string, err error) {
	operationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if code := ledger.Code(err); code != "" {
		return code
	}
	return "error"
}

// ObserveLedger refreshes the state gauges from a metadata summary.
func ObserveLedger(m ledger.Metadata) {
	totalSupply.Set(float64(m.TotalSupply))
	accounts.Set(float64(m.Accounts))
	historyRecords.Set(float64(m.HistoryLen))
	burntCycles.Set(float64(m.BurntCycles))
}

// RecordEventDelivery records an event delivery attempt.
func RecordEventDelivery(success bool) {
	if success {
		eventDeliveries.WithLabelValues("success").Inc()
	} else {
		eventDeliveries.WithLabelValues("failure").Inc()
	}
}

// RecordCheckpoint records a checkpoint save attempt.
func RecordCheckpoint(success bool) {
	if success {
		checkpointsTotal.WithLabelValues("success").Inc()
	} else {
		checkpointsTotal.WithLabelValues("failure").Inc()
	}
}

var healthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tokenledger_health_checks_total",
	Help: "Dependency health probes by probe name and result.",
}, []string{"probe", "result"})

// RecordHealthCheck records a dependency probe result.
func RecordHealthCheck(probe string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	healthChecksTotal.WithLabelValues(probe, result).Inc()
}
