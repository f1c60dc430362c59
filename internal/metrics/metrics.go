// Package metrics exposes Prometheus collectors for reconciliation, uploads
// and the HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"rollcall/internal/attendance"
	"rollcall/internal/upload"
)

const namespace = "rollcall"

// Metrics implements attendance.Observer and upload.Observer.
type Metrics struct {
	ledgerWrites  *prometheus.CounterVec
	writeFailures prometheus.Counter
	skippedRows   prometheus.Counter
	scans         prometheus.Counter
	uploads       *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

var (
	_ attendance.Observer = (*Metrics)(nil)
	_ upload.Observer     = (*Metrics)(nil)
)

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ledgerWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_writes_total",
			Help:      "Attendance records written, by status.",
		}, []string{"status"}),
		writeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_write_failures_total",
			Help:      "Attendance record writes that failed.",
		}),
		skippedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roster_rows_skipped_total",
			Help:      "Roster rows that matched no Directory entry.",
		}),
		scans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_recorded_total",
			Help:      "Badge scans written to the scan log.",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_processed_total",
			Help:      "Uploaded objects handled by the processor, by outcome.",
		}, []string{"outcome"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}
	reg.MustRegister(m.ledgerWrites, m.writeFailures, m.skippedRows, m.scans, m.uploads, m.httpDuration)
	return m
}

func (m *Metrics) RecordWritten(s attendance.Status) {
	m.ledgerWrites.WithLabelValues(string(s)).Inc()
}

func (m *Metrics) RecordWriteFailed() { m.writeFailures.Inc() }

func (m *Metrics) RosterRowsSkipped(n int) {
	if n > 0 {
		m.skippedRows.Add(float64(n))
	}
}

func (m *Metrics) ScanRecorded() { m.scans.Inc() }

func (m *Metrics) UploadProcessed(o upload.Outcome) {
	m.uploads.WithLabelValues(string(o)).Inc()
}

// Middleware observes request latency by matched route. Unmatched requests
// are labelled "unmatched" to keep cardinality bounded.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
