package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "jab"

var (
	registerOnce sync.Once

	updatesFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "updates_fetched_total",
			Help:      "Updates returned by the transport.",
		},
		[]string{"transport"},
	)
	fetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "fetch_errors_total",
			Help:      "Failed fetch calls.",
		},
		[]string{"transport"},
	)
	sequencerDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sequencer",
			Name:      "updates_total",
			Help:      "Sequencer decisions per update: accepted, duplicate, gap, skipped.",
		},
		[]string{"decision"},
	)
	highWaterMark = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sequencer",
			Name:      "high_water_mark",
			Help:      "Highest update id accepted so far.",
		},
	)
	moduleExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "module_executions_total",
			Help:      "Module command executions by result.",
		},
		[]string{"module", "result"},
	)
	moduleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "module_execution_seconds",
			Help:      "Module command execution time in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"module"},
	)
	builtinExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "builtin_executions_total",
			Help:      "Built-in command executions by result.",
		},
		[]string{"command", "result"},
	)
	snapshotOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "operations_total",
			Help:      "Snapshot loads and saves by result.",
		},
		[]string{"op", "result"},
	)
	webhookRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "requests_total",
			Help:      "Inbound webhook HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	webhookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "request_duration_seconds",
			Help:      "Inbound webhook request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			updatesFetched,
			fetchErrors,
			sequencerDecisions,
			highWaterMark,
			moduleExecutions,
			moduleDuration,
			builtinExecutions,
			snapshotOps,
			webhookRequests,
			webhookDuration,
		)
	})
}

func RecordFetch(transport string, count int, err error) {
	RegisterMetrics()
	if err != nil {
		fetchErrors.WithLabelValues(transport).Inc()
		return
	}
	updatesFetched.WithLabelValues(transport).Add(float64(count))
}

func RecordSequencer(decision string, mark int64) {
	RegisterMetrics()
	sequencerDecisions.WithLabelValues(decision).Inc()
	highWaterMark.Set(float64(mark))
}

func SetHighWaterMark(mark int64) {
	RegisterMetrics()
	highWaterMark.Set(float64(mark))
}

func RecordModuleExecution(module string, duration time.Duration, err error) {
	RegisterMetrics()
	result := "ok"
	if err != nil {
		result = "error"
	}
	moduleExecutions.WithLabelValues(module, result).Inc()
	moduleDuration.WithLabelValues(module).Observe(duration.Seconds())
}

func RecordBuiltin(command string, err error) {
	RegisterMetrics()
	result := "ok"
	if err != nil {
		result = "error"
	}
	builtinExecutions.WithLabelValues(command, result).Inc()
}

func RecordSnapshot(op string, err error) {
	RegisterMetrics()
	result := "ok"
	if err != nil {
		result = "error"
	}
	snapshotOps.WithLabelValues(op, result).Inc()
}

func RequestMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		RegisterMetrics()
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		webhookRequests.WithLabelValues(c.Request.Method, path, status).Inc()
		webhookDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}
