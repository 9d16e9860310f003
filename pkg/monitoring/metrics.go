package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// AnswerSubmissions считает исходы приёма ответов: unchanged, scheduled, fallback
	AnswerSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answer_sync_submissions_total",
			Help: "Answer submissions by ingestion outcome",
		},
		[]string{"outcome"},
	)

	// ReconcileFirings считает срабатывания отложенной сверки: settled, rescheduled, missing, error
	ReconcileFirings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answer_sync_reconcile_total",
			Help: "Reconciliation snapshot firings by result",
		},
		[]string{"result"},
	)

	// QueueDropped считает записи, отброшенные при переполнении очереди
	QueueDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answer_sync_dropped_total",
			Help: "Records dropped because a bounded queue was full",
		},
		[]string{"queue"},
	)

	// OverflowDirectWrites считает записи, ушедшие в БД напрямую из-за переполнения
	OverflowDirectWrites = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "answer_sync_overflow_direct_total",
			Help: "Records written directly because the batch queue was full",
		},
	)

	// LeaseSkips считает записи, пропущенные из-за занятой аренды
	LeaseSkips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "answer_sync_lease_skips_total",
			Help: "Batch entries skipped because another writer held the lease",
		},
	)

	// BatchFlushSize - размер пачки после дедупликации
	BatchFlushSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "answer_sync_batch_flush_size",
			Help:    "Deduplicated batch size per flush",
			Buckets: []float64{1, 5, 10, 20, 50, 100, 500},
		},
	)

	// ExchangeOutcomes считает результаты обменов: success, busy, insufficient_points, failed
	ExchangeOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "point_exchange_total",
			Help: "Point exchanges by final status",
		},
		[]string{"status"},
	)
)

// Init регистрирует метрики в реестре по умолчанию
func Init() {
	prometheus.MustRegister(
		RequestCounter,
		RequestDuration,
		AnswerSubmissions,
		ReconcileFirings,
		QueueDropped,
		OverflowDirectWrites,
		LeaseSkips,
		BatchFlushSize,
		ExchangeOutcomes,
	)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
