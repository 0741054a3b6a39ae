package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

type DBMetrics struct {
	QueryDuration *prometheus.HistogramVec
}

type BusinessMetrics struct {
	PaymentsTotal         *prometheus.CounterVec
	ClassificationsTotal  *prometheus.CounterVec
	ClassificationChanges *prometheus.CounterVec
	BatchRunDuration      *prometheus.HistogramVec
	EventsPublishedTotal  *prometheus.CounterVec
}

var (
	HTTP = HTTPMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pawn_ledger_http_requests_total",
				Help: "Total number of HTTP requests received.",
			},
			[]string{"method", "path", "code"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pawn_ledger_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "code"},
		),
	}

	DB = DBMetrics{
		QueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pawn_ledger_db_query_duration_seconds",
				Help:    "Histogram of database query latencies.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"query_name", "status"},
		),
	}

	Business = BusinessMetrics{
		PaymentsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pawn_ledger_payments_total",
				Help: "Installment payments attempted, by outcome.",
			},
			[]string{"status"},
		),
		ClassificationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pawn_ledger_classifications_total",
				Help: "Loan status and installment health classifications computed, by kind and flag.",
			},
			[]string{"kind", "flag"},
		),
		ClassificationChanges: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pawn_ledger_classification_changes_total",
				Help: "Persisted classification changes, by kind and new flag.",
			},
			[]string{"kind", "flag"},
		),
		BatchRunDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pawn_ledger_batch_run_duration_seconds",
				Help:    "Duration of batch job runs.",
				Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800},
			},
			[]string{"job", "status"},
		),
		EventsPublishedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pawn_ledger_events_published_total",
				Help: "Events published to the message broker, by routing key and outcome.",
			},
			[]string{"routing_key", "status"},
		),
	}
)

func RecordHTTPRequest(method, path, code string, duration time.Duration) {
	HTTP.RequestsTotal.WithLabelValues(method, path, code).Inc()
	HTTP.RequestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
}

func RecordDBQuery(queryName, status string, duration time.Duration) {
	DB.QueryDuration.WithLabelValues(queryName, status).Observe(duration.Seconds())
}

func RecordPayment(status string) {
	Business.PaymentsTotal.WithLabelValues(status).Inc()
}

func RecordClassification(kind, flag string) {
	Business.ClassificationsTotal.WithLabelValues(kind, flag).Inc()
}

func RecordClassificationChange(kind, flag string) {
	Business.ClassificationChanges.WithLabelValues(kind, flag).Inc()
}

func RecordBatchRun(job, status string, duration time.Duration) {
	Business.BatchRunDuration.WithLabelValues(job, status).Observe(duration.Seconds())
}

func RecordEventPublished(routingKey, status string) {
	Business.EventsPublishedTotal.WithLabelValues(routingKey, status).Inc()
}
