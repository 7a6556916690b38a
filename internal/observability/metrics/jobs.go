package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/adbilling/pkg/errs"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonForbidden            = "forbidden"
	JobReasonValidation           = "validation"
	JobReasonLockHeld             = "lock_held"
	JobReasonUnknown              = "unknown"
)

const (
	JobGenerateInvoices = "generate_invoices"
	JobGenerateEarnings = "generate_earnings"
)

// JobMetrics captures batch run health for invoice and earnings generation.
type JobMetrics struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	errors    *prometheus.CounterVec
	processed *prometheus.CounterVec
	skipped   *prometheus.CounterVec
}

var (
	jobMetricsOnce sync.Once
	jobMetrics     *JobMetrics
)

// Jobs returns the process-wide job metrics registered on the default registry.
func Jobs() *JobMetrics {
	return JobsWithConfig(Config{})
}

func JobsWithConfig(cfg Config) *JobMetrics {
	jobMetricsOnce.Do(func() {
		jobMetrics = NewJobMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return jobMetrics
}

func NewJobMetrics(registerer prometheus.Registerer, cfg Config) *JobMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabelsFor(cfg)

	m := &JobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "adbilling_job_runs_total",
			Help:        "Billing batch runs by job.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "adbilling_job_duration_seconds",
			Help:        "Billing batch run latency.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
			ConstLabels: constLabels,
		}, []string{"job"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "adbilling_job_errors_total",
			Help:        "Billing batch errors by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"job", "reason"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "adbilling_job_items_processed_total",
			Help:        "Entities written by a billing batch run.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "adbilling_job_items_skipped_total",
			Help:        "Entities left untouched by a billing batch run.",
			ConstLabels: constLabels,
		}, []string{"job", "reason"}),
	}

	registerer.MustRegister(m.runs, m.duration, m.errors, m.processed, m.skipped)
	return m
}

func (m *JobMetrics) IncRun(job string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job).Inc()
}

func (m *JobMetrics) ObserveDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *JobMetrics) IncError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.errors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

func (m *JobMetrics) AddProcessed(job string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.processed.WithLabelValues(job).Add(float64(n))
}

func (m *JobMetrics) AddSkipped(job, reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.skipped.WithLabelValues(job, reason).Add(float64(n))
}

// ErrJobLockHeld is reported when another run already holds the job lock.
var ErrJobLockHeld = errs.Conflict("job_lock_held")

// ClassifyJobReason maps batch errors to low-cardinality reasons.
func ClassifyJobReason(err error) string {
	switch {
	case err == nil:
		return JobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return JobReasonDeadlineExceeded
	case errors.Is(err, ErrJobLockHeld):
		return JobReasonLockHeld
	case errors.Is(err, errs.ErrForbidden):
		return JobReasonForbidden
	case errors.Is(err, errs.ErrValidation):
		return JobReasonValidation
	case hasPGCode(err, "55P03"):
		return JobReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return JobReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return JobReasonUniqueViolation
	default:
		return JobReasonUnknown
	}
}

// IsRetryable reports whether a failed entity is worth retrying in the same run.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return hasPGCode(err, "40001") || hasPGCode(err, "40P01") || hasPGCode(err, "55P03")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
