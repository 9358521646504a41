package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/mystictxt/internal/authorization"
	obslogger "github.com/smallbiznis/mystictxt/internal/observability/logger"
	"gorm.io/gorm"
)

// Failure reasons used as the "reason" label. Keep the set small.
const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonForbidden            = "forbidden"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonDB                   = "db"
	JobReasonUnknown              = "unknown"

	DeferredLockHeld = "lock_held"
)

const (
	ResourceChatSessions = "chat_sessions"
	ResourceWallets      = "wallets"
)

// JobFailure is the classified form of a job error.
type JobFailure struct {
	Reason    string
	Retryable bool
}

// ClassifyJobFailure maps an error returned by a sweeper job to a label-safe reason.
func ClassifyJobFailure(err error) JobFailure {
	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return JobFailure{Reason: JobReasonUnknown}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return JobFailure{Reason: JobReasonDeadlineExceeded, Retryable: true}
	case errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, authorization.ErrInvalidObject),
		errors.Is(err, authorization.ErrInvalidAction):
		return JobFailure{Reason: JobReasonForbidden}
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return JobFailure{Reason: JobReasonUniqueViolation}
	case errors.As(err, &pgErr):
		switch pgErr.Code {
		case "55P03":
			return JobFailure{Reason: JobReasonDBLockTimeout, Retryable: true}
		case "40001", "40P01":
			return JobFailure{Reason: JobReasonSerializationFailure, Retryable: true}
		case "23505":
			return JobFailure{Reason: JobReasonUniqueViolation}
		}
		return JobFailure{Reason: JobReasonDB, Retryable: true}
	case obslogger.IsLockContention(err):
		return JobFailure{Reason: JobReasonDBLockTimeout, Retryable: true}
	case errors.Is(err, gorm.ErrInvalidDB), errors.Is(err, gorm.ErrInvalidTransaction):
		return JobFailure{Reason: JobReasonDB, Retryable: true}
	}
	return JobFailure{Reason: JobReasonUnknown}
}

// SchedulerMetrics holds the sweeper's prometheus collectors.
type SchedulerMetrics struct {
	runs             *prometheus.CounterVec
	duration         *prometheus.HistogramVec
	timeouts         *prometheus.CounterVec
	failures         *prometheus.CounterVec
	swept            *prometheus.CounterVec
	deferred         *prometheus.CounterVec
	ledgerMismatches prometheus.Gauge
	loopLag          prometheus.Histogram
}

var (
	schedulerOnce    sync.Once
	schedulerMetrics *SchedulerMetrics
)

// Scheduler returns the process-wide collectors, registering them on first use.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig is Scheduler with service and env labels taken from cfg.
// Only the first call's cfg is used.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

func ResetSchedulerMetricsForTest() {
	schedulerOnce = sync.Once{}
	schedulerMetrics = nil
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := prometheus.Labels{
		"service": labelOr(cfg.ServiceName, "mystictxt"),
		"env":     labelOr(cfg.Environment, "unknown"),
	}
	counter := func(name, help string, keys ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help, ConstLabels: labels}, keys)
	}
	latency := []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

	m := &SchedulerMetrics{
		runs:     counter("mystictxt_scheduler_job_runs_total", "Sweeper job runs.", "job"),
		timeouts: counter("mystictxt_scheduler_job_timeouts_total", "Sweeper jobs cut off by their timeout.", "job"),
		failures: counter("mystictxt_scheduler_job_errors_total", "Sweeper job failures by reason.", "job", "reason"),
		swept:    counter("mystictxt_scheduler_batch_processed_total", "Rows handled by sweeper jobs.", "job", "resource"),
		deferred: counter("mystictxt_scheduler_batch_deferred_total", "Sweeper runs skipped on this replica.", "job", "reason"),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "mystictxt_scheduler_job_duration_seconds",
			Help:        "Sweeper job latency.",
			Buckets:     latency,
			ConstLabels: labels,
		}, []string{"job"}),
		ledgerMismatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "mystictxt_wallet_ledger_mismatches",
			Help:        "Wallets whose balance disagreed with their transaction sum at the last reconciliation.",
			ConstLabels: labels,
		}),
		loopLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "mystictxt_scheduler_runloop_lag_seconds",
			Help:        "How late a sweeper tick started.",
			Buckets:     latency,
			ConstLabels: labels,
		}),
	}
	registerer.MustRegister(m.runs, m.duration, m.timeouts, m.failures, m.swept, m.deferred, m.ledgerMismatches, m.loopLag)
	return m
}

func labelOr(value, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fallback
}

// JobStarted counts one run of job.
func (m *SchedulerMetrics) JobStarted(job string) {
	if m != nil {
		m.runs.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) JobFinished(job string, took time.Duration) {
	if m != nil {
		m.duration.WithLabelValues(job).Observe(took.Seconds())
	}
}

// JobFailed records a failure. Timeouts also bump the timeout counter.
func (m *SchedulerMetrics) JobFailed(job string, err error) {
	if m == nil || err == nil {
		return
	}
	failure := ClassifyJobFailure(err)
	if failure.Reason == JobReasonDeadlineExceeded {
		m.timeouts.WithLabelValues(job).Inc()
	}
	m.failures.WithLabelValues(job, failure.Reason).Inc()
}

// Swept adds count rows of resource handled by job.
func (m *SchedulerMetrics) Swept(job, resource string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.swept.WithLabelValues(job, resource).Add(float64(count))
}

func (m *SchedulerMetrics) Deferred(job, reason string) {
	if m != nil {
		m.deferred.WithLabelValues(job, reason).Inc()
	}
}

// LedgerMismatches replaces the gauge with the latest reconciliation result.
func (m *SchedulerMetrics) LedgerMismatches(count int) {
	if m != nil {
		m.ledgerMismatches.Set(float64(count))
	}
}

func (m *SchedulerMetrics) LoopLag(lag time.Duration) {
	if m == nil || lag <= 0 {
		return
	}
	m.loopLag.Observe(lag.Seconds())
}
