package scheduler

import (
	"context"
	"time"

	auditdomain "github.com/smallbiznis/mystictxt/internal/audit/domain"
	obscontext "github.com/smallbiznis/mystictxt/internal/observability/context"
	obslogger "github.com/smallbiznis/mystictxt/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/mystictxt/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun tallies one execution of a sweeper job for its closing log line.
type jobRun struct {
	job       string
	runID     string
	batchSize int
	startedAt time.Time
	processed int
	failures  int
}

type jobRunKey struct{}

func (r *jobRun) add(n int) {
	if n > 0 {
		r.processed += n
	}
}

// beginRun attaches a jobRun to ctx. When ctx already carries one (a job
// called through runJob) it is reused and done is a no-op, so each run logs once.
func (s *Scheduler) beginRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun, func()) {
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok {
		return ctx, run, func() {}
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		batchSize: batchSize,
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	ctx = obscontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")

	s.logger(ctx).Debug("scheduler.job.start",
		zap.String("job", job),
		zap.String("run_id", run.runID),
		zap.Int("batch_size", batchSize),
	)
	return ctx, run, func() { s.finishRun(ctx, run) }
}

func (s *Scheduler) finishRun(ctx context.Context, run *jobRun) {
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processed),
		zap.Int("error_count", run.failures),
	}
	log := s.logger(ctx)
	switch {
	case run.failures > 0:
		log.Warn("scheduler.job.finish", fields...)
	case run.processed > 0:
		log.Info("scheduler.job.finish", fields...)
	default:
		log.Debug("scheduler.job.finish", fields...)
	}
}

// jobFailed logs err against the run with its classified reason.
func (s *Scheduler) jobFailed(ctx context.Context, run *jobRun, msg string, err error, fields ...zap.Field) {
	run.failures++
	failure := obsmetrics.ClassifyJobFailure(err)
	fields = append([]zap.Field{
		zap.String("job", run.job),
		zap.String("reason", failure.Reason),
		zap.Bool("retryable", failure.Retryable),
		zap.Error(err),
	}, fields...)
	s.logger(ctx).Error(msg, fields...)
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}
