package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	chatdomain "github.com/smallbiznis/mystictxt/internal/chat/domain"
	"github.com/smallbiznis/mystictxt/internal/clock"
	obsmetrics "github.com/smallbiznis/mystictxt/internal/observability/metrics"
	"github.com/smallbiznis/mystictxt/internal/ratelimit"
	walletdomain "github.com/smallbiznis/mystictxt/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

const (
	lockExpireSessions = "mystictxt:scheduler:" + JobExpireSessions
	lockReconcile      = "mystictxt:scheduler:" + JobReconcileWallet
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	GenID     *snowflake.Node
	ChatSvc   chatdomain.Service
	WalletSvc walletdomain.Service
	Locker    *ratelimit.Locker `optional:"true"`
	Config    Config            `optional:"true"`
}

type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	chatSvc   chatdomain.Service
	walletSvc walletdomain.Service
	locker    *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.GenID == nil || p.ChatSvc == nil || p.WalletSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		clock:     p.Clock,
		chatSvc:   p.ChatSvc,
		walletSvc: p.WalletSvc,
		locker:    p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, done := s.beginRun(ctx, name, batchSize)
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.JobStarted(name)

	err := fn(ctx)
	schedMetrics.JobFinished(name, s.clock.Now().Sub(start))
	if err != nil && run.failures == 0 {
		run.failures++
	}
	done()

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ratelimit.ErrLockHeld):
		// Another replica holds the job; this tick skips it.
		schedMetrics.Deferred(name, obsmetrics.DeferredLockHeld)
		log.Debug("job skipped, lock held elsewhere")
		return nil
	}

	schedMetrics.JobFailed(name, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		// The next tick picks up the remaining work.
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Lock string
		Run  func(context.Context) error
	}{
		{JobExpireSessions, lockExpireSessions, s.ExpireSessionsJob},
		{JobReconcileWallet, lockReconcile, s.ReconcileWalletsJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		job := job
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.BatchSize, s.cfg.JobTimeout, func(ctx context.Context) error {
			return s.locker.WithLock(ctx, job.Lock, s.cfg.LockTTL, job.Run)
		}))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		schedMetrics.LoopLag(s.clock.Now().Sub(nextRun))
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
