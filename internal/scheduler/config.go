package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/mystictxt/internal/config"
)

const (
	JobExpireSessions  = "chat.expire_sessions"
	JobReconcileWallet = "wallet.reconcile"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval  time.Duration
	BatchSize    int
	JobTimeout   time.Duration
	LockTTL      time.Duration
	MaxBatches   int
	EnabledJobs  []string
	ReconcileCap int
}

func DefaultConfig() Config {
	return Config{
		RunInterval:  15 * time.Second,
		BatchSize:    100,
		JobTimeout:   30 * time.Second,
		LockTTL:      30 * time.Second,
		MaxBatches:   20,
		ReconcileCap: 100,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.MaxBatches <= 0 {
		c.MaxBatches = defaults.MaxBatches
	}
	if c.ReconcileCap <= 0 {
		c.ReconcileCap = defaults.ReconcileCap
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	lockTTL := time.Duration(cfg.RateLimit.SweepLockTTLSeconds) * time.Second
	return Config{
		RunInterval: cfg.Scheduler.RunInterval,
		BatchSize:   cfg.Scheduler.BatchSize,
		LockTTL:     lockTTL,
		EnabledJobs: normalizeJobs(cfg.Scheduler.Jobs),
	}.withDefaults()
}

func normalizeJobs(jobs []string) []string {
	out := make([]string, 0, len(jobs))
	for _, job := range jobs {
		if trimmed := strings.TrimSpace(job); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
