package scheduler

import (
	"context"

	obsmetrics "github.com/smallbiznis/mystictxt/internal/observability/metrics"
	"go.uber.org/zap"
)

// ExpireSessionsJob ends overdue active sessions in batches until none remain
// or the batch budget for this tick is spent.
func (s *Scheduler) ExpireSessionsJob(ctx context.Context) error {
	ctx, run, done := s.beginRun(ctx, JobExpireSessions, s.cfg.BatchSize)
	defer done()
	schedMetrics := obsmetrics.Scheduler()

	for batch := 0; batch < s.cfg.MaxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		expired, err := s.chatSvc.ExpireOverdueSessions(ctx, s.cfg.BatchSize)
		if err != nil {
			s.jobFailed(ctx, run, "scheduler.expire_sessions.failed", err, zap.Int("batch", batch))
			return err
		}
		run.add(expired)
		schedMetrics.Swept(JobExpireSessions, obsmetrics.ResourceChatSessions, expired)
		if expired < s.cfg.BatchSize {
			return nil
		}
	}
	return nil
}

// ReconcileWalletsJob reports wallets whose balance differs from their ledger sum.
// Mismatches are never corrected automatically.
func (s *Scheduler) ReconcileWalletsJob(ctx context.Context) error {
	ctx, run, done := s.beginRun(ctx, JobReconcileWallet, s.cfg.ReconcileCap)
	defer done()

	mismatches, err := s.walletSvc.FindInconsistentWallets(ctx, s.cfg.ReconcileCap)
	if err != nil {
		s.jobFailed(ctx, run, "scheduler.reconcile_wallets.failed", err)
		return err
	}

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.LedgerMismatches(len(mismatches))
	schedMetrics.Swept(JobReconcileWallet, obsmetrics.ResourceWallets, len(mismatches))
	run.add(len(mismatches))

	for _, mismatch := range mismatches {
		s.logger(ctx).Error("wallet.ledger_mismatch",
			zap.Int64("wallet_id", mismatch.WalletID),
			zap.String("customer_id", mismatch.CustomerID),
			zap.Int64("balance_cents", mismatch.BalanceCents),
			zap.Int64("ledger_cents", mismatch.LedgerCents),
		)
	}
	return nil
}
