package seed

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/mystictxt/internal/auth"
	"github.com/smallbiznis/mystictxt/internal/config"
	walletdomain "github.com/smallbiznis/mystictxt/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultDemoCustomer = "demo@mystictxt.local"
	bootstrapActorID    = "bootstrap"
	demoGrantNote       = "Demo credits"
)

var ErrProductionSeed = errors.New("demo seeding is disabled in production")

var Module = fx.Module("seed",
	fx.Invoke(Run),
)

// Run seeds demo wallets when bootstrap seeding is enabled.
func Run(cfg config.Config, walletSvc walletdomain.Service, log *zap.Logger) error {
	if !cfg.Bootstrap.SeedDemoWallets {
		return nil
	}
	if cfg.IsProduction() {
		return ErrProductionSeed
	}

	customers := cfg.Bootstrap.DemoCustomers
	if len(customers) == 0 {
		customers = []string{defaultDemoCustomer}
	}
	return EnsureDemoWallets(context.Background(), walletSvc, log, customers, cfg.Bootstrap.DemoCreditCents)
}

// EnsureDemoWallets grants amountCents to each customer whose wallet has no
// ledger history yet, so restarts do not grant twice.
func EnsureDemoWallets(ctx context.Context, walletSvc walletdomain.Service, log *zap.Logger, customers []string, amountCents int64) error {
	if walletSvc == nil {
		return errors.New("seed wallet service is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("seed")

	actor := auth.Actor{ID: bootstrapActorID, Role: auth.RoleAdmin}
	for _, raw := range customers {
		customerID := strings.TrimSpace(raw)
		if customerID == "" {
			continue
		}

		wallet, err := walletSvc.GetOrCreateWallet(ctx, customerID)
		if err != nil {
			return err
		}
		history, err := walletSvc.ListTransactions(ctx, wallet.ID, 1)
		if err != nil {
			return err
		}
		if len(history) > 0 {
			log.Debug("demo wallet already seeded", zap.String("customer_id", customerID))
			continue
		}

		wallet, err = walletSvc.GrantCredits(ctx, actor, customerID, amountCents, demoGrantNote)
		if err != nil {
			return err
		}
		log.Info("seeded demo wallet",
			zap.String("customer_id", customerID),
			zap.Int64("balance_cents", wallet.BalanceCents),
		)
	}
	return nil
}
