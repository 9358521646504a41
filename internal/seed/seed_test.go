package seed

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/mystictxt/internal/clock"
	"github.com/smallbiznis/mystictxt/internal/config"
	walletdomain "github.com/smallbiznis/mystictxt/internal/wallet/domain"
	"github.com/smallbiznis/mystictxt/internal/wallet/repository"
	walletservice "github.com/smallbiznis/mystictxt/internal/wallet/service"
	"github.com/smallbiznis/mystictxt/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newWalletService(t *testing.T) walletdomain.Service {
	t.Helper()
	return walletservice.NewService(walletservice.Params{
		DB:      dbtest.Open(t),
		Log:     zap.NewNop(),
		Clock:   clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		Repo:    repository.Provide(),
		Pricing: config.NewStaticPricingHolder(config.DefaultPricingConfig()),
	})
}

func TestEnsureDemoWalletsGrantsOnce(t *testing.T) {
	svc := newWalletService(t)
	ctx := context.Background()
	customers := []string{"demo@mystictxt.local", " ", "second@mystictxt.local"}

	require.NoError(t, EnsureDemoWallets(ctx, svc, zap.NewNop(), customers, 2500))
	require.NoError(t, EnsureDemoWallets(ctx, svc, zap.NewNop(), customers, 2500))

	for _, customerID := range []string{"demo@mystictxt.local", "second@mystictxt.local"} {
		wallet, err := svc.GetOrCreateWallet(ctx, customerID)
		require.NoError(t, err)
		assert.EqualValues(t, 2500, wallet.BalanceCents, customerID)

		history, err := svc.ListTransactions(ctx, wallet.ID, 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, demoGrantNote, history[0].Description)
	}
}

func TestEnsureDemoWalletsSkipsUsedWallets(t *testing.T) {
	svc := newWalletService(t)
	ctx := context.Background()

	_, err := svc.AddCredits(ctx, "ada@example.com", 1000)
	require.NoError(t, err)

	require.NoError(t, EnsureDemoWallets(ctx, svc, nil, []string{"ada@example.com"}, 2500))

	wallet, err := svc.GetOrCreateWallet(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.EqualValues(t, 1000, wallet.BalanceCents)
}

func TestRun(t *testing.T) {
	t.Run("disabled is a no-op", func(t *testing.T) {
		require.NoError(t, Run(config.Config{}, nil, zap.NewNop()))
	})

	t.Run("refused in production", func(t *testing.T) {
		cfg := config.Config{
			Environment: "production",
			Bootstrap:   config.BootstrapConfig{SeedDemoWallets: true},
		}
		assert.ErrorIs(t, Run(cfg, newWalletService(t), zap.NewNop()), ErrProductionSeed)
	})

	t.Run("defaults to the demo customer", func(t *testing.T) {
		svc := newWalletService(t)
		cfg := config.Config{
			Environment: "development",
			Bootstrap:   config.BootstrapConfig{SeedDemoWallets: true, DemoCreditCents: 1000},
		}
		require.NoError(t, Run(cfg, svc, zap.NewNop()))

		wallet, err := svc.GetOrCreateWallet(context.Background(), defaultDemoCustomer)
		require.NoError(t, err)
		assert.EqualValues(t, 1000, wallet.BalanceCents)
	})
}
