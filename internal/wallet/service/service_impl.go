package service

import (
	"context"
	"fmt"
	"strings"

	auditdomain "github.com/smallbiznis/mystictxt/internal/audit/domain"
	"github.com/smallbiznis/mystictxt/internal/auth"
	"github.com/smallbiznis/mystictxt/internal/authorization"
	"github.com/smallbiznis/mystictxt/internal/clock"
	"github.com/smallbiznis/mystictxt/internal/config"
	"github.com/smallbiznis/mystictxt/internal/observability/metrics"
	"github.com/smallbiznis/mystictxt/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxGrantCents           = 1_000_000
	defaultTransactionLimit = 50
	maxTransactionLimit     = 500
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     domain.Repository
	Pricing  *config.PricingHolder
	AuditSvc auditdomain.Service `optional:"true"`
	Metrics  *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	pricing  *config.PricingHolder
	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("wallet.service"),
		clock:    clk,
		repo:     p.Repo,
		pricing:  p.Pricing,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

// GetOrCreate returns the customer's wallet, inserting an empty one on first use.
// Concurrent first calls converge on the same row through the unique customer index.
func (s *Service) GetOrCreate(ctx context.Context, tx *gorm.DB, customerID string) (*domain.Wallet, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, domain.ErrInvalidCustomer
	}

	wallet, err := s.repo.FindByCustomerID(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}
	if wallet != nil {
		return wallet, nil
	}

	now := s.clock.Now().UTC()
	if err := s.repo.InsertIfAbsent(ctx, tx, &domain.Wallet{
		CustomerID: customerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		return nil, err
	}

	wallet, err = s.repo.FindByCustomerID(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, domain.ErrWalletNotFound
	}
	return wallet, nil
}

// Apply changes the balance and appends the matching transaction on tx.
// Debits never take the balance below zero.
func (s *Service) Apply(ctx context.Context, tx *gorm.DB, walletID int64, entry domain.Entry) (*domain.Wallet, *domain.WalletTransaction, error) {
	if walletID <= 0 {
		return nil, nil, domain.ErrInvalidWallet
	}
	if err := validateEntry(entry); err != nil {
		return nil, nil, err
	}

	now := s.clock.Now().UTC()
	switch entry.Type {
	case domain.TransactionTypeCredit:
		ok, err := s.repo.Credit(ctx, tx, walletID, entry.AmountCents, now)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, domain.ErrWalletNotFound
		}
	case domain.TransactionTypeDebit:
		required := -entry.AmountCents
		ok, err := s.repo.DebitIfSufficient(ctx, tx, walletID, required, now)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			current, err := s.repo.FindByID(ctx, tx, walletID)
			if err != nil {
				return nil, nil, err
			}
			if current == nil {
				return nil, nil, domain.ErrWalletNotFound
			}
			s.metrics.RecordInsufficientCredits(ctx)
			return nil, nil, &domain.InsufficientCreditsError{Required: required, Available: current.BalanceCents}
		}
	}

	txn := &domain.WalletTransaction{
		WalletID:    walletID,
		AmountCents: entry.AmountCents,
		Type:        entry.Type,
		Description: strings.TrimSpace(entry.Description),
		CreatedAt:   now,
	}
	if err := s.repo.InsertTransaction(ctx, tx, txn); err != nil {
		return nil, nil, err
	}

	wallet, err := s.repo.FindByID(ctx, tx, walletID)
	if err != nil {
		return nil, nil, err
	}
	if wallet == nil {
		return nil, nil, domain.ErrWalletNotFound
	}

	s.metrics.RecordWalletEntry(ctx, string(entry.Type), entry.AmountCents)
	return wallet, txn, nil
}

func (s *Service) GetOrCreateWallet(ctx context.Context, customerID string) (*domain.Wallet, error) {
	var wallet *domain.Wallet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		wallet, err = s.GetOrCreate(ctx, tx, customerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

func (s *Service) GetWallet(ctx context.Context, walletID int64) (*domain.Wallet, error) {
	if walletID <= 0 {
		return nil, domain.ErrInvalidWallet
	}
	wallet, err := s.repo.FindByID(ctx, s.db, walletID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, domain.ErrWalletNotFound
	}
	return wallet, nil
}

func (s *Service) AdjustBalance(ctx context.Context, walletID int64, entry domain.Entry) (*domain.Wallet, error) {
	var wallet *domain.Wallet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		wallet, _, err = s.Apply(ctx, tx, walletID, entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

func (s *Service) ListTransactions(ctx context.Context, walletID int64, limit int) ([]domain.WalletTransaction, error) {
	if walletID <= 0 {
		return nil, domain.ErrInvalidWallet
	}
	if limit <= 0 {
		limit = defaultTransactionLimit
	}
	if limit > maxTransactionLimit {
		limit = maxTransactionLimit
	}

	wallet, err := s.repo.FindByID(ctx, s.db, walletID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, domain.ErrWalletNotFound
	}
	return s.repo.ListTransactions(ctx, s.db, walletID, limit)
}

// AddCredits records the purchase of one of the configured credit packages.
func (s *Service) AddCredits(ctx context.Context, customerID string, packageCents int64) (*domain.Wallet, error) {
	if !s.pricingConfig().HasCreditPackage(packageCents) {
		return nil, domain.ErrInvalidPackage
	}

	var wallet *domain.Wallet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.GetOrCreate(ctx, tx, customerID)
		if err != nil {
			return err
		}
		wallet, _, err = s.Apply(ctx, tx, current.ID, domain.Entry{
			AmountCents: packageCents,
			Type:        domain.TransactionTypeCredit,
			Description: fmt.Sprintf("Added %s credits", domain.FormatCents(packageCents)),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, auth.RoleCustomer, wallet.CustomerID, auditdomain.ActionWalletCreditsAdded, wallet, map[string]any{
		"amount_cents": packageCents,
	})
	return wallet, nil
}

// GrantCredits lets an administrator credit any customer.
func (s *Service) GrantCredits(ctx context.Context, actor auth.Actor, customerID string, amountCents int64, note string) (*domain.Wallet, error) {
	if actor.Role != auth.RoleAdmin {
		return nil, authorization.ErrForbidden
	}
	if amountCents <= 0 || amountCents > maxGrantCents {
		return nil, domain.ErrInvalidAmount
	}

	description := strings.TrimSpace(note)
	if description == "" {
		description = fmt.Sprintf("Granted %s credits", domain.FormatCents(amountCents))
	}

	var wallet *domain.Wallet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.GetOrCreate(ctx, tx, customerID)
		if err != nil {
			return err
		}
		wallet, _, err = s.Apply(ctx, tx, current.ID, domain.Entry{
			AmountCents: amountCents,
			Type:        domain.TransactionTypeCredit,
			Description: description,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, actor.Role, actor.ID, auditdomain.ActionWalletCreditGranted, wallet, map[string]any{
		"amount_cents": amountCents,
		"note":         strings.TrimSpace(note),
	})
	return wallet, nil
}

func (s *Service) FindInconsistentWallets(ctx context.Context, limit int) ([]domain.Inconsistency, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.FindInconsistent(ctx, s.db, limit)
}

func (s *Service) pricingConfig() config.PricingConfig {
	if s.pricing == nil {
		return config.DefaultPricingConfig()
	}
	return s.pricing.Get()
}

func (s *Service) audit(ctx context.Context, role auth.Role, actorID string, action string, wallet *domain.Wallet, metadata map[string]any) {
	if s.auditSvc == nil || wallet == nil {
		return
	}
	targetID := fmt.Sprintf("%d", wallet.ID)
	metadata["customer_id"] = wallet.CustomerID
	metadata["balance_cents"] = wallet.BalanceCents
	if err := s.auditSvc.AuditLog(ctx, string(role), &actorID, action, "wallet", &targetID, metadata); err != nil {
		s.log.Warn("wallet audit failed", zap.String("action", action), zap.Error(err))
	}
}

func validateEntry(entry domain.Entry) error {
	if !entry.Type.Valid() {
		return domain.ErrInvalidTransactionType
	}
	switch {
	case entry.AmountCents == 0:
		return domain.ErrInvalidAmount
	case entry.Type == domain.TransactionTypeCredit && entry.AmountCents < 0:
		return domain.ErrInvalidAmount
	case entry.Type == domain.TransactionTypeDebit && entry.AmountCents > 0:
		return domain.ErrInvalidAmount
	}
	return nil
}
