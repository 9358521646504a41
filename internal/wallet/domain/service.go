package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/mystictxt/internal/auth"
	"gorm.io/gorm"
)

// Ledger applies balance changes inside a caller-owned transaction.
type Ledger interface {
	GetOrCreate(ctx context.Context, tx *gorm.DB, customerID string) (*Wallet, error)
	Apply(ctx context.Context, tx *gorm.DB, walletID int64, entry Entry) (*Wallet, *WalletTransaction, error)
}

type Service interface {
	Ledger

	GetOrCreateWallet(ctx context.Context, customerID string) (*Wallet, error)
	GetWallet(ctx context.Context, walletID int64) (*Wallet, error)
	AdjustBalance(ctx context.Context, walletID int64, entry Entry) (*Wallet, error)
	ListTransactions(ctx context.Context, walletID int64, limit int) ([]WalletTransaction, error)
	AddCredits(ctx context.Context, customerID string, packageCents int64) (*Wallet, error)
	GrantCredits(ctx context.Context, actor auth.Actor, customerID string, amountCents int64, note string) (*Wallet, error)
	FindInconsistentWallets(ctx context.Context, limit int) ([]Inconsistency, error)
}

// Inconsistency is a wallet whose balance disagrees with its transaction sum.
type Inconsistency struct {
	WalletID     int64  `json:"wallet_id"`
	CustomerID   string `json:"customer_id"`
	BalanceCents int64  `json:"balance_cents"`
	LedgerCents  int64  `json:"ledger_cents"`
}

type Repository interface {
	FindByCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*Wallet, error)
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Wallet, error)
	InsertIfAbsent(ctx context.Context, db *gorm.DB, wallet *Wallet) error
	Credit(ctx context.Context, db *gorm.DB, id int64, amountCents int64, now time.Time) (bool, error)
	DebitIfSufficient(ctx context.Context, db *gorm.DB, id int64, amountCents int64, now time.Time) (bool, error)
	InsertTransaction(ctx context.Context, db *gorm.DB, txn *WalletTransaction) error
	ListTransactions(ctx context.Context, db *gorm.DB, walletID int64, limit int) ([]WalletTransaction, error)
	FindInconsistent(ctx context.Context, db *gorm.DB, limit int) ([]Inconsistency, error)
}
