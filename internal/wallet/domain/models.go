package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeDebit  TransactionType = "debit"
)

func (t TransactionType) Valid() bool {
	return t == TransactionTypeCredit || t == TransactionTypeDebit
}

// Wallet is a customer's prepaid credit balance.
type Wallet struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CustomerID   string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"customer_id"`
	BalanceCents int64     `gorm:"not null;default:0" json:"balance_cents"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

func (Wallet) TableName() string { return "wallets" }

// WalletTransaction is an immutable ledger line. AmountCents is signed.
type WalletTransaction struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	WalletID    int64           `gorm:"not null;index" json:"wallet_id"`
	AmountCents int64           `gorm:"not null" json:"amount_cents"`
	Type        TransactionType `gorm:"type:varchar(16);not null" json:"type"`
	Description string          `gorm:"type:text;not null" json:"description"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }

// Entry describes a balance change applied through the ledger.
type Entry struct {
	AmountCents int64
	Type        TransactionType
	Description string
}

// FormatCents renders an integer cent amount as a dollar string, e.g. 1495 -> "$14.95".
func FormatCents(cents int64) string {
	return "$" + decimal.New(cents, -2).StringFixed(2)
}
