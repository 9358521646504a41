package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/mystictxt/internal/wallet/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := db.WithContext(ctx).Where("customer_id = ?", customerID).Take(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Wallet, error) {
	var wallet domain.Wallet
	err := db.WithContext(ctx).Where("id = ?", id).Take(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// InsertIfAbsent inserts the wallet unless a row for the customer already exists.
func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, wallet *domain.Wallet) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "customer_id"}},
			DoNothing: true,
		}).
		Create(wallet).Error
}

func (r *repo) Credit(ctx context.Context, db *gorm.DB, id int64, amountCents int64, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE wallets SET balance_cents = balance_cents + ?, updated_at = ? WHERE id = ?`,
		amountCents,
		now,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// DebitIfSufficient subtracts amountCents only while the balance covers it.
func (r *repo) DebitIfSufficient(ctx context.Context, db *gorm.DB, id int64, amountCents int64, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE wallets SET balance_cents = balance_cents - ?, updated_at = ? WHERE id = ? AND balance_cents >= ?`,
		amountCents,
		now,
		id,
		amountCents,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, txn *domain.WalletTransaction) error {
	return db.WithContext(ctx).Create(txn).Error
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, walletID int64, limit int) ([]domain.WalletTransaction, error) {
	var items []domain.WalletTransaction
	stmt := db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at desc, id desc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindInconsistent(ctx context.Context, db *gorm.DB, limit int) ([]domain.Inconsistency, error) {
	var rows []domain.Inconsistency
	stmt := db.WithContext(ctx).Raw(
		`SELECT w.id AS wallet_id,
		        w.customer_id AS customer_id,
		        w.balance_cents AS balance_cents,
		        COALESCE(SUM(t.amount_cents), 0) AS ledger_cents
		 FROM wallets w
		 LEFT JOIN wallet_transactions t ON t.wallet_id = w.id
		 GROUP BY w.id, w.customer_id, w.balance_cents
		 HAVING w.balance_cents <> COALESCE(SUM(t.amount_cents), 0)
		 ORDER BY w.id
		 LIMIT ?`,
		limit,
	)
	if err := stmt.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
