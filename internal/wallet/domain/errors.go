package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCustomer        = errors.New("invalid_customer_id")
	ErrInvalidWallet          = errors.New("invalid_wallet_id")
	ErrInvalidAmount          = errors.New("invalid_amount")
	ErrInvalidPackage         = errors.New("invalid_credit_package")
	ErrInvalidTransactionType = errors.New("invalid_transaction_type")
	ErrWalletNotFound         = errors.New("wallet_not_found")
	ErrInsufficientCredits    = errors.New("insufficient_credits")
)

// InsufficientCreditsError carries the amounts a caller needs to prompt a top-up.
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient_credits: required %d, available %d", e.Required, e.Available)
}

func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}
