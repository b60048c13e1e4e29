package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

const (
	// AmountScale is the maximum number of fractional digits of a transfer amount.
	AmountScale = 4
	// MaxIntegerDigits is the number of integer digits a balance can hold, as in NUMERIC(20,4).
	MaxIntegerDigits = 16

	// maxExponent bounds the decimal exponent accepted before any rescaling.
	maxExponent = 32
)

// MaxBalance is the largest balance a wallet can hold.
var MaxBalance = decimal.New(1, MaxIntegerDigits).Sub(decimal.New(1, -AmountScale))

var (
	// ErrInvalidAmount indicates that the amount is not a valid decimal.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrNonPositiveAmount indicates zero or negative amount.
	ErrNonPositiveAmount = errors.New("amount must be positive")
	// ErrSameWallet indicates that the source and destination wallets are the same.
	ErrSameWallet = errors.New("source and destination wallets must differ")
	// ErrInsufficientFunds indicates that the source wallet balance is lower than the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrConflict indicates transient lock contention. The caller may retry.
	ErrConflict = errors.New("transfer conflict, retry later")
	// ErrTimeout indicates that the transfer deadline elapsed before commit. The caller may retry.
	ErrTimeout = errors.New("transfer timed out")
)

// TransferParams is the input data for the transfer unit of work.
type TransferParams struct {
	FromWalletID string
	ToWalletID   string
	Amount       decimal.Decimal // must be positive
}

// TransferResult is the committed state of both wallets after the transfer.
type TransferResult struct {
	FromWallet Wallet          `json:"from_wallet"`
	ToWallet   Wallet          `json:"to_wallet"`
	Amount     decimal.Decimal `json:"amount"`
	Attempts   int             `json:"attempts"`
}

// LockOrder returns the ids of the transfer wallets in lock acquisition order.
//
// The order depends only on the ids, never on the transfer direction, so two transfers
// over the same pair always lock in the same sequence.
func (p TransferParams) LockOrder() (first, second string) {
	if p.FromWalletID < p.ToWalletID {
		return p.FromWalletID, p.ToWalletID
	}

	return p.ToWalletID, p.FromWalletID
}

// ParseAmount parses a transfer amount and validates its sign and scale.
func ParseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}

	return amount, ValidateAmount(amount)
}

// ValidateAmount checks that the amount is positive, fits AmountScale and MaxIntegerDigits.
//
// The exponent is checked first: rescaling a literal such as 1e-100000000 does not terminate
// in any useful time.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}

	exp := int64(amount.Exponent())
	if exp < -maxExponent || exp+int64(amount.NumDigits()) > MaxIntegerDigits {
		return ErrInvalidAmount
	}

	if !amount.Equal(amount.Truncate(AmountScale)) {
		return ErrInvalidAmount
	}

	return nil
}

// Validate checks the transfer request before any store access.
func (p TransferParams) Validate() error {
	if !ValidWalletID(p.FromWalletID) || !ValidWalletID(p.ToWalletID) {
		return ErrInvalidWalletID
	}

	if p.FromWalletID == p.ToWalletID {
		return ErrSameWallet
	}

	return ValidateAmount(p.Amount)
}

// CreateTransferParams is the transfer request as received from the caller.
type CreateTransferParams struct {
	FromWalletID string `json:"fromId"`
	ToWalletID   string `json:"toId"`
	Amount       string `json:"amount"`
}
