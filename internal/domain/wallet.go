// Package domain provides defenitions of all entities.
package domain

import (
	"errors"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrWalletNotFound indicates that the wallet is not found.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrInvalidWalletID indicates that the wallet id is malformed.
	ErrInvalidWalletID = errors.New("invalid wallet id")
	// ErrWalletAlreadyExists indicates that the wallet with the given id already exists.
	ErrWalletAlreadyExists = errors.New("wallet already exists")
)

var walletIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidWalletID reports whether id is a well-formed wallet identifier.
func ValidWalletID(id string) bool {
	return walletIDPattern.MatchString(id)
}

// Wallet holds the balance of a single ledger account.
type Wallet struct {
	ID        string          `json:"id"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}
