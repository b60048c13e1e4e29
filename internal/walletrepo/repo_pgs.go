// Package walletrepo manages the postgres ledger store of wallets.
package walletrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/pkg/dbpkg"
	"github.com/go-petr/pet-wallet/pkg/errorspkg"
)

// RepoPGS facilitates wallet repository layer logic.
type RepoPGS struct {
	db       dbpkg.SQLInterface
	conn     *sql.DB
	lockHold time.Duration
}

// Option configures RepoPGS.
type Option func(*RepoPGS)

// WithLockHold makes every transfer wait d while holding its row locks.
func WithLockHold(d time.Duration) Option {
	return func(r *RepoPGS) {
		r.lockHold = d
	}
}

// NewTxRepoPGS returns wallet RepoPGS bound to an existing transaction.
//
// It can run queries only: Transfer needs a connection to start its own transaction.
func NewTxRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

// NewRepoPGS returns wallet RepoPGS wiht connection to start transactions.
func NewRepoPGS(db *sql.DB, opts ...Option) *RepoPGS {
	r := &RepoPGS{
		db:   db,
		conn: db,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Ping checks that the store is reachable.
func (r *RepoPGS) Ping(ctx context.Context) error {
	if r.conn == nil {
		return nil
	}

	if err := r.conn.PingContext(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Send()
		return errorspkg.ErrStoreUnavailable
	}

	return nil
}

const createQuery = `
INSERT INTO
    wallets (id, balance)
VALUES
    ($1, $2)
RETURNING id, balance, updated_at
`

// Create creates the wallet and then returns it.
func (r *RepoPGS) Create(ctx context.Context, id string, balance decimal.Decimal) (domain.Wallet, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, createQuery, id, balance)

	var w domain.Wallet

	err := row.Scan(&w.ID, &w.Balance, &w.UpdatedAt)
	if err != nil {
		l.Error().Err(err).Msgf("Create(ctx, %q, %s)", id, balance)

		switch dbpkg.Constraint(err) {
		case "wallets_pkey":
			return w, domain.ErrWalletAlreadyExists
		case "wallets_balance_check":
			return w, domain.ErrInvalidAmount
		case "wallets_id_check":
			return w, domain.ErrInvalidWalletID
		}

		return w, classify(ctx, err)
	}

	return w, nil
}

const getQuery = `
SELECT
	id, balance, updated_at
FROM wallets
WHERE id = $1
`

// Get returns the wallet with the given id.
func (r *RepoPGS) Get(ctx context.Context, id string) (domain.Wallet, error) {
	return r.scanWallet(ctx, getQuery, id)
}

const getForUpdateQuery = getQuery + `FOR UPDATE`

// getForUpdate reads the wallet and holds an exclusive row lock until the transaction ends.
func (r *RepoPGS) getForUpdate(ctx context.Context, id string) (domain.Wallet, error) {
	return r.scanWallet(ctx, getForUpdateQuery, id)
}

func (r *RepoPGS) scanWallet(ctx context.Context, query, id string) (domain.Wallet, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, query, id)

	var w domain.Wallet

	err := row.Scan(&w.ID, &w.Balance, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			l.Info().Str("wallet_id", id).Msg(domain.ErrWalletNotFound.Error())
			return w, domain.ErrWalletNotFound
		}

		l.Error().Err(err).Str("wallet_id", id).Send()

		return w, classify(ctx, err)
	}

	return w, nil
}

const addBalanceQuery = `
UPDATE wallets
SET balance = balance + $1, updated_at = now()
WHERE id = $2
RETURNING id, balance, updated_at
`

// addBalance changes the wallet's balance and returns the changed wallet.
func (r *RepoPGS) addBalance(ctx context.Context, amount decimal.Decimal, id string) (domain.Wallet, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, addBalanceQuery, amount, id)

	var w domain.Wallet

	err := row.Scan(&w.ID, &w.Balance, &w.UpdatedAt)
	if err != nil {
		l.Error().Err(err).Str("wallet_id", id).Send()

		if errors.Is(err, sql.ErrNoRows) {
			return w, domain.ErrWalletNotFound
		}

		return w, classify(ctx, err)
	}

	return w, nil
}

// Transfer moves amount between two wallets in a single database transaction.
//
// Both rows are locked with SELECT ... FOR UPDATE in LockOrder before the balance
// check, so the check and the debit can not be separated by a concurrent write.
// Any configured lock hold happens while the locks are held. Nothing is written
// unless both wallets exist and the source balance covers the amount.
func (r *RepoPGS) Transfer(ctx context.Context, arg domain.TransferParams) (domain.TransferResult, error) {
	l := zerolog.Ctx(ctx)

	var result domain.TransferResult

	if r.conn == nil {
		l.Error().Msg("transfer requires a connection, got a transaction bound repo")
		return result, errorspkg.ErrInternal
	}

	tx, err := r.conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		l.Error().Err(err).Send()
		return result, classify(ctx, err)
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			l.Error().Err(err).Send()
		}
	}()

	txRepo := NewTxRepoPGS(tx)

	// To avoid deadlocks lock rows in consistent id order
	first, second := arg.LockOrder()
	locked := make(map[string]domain.Wallet, 2)

	for _, id := range [2]string{first, second} {
		w, err := txRepo.getForUpdate(ctx, id)
		if err != nil {
			return result, err
		}

		locked[id] = w
	}

	if locked[arg.FromWalletID].Balance.LessThan(arg.Amount) {
		l.Info().
			Str("wallet_id", arg.FromWalletID).
			Str("amount", arg.Amount.String()).
			Msg(domain.ErrInsufficientFunds.Error())

		return result, domain.ErrInsufficientFunds
	}

	if locked[arg.ToWalletID].Balance.Add(arg.Amount).GreaterThan(domain.MaxBalance) {
		l.Info().
			Str("wallet_id", arg.ToWalletID).
			Str("amount", arg.Amount.String()).
			Msg("credit exceeds max balance")

		return result, domain.ErrInvalidAmount
	}

	if err := hold(ctx, r.lockHold); err != nil {
		l.Info().Err(err).Msg("lock hold interrupted")
		return result, classify(ctx, err)
	}

	deltas := map[string]decimal.Decimal{
		arg.FromWalletID: arg.Amount.Neg(),
		arg.ToWalletID:   arg.Amount,
	}

	for _, id := range [2]string{first, second} {
		w, err := txRepo.addBalance(ctx, deltas[id], id)
		if err != nil {
			return domain.TransferResult{}, err
		}

		locked[id] = w
	}

	if err := tx.Commit(); err != nil {
		l.Error().Err(err).Send()
		return domain.TransferResult{}, classify(ctx, err)
	}

	result.FromWallet = locked[arg.FromWalletID]
	result.ToWallet = locked[arg.ToWalletID]
	result.Amount = arg.Amount

	return result, nil
}

func hold(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
