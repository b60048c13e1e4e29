// Package walletmem provides an in-process ledger store used for development and tests.
//
// Every wallet owns a single-slot semaphore that plays the role of a row lock. Transfers
// take both locks in LockOrder, so transfers sharing a wallet serialize on it while
// transfers over disjoint wallets run in parallel.
package walletmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"github.com/go-petr/pet-wallet/internal/domain"
)

type wallet struct {
	lock      *semaphore.Weighted
	balance   decimal.Decimal
	updatedAt time.Time
}

func (w *wallet) acquire(ctx context.Context) error {
	if err := w.lock.Acquire(ctx, 1); err != nil {
		return err
	}

	// Acquire may succeed on an already expired context.
	if err := ctx.Err(); err != nil {
		w.lock.Release(1)
		return err
	}

	return nil
}

func (w *wallet) release() {
	w.lock.Release(1)
}

func (w *wallet) snapshot(id string) domain.Wallet {
	return domain.Wallet{ID: id, Balance: w.balance, UpdatedAt: w.updatedAt}
}

// Store is an in-memory ledger store.
//
// The RWMutex guards the wallet index only; balances are guarded by the per-wallet locks.
// Wallets are never removed, so a pointer taken from the index stays valid.
type Store struct {
	mu       sync.RWMutex
	wallets  map[string]*wallet
	lockHold time.Duration
	now      func() time.Time
}

// Option configures Store.
type Option func(*Store)

// WithLockHold makes every transfer wait d while holding its wallet locks.
func WithLockHold(d time.Duration) Option {
	return func(s *Store) {
		s.lockHold = d
	}
}

// New constructs an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		wallets: make(map[string]*wallet),
		now:     func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Create adds a wallet with the given opening balance.
func (s *Store) Create(_ context.Context, id string, balance decimal.Decimal) (domain.Wallet, error) {
	if balance.IsNegative() {
		return domain.Wallet{}, domain.ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[id]; ok {
		return domain.Wallet{}, domain.ErrWalletAlreadyExists
	}

	w := &wallet{
		lock:      semaphore.NewWeighted(1),
		balance:   balance,
		updatedAt: s.now(),
	}
	s.wallets[id] = w

	return w.snapshot(id), nil
}

func (s *Store) lookup(id string) (*wallet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[id]

	return w, ok
}

// Get returns the committed state of the wallet.
func (s *Store) Get(ctx context.Context, id string) (domain.Wallet, error) {
	w, ok := s.lookup(id)
	if !ok {
		zerolog.Ctx(ctx).Info().Str("wallet_id", id).Msg(domain.ErrWalletNotFound.Error())
		return domain.Wallet{}, domain.ErrWalletNotFound
	}

	if err := w.acquire(ctx); err != nil {
		return domain.Wallet{}, domain.ErrTimeout
	}
	defer w.release()

	return w.snapshot(id), nil
}

// Transfer moves amount between two wallets while holding both wallet locks.
func (s *Store) Transfer(ctx context.Context, arg domain.TransferParams) (domain.TransferResult, error) {
	l := zerolog.Ctx(ctx)

	first, second := arg.LockOrder()

	var locked [2]*wallet

	for i, id := range [2]string{first, second} {
		w, ok := s.lookup(id)
		if !ok {
			l.Info().Str("wallet_id", id).Msg(domain.ErrWalletNotFound.Error())
			return domain.TransferResult{}, domain.ErrWalletNotFound
		}

		locked[i] = w
	}

	for i, w := range locked {
		if err := w.acquire(ctx); err != nil {
			for _, held := range locked[:i] {
				held.release()
			}

			l.Info().Err(err).Msg("wallet lock wait interrupted")

			return domain.TransferResult{}, domain.ErrTimeout
		}
	}

	defer func() {
		for _, w := range locked {
			w.release()
		}
	}()

	from, to := locked[0], locked[1]
	if first != arg.FromWalletID {
		from, to = to, from
	}

	if from.balance.LessThan(arg.Amount) {
		l.Info().
			Str("wallet_id", arg.FromWalletID).
			Str("amount", arg.Amount.String()).
			Msg(domain.ErrInsufficientFunds.Error())

		return domain.TransferResult{}, domain.ErrInsufficientFunds
	}

	if to.balance.Add(arg.Amount).GreaterThan(domain.MaxBalance) {
		l.Info().
			Str("wallet_id", arg.ToWalletID).
			Str("amount", arg.Amount.String()).
			Msg("credit exceeds max balance")

		return domain.TransferResult{}, domain.ErrInvalidAmount
	}

	if err := hold(ctx, s.lockHold); err != nil {
		l.Info().Err(err).Msg("lock hold interrupted")
		return domain.TransferResult{}, domain.ErrTimeout
	}

	// Past this point the unit of work can not fail, a late deadline aborts it here.
	if err := ctx.Err(); err != nil {
		return domain.TransferResult{}, domain.ErrTimeout
	}

	now := s.now()

	from.balance = from.balance.Sub(arg.Amount)
	from.updatedAt = now
	to.balance = to.balance.Add(arg.Amount)
	to.updatedAt = now

	return domain.TransferResult{
		FromWallet: from.snapshot(arg.FromWalletID),
		ToWallet:   to.snapshot(arg.ToWalletID),
		Amount:     arg.Amount,
	}, nil
}

// Snapshot returns every balance, read while holding all wallet locks.
func (s *Store) Snapshot(ctx context.Context) (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.wallets))
	for id := range s.wallets {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)

	held := make([]*wallet, 0, len(ids))
	defer func() {
		for _, w := range held {
			w.release()
		}
	}()

	out := make(map[string]decimal.Decimal, len(ids))

	for _, id := range ids {
		w, _ := s.lookup(id)
		if err := w.acquire(ctx); err != nil {
			return nil, domain.ErrTimeout
		}

		held = append(held, w)
		out[id] = w.balance
	}

	return out, nil
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
