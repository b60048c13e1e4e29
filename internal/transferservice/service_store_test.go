package transferservice_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/internal/transferevents"
	"github.com/go-petr/pet-wallet/internal/transferservice"
	"github.com/go-petr/pet-wallet/internal/walletmem"
)

func setupService(t *testing.T, lockHold time.Duration, balances map[string]int64) (*transferservice.Service, *walletmem.Store) {
	t.Helper()

	store := walletmem.New(walletmem.WithLockHold(lockHold))

	for id, balance := range balances {
		if _, err := store.Create(context.Background(), id, decimal.NewFromInt(balance)); err != nil {
			t.Fatalf("store.Create(ctx, %q, %d) returned error: %v", id, balance, err)
		}
	}

	config := transferservice.Config{Timeout: 5 * time.Second, MaxAttempts: 3, RetryBackoff: time.Millisecond}

	return transferservice.New(store, transferevents.Noop{}, config), store
}

func balanceOf(t *testing.T, s *transferservice.Service, id string) string {
	t.Helper()

	w, err := s.GetBalance(context.Background(), id)
	require.NoError(t, err)

	return w.Balance.String()
}

// A=100, B=0, C=0; A->B 80 and A->C 80 issued together. Only one can be covered by A.
func TestConcurrentOverdraft(t *testing.T) {
	service, _ := setupService(t, 100*time.Millisecond, map[string]int64{"A": 100, "B": 0, "C": 0})

	var g errgroup.Group

	results := make([]domain.TransferResult, 2)
	errs := make([]error, 2)

	for i, to := range []string{"B", "C"} {
		i, to := i, to

		g.Go(func() error {
			results[i], errs[i] = service.Transfer(context.Background(), domain.CreateTransferParams{
				FromWalletID: "A",
				ToWalletID:   to,
				Amount:       "80",
			})

			return nil
		})
	}

	require.NoError(t, g.Wait())

	winner := -1

	for i, err := range errs {
		if err == nil {
			require.Equal(t, -1, winner, "both transfers succeeded")
			winner = i

			continue
		}

		require.True(t, errors.Is(err, domain.ErrInsufficientFunds), "unexpected error: %v", err)
	}

	require.NotEqual(t, -1, winner, "no transfer succeeded")
	require.Equal(t, "20", results[winner].FromWallet.Balance.String())

	require.Equal(t, "20", balanceOf(t, service, "A"))

	if winner == 0 {
		require.Equal(t, "80", balanceOf(t, service, "B"))
		require.Equal(t, "0", balanceOf(t, service, "C"))
	} else {
		require.Equal(t, "0", balanceOf(t, service, "B"))
		require.Equal(t, "80", balanceOf(t, service, "C"))
	}
}

func TestFailedTransferHasNoEffect(t *testing.T) {
	service, store := setupService(t, 0, map[string]int64{"A": 100, "B": 0})

	before, err := store.Snapshot(context.Background())
	require.NoError(t, err)

	args := []domain.CreateTransferParams{
		{FromWalletID: "A", ToWalletID: "B", Amount: "100.5"},
		{FromWalletID: "A", ToWalletID: "missing", Amount: "10"},
		{FromWalletID: "missing", ToWalletID: "B", Amount: "10"},
		{FromWalletID: "A", ToWalletID: "B", Amount: "0"},
		{FromWalletID: "A", ToWalletID: "A", Amount: "10"},
	}

	for _, arg := range args {
		_, err := service.Transfer(context.Background(), arg)
		require.Error(t, err, "transfer %+v", arg)
	}

	after, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestIdempotentRead(t *testing.T) {
	service, _ := setupService(t, 0, map[string]int64{"A": 100})

	first, err := service.GetBalance(context.Background(), "A")
	require.NoError(t, err)

	second, err := service.GetBalance(context.Background(), "A")
	require.NoError(t, err)

	require.Equal(t, first, second)
}

// Out of range literals are rejected before any wallet is locked, so the wallet stays usable.
func TestOutOfRangeAmountDoesNotBlockWallet(t *testing.T) {
	service, store := setupService(t, 0, map[string]int64{"A": 100, "B": 0})

	var g errgroup.Group

	amounts := []string{"1e1000000000", "1e-100000000", "1e17", "-1e1000000000"}
	errs := make([]error, len(amounts))

	for i, amount := range amounts {
		i, amount := i, amount

		g.Go(func() error {
			_, errs[i] = service.Transfer(context.Background(), domain.CreateTransferParams{
				FromWalletID: "A",
				ToWalletID:   "B",
				Amount:       amount,
			})

			return nil
		})
	}

	require.NoError(t, g.Wait())

	for i, err := range errs {
		require.Error(t, err, amounts[i])
		require.True(t,
			errors.Is(err, domain.ErrInvalidAmount) || errors.Is(err, domain.ErrNonPositiveAmount),
			"amount %s: unexpected error: %v", amounts[i], err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := service.Transfer(ctx, domain.CreateTransferParams{FromWalletID: "A", ToWalletID: "B", Amount: "1"})
	require.NoError(t, err)
	require.Equal(t, "99", res.FromWallet.Balance.String())

	w, err := service.GetBalance(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, "99", w.Balance.String())

	balances, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, "1", balances["B"].String())
}
