package transferservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/pkg/errorspkg"
	"github.com/go-petr/pet-wallet/pkg/randompkg"
)

var testConfig = Config{
	Timeout:      time.Second,
	MaxAttempts:  3,
	RetryBackoff: time.Millisecond,
}

func randomWallet(balance string) domain.Wallet {
	return domain.Wallet{
		ID:        randompkg.WalletID(),
		Balance:   decimal.RequireFromString(balance),
		UpdatedAt: time.Now().Truncate(time.Second).UTC(),
	}
}

func TestGetBalance(t *testing.T) {
	testWallet := randomWallet("100")

	testCases := []struct {
		name          string
		id            string
		buildStubs    func(repo *MockRepo)
		checkResponse func(res domain.Wallet, err error)
	}{
		{
			name: "InvalidID",
			id:   "not a wallet id",
			buildStubs: func(repo *MockRepo) {
				repo.EXPECT().Get(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(res domain.Wallet, err error) {
				require.Empty(t, res)
				require.ErrorIs(t, err, domain.ErrInvalidWalletID)
			},
		},
		{
			name: "NotFound",
			id:   testWallet.ID,
			buildStubs: func(repo *MockRepo) {
				repo.EXPECT().Get(gomock.Any(), gomock.Eq(testWallet.ID)).
					Times(1).
					Return(domain.Wallet{}, domain.ErrWalletNotFound)
			},
			checkResponse: func(res domain.Wallet, err error) {
				require.Empty(t, res)
				require.ErrorIs(t, err, domain.ErrWalletNotFound)
			},
		},
		{
			name: "OK",
			id:   testWallet.ID,
			buildStubs: func(repo *MockRepo) {
				repo.EXPECT().Get(gomock.Any(), gomock.Eq(testWallet.ID)).
					Times(1).
					Return(testWallet, nil)
			},
			checkResponse: func(res domain.Wallet, err error) {
				require.NoError(t, err)
				require.Equal(t, testWallet, res)
			},
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := NewMockRepo(ctrl)
			tc.buildStubs(repo)

			service := New(repo, NewMockPublisher(ctrl), testConfig)

			tc.checkResponse(service.GetBalance(context.Background(), tc.id))
		})
	}
}

func TestTransfer(t *testing.T) {
	fromWallet := randomWallet("20")
	toWallet := randomWallet("80")
	testAmount := "80"

	validArg := domain.CreateTransferParams{
		FromWalletID: fromWallet.ID,
		ToWalletID:   toWallet.ID,
		Amount:       testAmount,
	}

	wantParams := domain.TransferParams{
		FromWalletID: fromWallet.ID,
		ToWalletID:   toWallet.ID,
		Amount:       decimal.RequireFromString(testAmount),
	}

	testTxResult := domain.TransferResult{
		FromWallet: fromWallet,
		ToWallet:   toWallet,
		Amount:     decimal.RequireFromString(testAmount),
	}

	withAttempts := func(n int) domain.TransferResult {
		res := testTxResult
		res.Attempts = n

		return res
	}

	testCases := []struct {
		name          string
		arg           domain.CreateTransferParams
		buildStubs    func(repo *MockRepo, publisher *MockPublisher)
		checkResponse func(res domain.TransferResult, err error)
	}{
		{
			name: "InvalidAmount",
			arg: domain.CreateTransferParams{
				FromWalletID: fromWallet.ID,
				ToWalletID:   toWallet.ID,
				Amount:       "!@#$",
			},
			buildStubs: func(repo *MockRepo, publisher *MockPublisher) {
				repo.EXPECT().Transfer(gomock.Any(), gomock.Any()).Times(0)
				publisher.EXPECT().PublishTransfer(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(res domain.TransferResult, err error) {
				require.Empty(t, res)
				require.ErrorIs(t, err, domain.ErrInvalidAmount)
			},
		},
		{
			name: "NegativeAmount",
			arg: domain.CreateTransferParams{
				FromWalletID: fromWallet.ID,
				ToWalletID:   toWallet.ID,
				Amount:       "-100",
			},
			buildStubs: func(repo *MockRepo, publisher *MockPublisher) {
				repo.EXPECT().Transfer(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(res domain.TransferResult, err error) {
				require.Empty(t, res)
				require.ErrorIs(t, err, domain.ErrNonPositiveAmount)
			},
		},
		{
			name: "SameWallet",
			arg: domain.CreateTransferParams{
				FromWalletID: fromWallet.ID,
				ToWalletID:   fromWallet.ID,
				Amount:       testAmount,
			},
			buildStubs: func(repo *MockRepo, publisher *MockPublisher) {
				repo.EXPECT().Transfer(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(res domain.TransferResult, err error) {
				require.Empty(t, res)
				require.ErrorIs(t, err, domain.ErrSameWallet)
			},
		},
		{
			name: "InvalidWalletID",
			arg: domain.CreateTransferParams{
				FromWalletID: "../etc/passwd",
				ToWalletID:   toWallet.ID,
				Amount:       testAmount,
			},
			buildStubs: func(repo *MockRepo, publisher *MockPublisher) {
				repo.EXPECT().Transfer(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(res domain.TransferResult, err error) {
				require.Empty(t, res)
				require.ErrorIs(t, err, domain.ErrInvalidWalletID)
			},
		},
		{
			name: "WalletNotFound",
			arg:  validArg,
			buildStubs: func(repo *MockRepo, publisher *MockPublisher) {
				repo.EXPECT().Transfer(gomock.Any(), gomock.Eq(wantParams)).
					Times(1).
					Return(domain.TransferResult{}, domain.ErrWalletNotFound)
				publisher.EXPECT().PublishTransfer(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(res domain.TransferResult, err error) {
				require.Empty(t, res)
				require.ErrorIs(t, err, domain.ErrWalletNotFound)
			},
		},
		{
			name: "InsufficientFundsIsNotRetried",
			arg:  validArg,
			buildStubs: func(repo *MockRepo, publisher *MockPublisher) {
				repo.EXPECT().Transfer(gomock.Any(), gomock.Eq(wantParams)).
					Times(1).
					Return(domain.TransferResult{}, domain.ErrInsufficientFunds)
				publisher.EXPECT().PublishTransfer(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(res domain.TransferResult, err error) {
				require.Empty(t, res)
				require.ErrorIs(t, err, domain.ErrInsufficientFunds)
			},
		},
		{
			name: "StoreUnavailableIsNotRetried",
			arg:  validArg,
			buildStubs: func(repo *MockRepo, publisher *MockPublisher) {
				repo.EXPECT().Transfer(gomock.Any(), gomock.Any()).
					Times(1).
					Return(domain.TransferResult{}, errorspkg.ErrStoreUnavailable)
			},
			checkResponse: func(res domain.TransferResult, err error) {
				require.Empty(t, res)
				require.ErrorIs(t, err, errorspkg.ErrStoreUnavailable)
			},
		},
		{
			name: "ConflictThenOK",
			arg:  validArg,
			buildStubs: func(repo *MockRepo, publisher *MockPublisher) {
				gomock.InOrder(
					repo.EXPECT().Transfer(gomock.Any(), gomock.Eq(wantParams)).
						Return(domain.TransferResult{}, domain.ErrConflict),
					repo.EXPECT().Transfer(gomock.Any(), gomock.Eq(wantParams)).
						Return(testTxResult, nil),
				)
				publisher.EXPECT().PublishTransfer(gomock.Any(), gomock.Eq(withAttempts(2))).
					Times(1).
					Return(nil)
			},
			checkResponse: func(res domain.TransferResult, err error) {
				require.NoError(t, err)
				require.Equal(t, withAttempts(2), res)
			},
		},
		{
			name: "ConflictExhausted",
			arg:  validArg,
			buildStubs: func(repo *MockRepo, publisher *MockPublisher) {
				repo.EXPECT().Transfer(gomock.Any(), gomock.Eq(wantParams)).
					Times(testConfig.MaxAttempts).
					Return(domain.TransferResult{}, domain.ErrConflict)
				publisher.EXPECT().PublishTransfer(gomock.Any(), gomock.Any()).Times(0)
			},
			checkResponse: func(res domain.TransferResult, err error) {
				require.Empty(t, res)
				require.ErrorIs(t, err, domain.ErrConflict)
			},
		},
		{
			name: "PublishErrorIsIgnored",
			arg:  validArg,
			buildStubs: func(repo *MockRepo, publisher *MockPublisher) {
				repo.EXPECT().Transfer(gomock.Any(), gomock.Eq(wantParams)).
					Times(1).
					Return(testTxResult, nil)
				publisher.EXPECT().PublishTransfer(gomock.Any(), gomock.Any()).
					Times(1).
					Return(errors.New("redis: connection refused"))
			},
			checkResponse: func(res domain.TransferResult, err error) {
				require.NoError(t, err)
				require.Equal(t, withAttempts(1), res)
			},
		},
		{
			name: "OK",
			arg:  validArg,
			buildStubs: func(repo *MockRepo, publisher *MockPublisher) {
				repo.EXPECT().Transfer(gomock.Any(), gomock.Eq(wantParams)).
					Times(1).
					Return(testTxResult, nil)
				publisher.EXPECT().PublishTransfer(gomock.Any(), gomock.Eq(withAttempts(1))).
					Times(1).
					Return(nil)
			},
			checkResponse: func(res domain.TransferResult, err error) {
				require.NoError(t, err)
				require.Equal(t, withAttempts(1), res)
				require.True(t, res.FromWallet.Balance.Equal(decimal.NewFromInt(20)))
			},
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := NewMockRepo(ctrl)
			publisher := NewMockPublisher(ctrl)
			tc.buildStubs(repo, publisher)

			service := New(repo, publisher, testConfig)

			tc.checkResponse(service.Transfer(context.Background(), tc.arg))
		})
	}
}

func TestTransferDeadline(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := NewMockRepo(ctrl)
	repo.EXPECT().Transfer(gomock.Any(), gomock.Any()).
		Times(1).
		DoAndReturn(func(ctx context.Context, _ domain.TransferParams) (domain.TransferResult, error) {
			_, ok := ctx.Deadline()
			require.True(t, ok, "transfer context has no deadline")

			<-ctx.Done()

			return domain.TransferResult{}, domain.ErrTimeout
		})

	config := testConfig
	config.Timeout = 20 * time.Millisecond

	service := New(repo, nil, config)

	arg := domain.CreateTransferParams{FromWalletID: "A", ToWalletID: "B", Amount: "1"}

	start := time.Now()
	_, err := service.Transfer(context.Background(), arg)

	require.ErrorIs(t, err, domain.ErrTimeout)
	require.Less(t, time.Since(start), time.Second)
}

func TestTransferDeadlineDuringBackoff(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := NewMockRepo(ctrl)
	repo.EXPECT().Transfer(gomock.Any(), gomock.Any()).
		Times(1).
		Return(domain.TransferResult{}, domain.ErrConflict)

	config := Config{Timeout: 20 * time.Millisecond, MaxAttempts: 5, RetryBackoff: time.Second}

	service := New(repo, nil, config)

	arg := domain.CreateTransferParams{FromWalletID: "A", ToWalletID: "B", Amount: "1"}

	_, err := service.Transfer(context.Background(), arg)
	require.ErrorIs(t, err, domain.ErrTimeout)
}
