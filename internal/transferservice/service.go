// Package transferservice manages business logic layer of wallet balances and transfers.
package transferservice

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/internal/metrics"
	"github.com/go-petr/pet-wallet/pkg/errorspkg"
)

// maxBackoff caps the wait between two attempts of a conflicting transfer.
const maxBackoff = time.Second

// Repo provides the ledger store interface needed by transfer service layer.
//
// Transfer must run the balance check and both balance updates as one atomic,
// isolated unit of work.
//
//go:generate mockgen -source service.go -destination service_mock.go -package transferservice
type Repo interface {
	Get(ctx context.Context, id string) (domain.Wallet, error)
	Transfer(ctx context.Context, arg domain.TransferParams) (domain.TransferResult, error)
}

// Publisher announces committed transfers.
type Publisher interface {
	PublishTransfer(ctx context.Context, res domain.TransferResult) error
}

// Config bounds a single transfer.
type Config struct {
	// Timeout is the overall deadline of a transfer, retries included. Zero disables it.
	Timeout time.Duration
	// MaxAttempts is the number of times a conflicting unit of work is run.
	MaxAttempts int
	// RetryBackoff is the wait before the second attempt, doubled for each next one.
	RetryBackoff time.Duration
}

// Service facilitates transfer service layer logic.
type Service struct {
	repo      Repo
	publisher Publisher
	config    Config
}

// New returns transfer service struct to manage transfer bussines logic.
func New(r Repo, p Publisher, c Config) *Service {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}

	return &Service{
		repo:      r,
		publisher: p,
		config:    c,
	}
}

// GetBalance returns the committed state of the wallet.
func (s *Service) GetBalance(ctx context.Context, id string) (domain.Wallet, error) {
	if !domain.ValidWalletID(id) {
		zerolog.Ctx(ctx).Info().Str("wallet_id", id).Msg(domain.ErrInvalidWalletID.Error())
		return domain.Wallet{}, domain.ErrInvalidWalletID
	}

	return s.repo.Get(ctx, id)
}

func (s *Service) validRequest(ctx context.Context, arg domain.CreateTransferParams) (domain.TransferParams, error) {
	l := zerolog.Ctx(ctx)

	amount, err := domain.ParseAmount(arg.Amount)
	if err != nil {
		l.Info().Err(err).Str("amount", arg.Amount).Send()
		return domain.TransferParams{}, err
	}

	params := domain.TransferParams{
		FromWalletID: arg.FromWalletID,
		ToWalletID:   arg.ToWalletID,
		Amount:       amount,
	}

	if err := params.Validate(); err != nil {
		l.Info().Err(err).Send()
		return domain.TransferParams{}, err
	}

	return params, nil
}

// Transfer validates the request and moves the amount between the wallets.
//
// The unit of work is retried on domain.ErrConflict up to MaxAttempts times with
// exponential backoff. Business errors and store unavailability are returned at once.
func (s *Service) Transfer(ctx context.Context, arg domain.CreateTransferParams) (domain.TransferResult, error) {
	start := time.Now()

	result, err := s.transfer(ctx, arg)

	metrics.TransfersTotal.WithLabelValues(outcome(err)).Inc()
	metrics.TransferDuration.Observe(time.Since(start).Seconds())

	return result, err
}

func (s *Service) transfer(ctx context.Context, arg domain.CreateTransferParams) (domain.TransferResult, error) {
	params, err := s.validRequest(ctx, arg)
	if err != nil {
		return domain.TransferResult{}, err
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	l := zerolog.Ctx(ctx)
	backoff := s.config.RetryBackoff

	for attempt := 1; ; attempt++ {
		result, err := s.repo.Transfer(ctx, params)
		if err == nil {
			result.Attempts = attempt
			s.publish(ctx, result)

			return result, nil
		}

		if !errors.Is(err, domain.ErrConflict) || attempt >= s.config.MaxAttempts {
			l.Info().Err(err).Int("attempt", attempt).Msg("transfer failed")
			return domain.TransferResult{}, err
		}

		metrics.TransferRetriesTotal.Inc()
		l.Warn().Err(err).Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying transfer")

		if err := wait(ctx, backoff); err != nil {
			return domain.TransferResult{}, domain.ErrTimeout
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// publish announces the committed transfer. The transfer is already durable,
// so a failure is logged and never returned.
func (s *Service) publish(ctx context.Context, result domain.TransferResult) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.PublishTransfer(context.WithoutCancel(ctx), result); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("cannot publish transfer event")
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrWalletNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, errorspkg.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrNonPositiveAmount),
		errors.Is(err, domain.ErrSameWallet),
		errors.Is(err, domain.ErrInvalidWalletID):
		return "invalid"
	}

	return "internal"
}
