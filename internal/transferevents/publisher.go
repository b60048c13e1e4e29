// Package transferevents publishes committed transfers to a redis stream.
package transferevents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-wallet/internal/domain"
)

// TransferCompleted is the event type of a committed transfer.
const TransferCompleted = "transfer.completed"

// Event is the payload stored under the "event" field of a stream entry.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      Transfer  `json:"data"`
}

// Transfer describes a committed transfer and the resulting balances.
type Transfer struct {
	FromWalletID string          `json:"from_wallet_id"`
	ToWalletID   string          `json:"to_wallet_id"`
	Amount       decimal.Decimal `json:"amount"`
	FromBalance  decimal.Decimal `json:"from_balance"`
	ToBalance    decimal.Decimal `json:"to_balance"`
}

// NewEvent builds the TransferCompleted event for a transfer result.
func NewEvent(res domain.TransferResult, at time.Time) Event {
	return Event{
		Type:      TransferCompleted,
		Timestamp: at.UTC(),
		Data: Transfer{
			FromWalletID: res.FromWallet.ID,
			ToWalletID:   res.ToWallet.ID,
			Amount:       res.Amount,
			FromBalance:  res.FromWallet.Balance,
			ToBalance:    res.ToWallet.Balance,
		},
	}
}

// NewClient connects to redis and verifies the connection.
func NewClient(addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return rdb, nil
}

// Publisher appends transfer events to a redis stream.
type Publisher struct {
	client *redis.Client
	stream string
	now    func() time.Time
}

// NewPublisher returns a Publisher writing to stream.
func NewPublisher(client *redis.Client, stream string) *Publisher {
	return &Publisher{
		client: client,
		stream: stream,
		now:    time.Now,
	}
}

// PublishTransfer appends a TransferCompleted event to the stream.
func (p *Publisher) PublishTransfer(ctx context.Context, res domain.TransferResult) error {
	eventJSON, err := json.Marshal(NewEvent(res, p.now()))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"type":  TransferCompleted,
			"event": eventJSON,
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Noop discards events. It is used when no redis address is configured.
type Noop struct{}

// PublishTransfer does nothing.
func (Noop) PublishTransfer(context.Context, domain.TransferResult) error { return nil }
