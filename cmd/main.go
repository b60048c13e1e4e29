// Package main runs the wallet API: balances and atomic transfers between wallets.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-wallet/cmd/httpserver"
	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/internal/middleware"
	"github.com/go-petr/pet-wallet/internal/transferevents"
	"github.com/go-petr/pet-wallet/internal/transferservice"
	"github.com/go-petr/pet-wallet/internal/walletmem"
	"github.com/go-petr/pet-wallet/internal/walletrepo"
	"github.com/go-petr/pet-wallet/pkg/configpkg"
	"github.com/go-petr/pet-wallet/pkg/dbpkg"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

// seeder is implemented by both ledger stores.
type seeder interface {
	Create(ctx context.Context, id string, balance decimal.Decimal) (domain.Wallet, error)
}

var devWallets = []struct {
	id      string
	balance int64
}{
	{"A", 100},
	{"B", 0},
	{"C", 0},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	config, err := configpkg.Load("./configs")
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}

	logger := middleware.CreateLogger(config)

	var (
		store   httpserver.Store
		closeFn = func() {}
	)

	if config.DBDriver == configpkg.MemoryDriver {
		store = walletmem.New(walletmem.WithLockHold(config.TransferLockHold))

		logger.Info().Msg("storage backend: memory")
	} else {
		db, err := dbpkg.Setup(config.DBDriver, config.DBSource, dbpkg.PoolConfig{
			MaxOpenConns:    config.DBMaxOpenConns,
			MaxIdleConns:    config.DBMaxIdleConns,
			ConnMaxLifetime: config.DBConnMaxLifetime,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("cannot connect to database")
		}

		store = walletrepo.NewRepoPGS(db, walletrepo.WithLockHold(config.TransferLockHold))
		closeFn = func() {
			if err := db.Close(); err != nil {
				logger.Error().Err(err).Msg("cannot close database")
			}
		}

		logger.Info().Str("driver", config.DBDriver).Msg("storage backend: postgres")
	}
	defer closeFn()

	if config.DevSeed {
		seedDev(ctx, logger, store)
	}

	publisher, closePublisher := newPublisher(logger, config)
	defer closePublisher()

	if config.Environement != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	server, err := httpserver.New(store, logger, config, publisher)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot create server")
	}

	srv := &http.Server{
		Addr:              config.ServerAddress,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      config.TransferTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("WALLET API SERVER HAS STARTED")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
	case err := <-errCh:
		logger.Error().Err(err).Msg("cannot start server")
	}
}

func seedDev(ctx context.Context, logger zerolog.Logger, store httpserver.Store) {
	s, ok := store.(seeder)
	if !ok {
		return
	}

	for _, w := range devWallets {
		_, err := s.Create(ctx, w.id, decimal.NewFromInt(w.balance))
		switch {
		case errors.Is(err, domain.ErrWalletAlreadyExists):
			logger.Info().Str("wallet_id", w.id).Msg("dev wallet already exists")
			continue
		case err != nil:
			logger.Error().Err(err).Str("wallet_id", w.id).Msg("dev seed failed")
			continue
		}

		logger.Info().Str("wallet_id", w.id).Int64("balance", w.balance).Msg("dev wallet seeded")
	}
}

func newPublisher(logger zerolog.Logger, config configpkg.Config) (transferservice.Publisher, func()) {
	if config.RedisAddr == "" {
		return transferevents.Noop{}, func() {}
	}

	client, err := transferevents.NewClient(config.RedisAddr)
	if err != nil {
		logger.Error().Err(err).Msg("redis unavailable, transfer events disabled")
		return transferevents.Noop{}, func() {}
	}

	return transferevents.NewPublisher(client, config.RedisStream), func() { closeRedis(logger, client) }
}

func closeRedis(logger zerolog.Logger, client *redis.Client) {
	if err := client.Close(); err != nil {
		logger.Error().Err(err).Msg("cannot close redis client")
	}
}
