// Package integrationtest provides db helpers used in integration tests.
package integrationtest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-wallet/cmd/httpserver"
	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/internal/middleware"
	"github.com/go-petr/pet-wallet/internal/transferevents"
	"github.com/go-petr/pet-wallet/internal/walletrepo"
	"github.com/go-petr/pet-wallet/pkg/configpkg"
	"github.com/go-petr/pet-wallet/pkg/dbpkg"
	"github.com/go-petr/pet-wallet/pkg/randompkg"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

// ConfigPath is the configs directory as seen from a package two levels below the module root.
const ConfigPath = "../../configs"

// LoadConfig loads the test configuration and skips the test when no database is configured.
func LoadConfig(t *testing.T, path string) configpkg.Config {
	t.Helper()

	config, err := configpkg.Load(path)
	if err != nil {
		t.Fatalf("configpkg.Load(%q) returned error: %v", path, err)
	}

	if config.DBDriver == configpkg.MemoryDriver || config.DBSource == "" {
		t.Skip("DB_SOURCE is not set")
	}

	return config
}

// SetupServer returns test server that cleans up database after each integration test.
func SetupServer(t *testing.T, path string) (*httpserver.Server, *sql.DB) {
	t.Helper()

	config := LoadConfig(t, path)

	zerolog.SetGlobalLevel(zerolog.FatalLevel)

	logger := middleware.CreateLogger(config)

	db := SetupDB(t, config)
	store := walletrepo.NewRepoPGS(db, walletrepo.WithLockHold(config.TransferLockHold))

	gin.SetMode(gin.ReleaseMode)

	server, err := httpserver.New(store, logger, config, transferevents.Noop{})
	if err != nil {
		t.Fatalf(`httpserver.New(store, logger, config) returned error: %v`, err)
	}

	return server, db
}

// Flush deletes all wallets.
func Flush(t *testing.T, db *sql.DB) {
	t.Helper()

	if _, err := db.Exec(`TRUNCATE TABLE wallets`); err != nil {
		t.Fatalf("db cleanup failed. err: %v", err)
	}
}

func poolConfig(config configpkg.Config) dbpkg.PoolConfig {
	return dbpkg.PoolConfig{
		MaxOpenConns:    config.DBMaxOpenConns,
		MaxIdleConns:    config.DBMaxIdleConns,
		ConnMaxLifetime: config.DBConnMaxLifetime,
	}
}

// SetupDB sets up connection with database for testing and then cleans it.
func SetupDB(t *testing.T, config configpkg.Config) *sql.DB {
	t.Helper()

	db, err := dbpkg.Setup(config.DBDriver, config.DBSource, poolConfig(config))
	if err != nil {
		t.Fatalf("db initialization failed. err: %v", err)
	}

	Flush(t, db)

	t.Cleanup(func() {
		Flush(t, db)

		if err := db.Close(); err != nil {
			t.Fatalf("db cleanup failed. err: %v", err)
		}
	})

	return db
}

// SetupTX sets up a database transaction to be used in tests.
//
// Once the tests are done it will rollback the transaction.
func SetupTX(t *testing.T, config configpkg.Config) *sql.Tx {
	t.Helper()

	db, err := dbpkg.Setup(config.DBDriver, config.DBSource, poolConfig(config))
	if err != nil {
		t.Fatalf("db initialization failed. err: %v", err)
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("db.Begin() failed: %v", err)
	}

	t.Cleanup(func() {
		if err := tx.Rollback(); err != nil {
			t.Fatalf("tx.Rollback() failed: %v", err)
		}
		if err := db.Close(); err != nil {
			t.Fatalf("db.Close() failed: %v", err)
		}
	})

	return tx
}

// SeedWallet creates a wallet with the given balance. An empty id gets a random one.
func SeedWallet(t *testing.T, db dbpkg.SQLInterface, id, balance string) domain.Wallet {
	t.Helper()

	if id == "" {
		id = randompkg.WalletID()
	}

	repo := walletrepo.NewTxRepoPGS(db)

	wallet, err := repo.Create(context.Background(), id, decimal.RequireFromString(balance))
	if err != nil {
		t.Fatalf("repo.Create(context.Background(), %v, %v) returned error: %v", id, balance, err)
	}

	return wallet
}
