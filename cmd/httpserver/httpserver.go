// Package httpserver manages server creation and api routing.
package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-wallet/internal/metrics"
	"github.com/go-petr/pet-wallet/internal/middleware"
	"github.com/go-petr/pet-wallet/internal/transferdelivery"
	"github.com/go-petr/pet-wallet/internal/transferservice"
	"github.com/go-petr/pet-wallet/pkg/configpkg"
	"github.com/go-petr/pet-wallet/pkg/web"
)

// Store is the ledger store the server is built on.
type Store interface {
	transferservice.Repo
	Ping(ctx context.Context) error
}

// Server holds the ledger store, handlers router and configuration.
type Server struct {
	Store  Store
	Engine *gin.Engine
	Config configpkg.Config
}

// ServeHTTP implements the http.Handler interface for the Server type.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Engine.ServeHTTP(w, r)
}

// New creates Server type with instantiated domains and routes.
func New(store Store, logger zerolog.Logger, config configpkg.Config, publisher transferservice.Publisher) (*Server, error) {
	if store == nil {
		return nil, errors.New("nil ledger store")
	}

	transferService := transferservice.New(store, publisher, transferservice.Config{
		Timeout:      config.TransferTimeout,
		MaxAttempts:  config.TransferMaxAttempts,
		RetryBackoff: config.TransferRetryBackoff,
	})

	transferHandler := transferdelivery.NewHandler(transferService)

	if err := transferdelivery.RegisterValidations(); err != nil {
		return nil, errors.New("cannot register wallet validators")
	}

	engine := gin.New()

	engine.Use(middleware.RequestLogger(logger))
	engine.Use(metrics.HTTP())
	engine.Use(gin.Recovery())

	engine.GET("/wallet/:id", transferHandler.GetWallet)
	engine.POST("/transfer", transferHandler.Transfer)
	engine.POST("/wallet/transfer", transferHandler.Transfer)

	engine.GET("/healthz", health(store))
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	server := &Server{
		Store:  store,
		Engine: engine,
		Config: config,
	}

	return server, nil
}

func health(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if err := store.Ping(ctx); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("ledger store ping failed")
			c.JSON(http.StatusServiceUnavailable, web.Error(err, web.CodeStoreUnavailable))

			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
