// Package transferdelivery manages delivery layer of wallet balances and transfers.
package transferdelivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/pkg/errorspkg"
	"github.com/go-petr/pet-wallet/pkg/web"
)

// Service provides service layer interface needed by transfer delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package transferdelivery
type Service interface {
	GetBalance(ctx context.Context, id string) (domain.Wallet, error)
	Transfer(ctx context.Context, arg domain.CreateTransferParams) (domain.TransferResult, error)
}

// Handler facilitates transfer delivery layer logic.
type Handler struct {
	service Service
}

// NewHandler returns transfer handler.
func NewHandler(ts Service) *Handler {
	return &Handler{
		service: ts,
	}
}

type getRequest struct {
	ID string `uri:"id" binding:"required,walletid"`
}

type walletResponse struct {
	ID      string          `json:"id"`
	Balance decimal.Decimal `json:"balance"`
}

// GetWallet handles http request to get the wallet balance.
func (h *Handler) GetWallet(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req getRequest
	if err := gctx.ShouldBindUri(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, bindError(err))

		return
	}

	wallet, err := h.service.GetBalance(ctx, req.ID)
	if err != nil {
		respondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, walletResponse{
		ID:      wallet.ID,
		Balance: wallet.Balance,
	})
}

// Amount accepts both "80" and 80; numbers are kept as decimal literals.
type transferRequest struct {
	FromID string      `json:"fromId" binding:"required,walletid"`
	ToID   string      `json:"toId" binding:"required,walletid"`
	Amount json.Number `json:"amount" binding:"required"`
}

type transferResponse struct {
	Success    bool            `json:"success"`
	NewBalance decimal.Decimal `json:"newBalance"`
}

// Transfer handles http request to move funds between two wallets.
func (h *Handler) Transfer(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req transferRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, bindError(err))

		return
	}

	arg := domain.CreateTransferParams{
		FromWalletID: req.FromID,
		ToWalletID:   req.ToID,
		Amount:       req.Amount.String(),
	}

	result, err := h.service.Transfer(ctx, arg)
	if err != nil {
		respondError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, transferResponse{
		Success:    true,
		NewBalance: result.FromWallet.Balance,
	})
}

func bindError(err error) web.JSONError {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		field := ve[0]
		return web.JSONError{Error: field.Field() + web.GetErrorMsg(field), Code: web.CodeInvalidRequest}
	}

	return web.JSONError{Error: "invalid request body", Code: web.CodeInvalidRequest}
}

// respondError writes the status and code family of err.
func respondError(gctx *gin.Context, err error) {
	l := zerolog.Ctx(gctx.Request.Context())

	switch {
	case errors.Is(err, domain.ErrWalletNotFound):
		gctx.JSON(http.StatusNotFound, web.Error(err, web.CodeNotFound))
	case errors.Is(err, domain.ErrInsufficientFunds):
		gctx.JSON(http.StatusBadRequest, web.Error(err, web.CodeInsufficientFunds))
	case
		errors.Is(err, domain.ErrInvalidWalletID),
		errors.Is(err, domain.ErrSameWallet),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrNonPositiveAmount):
		gctx.JSON(http.StatusBadRequest, web.Error(err, web.CodeInvalidRequest))
	case errors.Is(err, domain.ErrConflict):
		gctx.Header("Retry-After", "1")
		gctx.JSON(http.StatusServiceUnavailable, web.Error(err, web.CodeConflict))
	case errors.Is(err, domain.ErrTimeout):
		gctx.Header("Retry-After", "1")
		gctx.JSON(http.StatusServiceUnavailable, web.Error(err, web.CodeTimeout))
	case errors.Is(err, errorspkg.ErrStoreUnavailable):
		gctx.Header("Retry-After", "1")
		gctx.JSON(http.StatusServiceUnavailable, web.Error(err, web.CodeStoreUnavailable))
	default:
		l.Error().Err(err).Send()
		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal, web.CodeInternal))
	}
}
