package walletrepo

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/pkg/dbpkg"
	"github.com/go-petr/pet-wallet/pkg/errorspkg"
)

// SQLSTATE codes the store reacts to.
const (
	codeNumericOutOfRange    = "22003"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
	codeAdminShutdown        = "57P01"
	codeCannotConnectNow     = "57P03"
	codeTooManyConnections   = "53300"
	classConnectionException = "08"
)

// classify maps a driver error to a domain or infrastructure sentinel.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return domain.ErrTimeout
	}

	code := dbpkg.SQLState(err)

	switch {
	case code == codeCheckViolation && dbpkg.Constraint(err) == "wallets_balance_check":
		return domain.ErrInsufficientFunds
	case code == codeNumericOutOfRange:
		return domain.ErrInvalidAmount
	case code == codeSerializationFailure, code == codeDeadlockDetected, code == codeLockNotAvailable:
		return domain.ErrConflict
	case code == codeQueryCanceled:
		return domain.ErrTimeout
	case code == codeAdminShutdown, code == codeCannotConnectNow, code == codeTooManyConnections,
		strings.HasPrefix(code, classConnectionException):
		return errorspkg.ErrStoreUnavailable
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return errorspkg.ErrStoreUnavailable
	}

	return errorspkg.ErrInternal
}
