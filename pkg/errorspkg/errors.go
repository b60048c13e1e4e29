// Package errorspkg provides common app errors.
package errorspkg

import "errors"

var (
	// ErrInternal indicates internal server error.
	ErrInternal = errors.New("internal")
	// ErrStoreUnavailable indicates that the ledger store cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
)
