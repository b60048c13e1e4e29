// Package web defines common components for a web application.
package web

import "github.com/go-playground/validator/v10"

// Error codes let callers tell retryable failures from final ones without parsing messages.
const (
	CodeInvalidRequest    = "invalid_request"
	CodeNotFound          = "not_found"
	CodeInsufficientFunds = "insufficient_funds"
	CodeConflict          = "conflict"
	CodeTimeout           = "timeout"
	CodeStoreUnavailable  = "store_unavailable"
	CodeInternal          = "internal"
)

// JSONError provides type for explicit json encoded error response.
type JSONError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error wraps a given err into json frinedly struct.
func Error(err error, code string) JSONError {
	return JSONError{Error: err.Error(), Code: code}
}

// GetErrorMsg returns the human readable suffix for a failed validation tag.
func GetErrorMsg(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return " field is required"
	case "walletid":
		return " field must be 1-64 letters, digits, '_' or '-'"
	case "min":
		return " field must be at least " + fe.Param()
	case "max":
		return " field must be at most " + fe.Param()
	}

	return " field is invalid"
}
