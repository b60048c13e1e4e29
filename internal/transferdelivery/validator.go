package transferdelivery

import (
	"errors"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/go-petr/pet-wallet/internal/domain"
)

// ValidWalletID validates whether the field is a well-formed wallet id.
var ValidWalletID validator.Func = func(fl validator.FieldLevel) bool {
	if id, ok := fl.Field().Interface().(string); ok {
		return domain.ValidWalletID(id)
	}

	return false
}

// RegisterValidations registers the custom binding tags used by the handlers.
func RegisterValidations() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected binding validator engine")
	}

	return v.RegisterValidation("walletid", ValidWalletID)
}
