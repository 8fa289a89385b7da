package utils

import (
	stderrors "errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"glimpse/internal/shared/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// ValidateStruct validates a request struct using `validate` tags and
// converts the first failure into a validation AppError.
func ValidateStruct(s any) error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})

	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if stderrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return errors.NewValidationError(
			"invalid request",
			strings.ToLower(fe.Field())+" failed "+fe.Tag()+" validation",
		)
	}
	return errors.NewValidationError("invalid request", err.Error())
}
