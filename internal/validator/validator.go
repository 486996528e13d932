package validator

import (
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

// NewValidator initializes the shared validator instance
func NewValidator() *validator.Validate {
	if validate == nil {
		validate = validator.New()
	}
	return validate
}

// ValidateRequest validates a request struct against its validate tags
func ValidateRequest(req any) error {
	if err := NewValidator().Struct(req); err != nil {
		return ierr.WithError(err).
			WithHint("Request validation failed").
			Mark(ierr.ErrValidation)
	}
	return nil
}
