package services

import (
	"errors"

	"mailconnect/utils"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("no active account found with the given credentials")
	ErrInactiveAccount    = errors.New("account is disabled")
)

// ValidationError carries per-field messages for a rejected input.
type ValidationError struct {
	Fields utils.FieldErrors
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Fields.Error()
}

func newValidationError(field, message string) *ValidationError {
	errs := utils.FieldErrors{}
	errs.Add(field, message)
	return &ValidationError{Fields: errs}
}
