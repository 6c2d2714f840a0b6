package service

import (
	"errors"
	"fmt"
)

// Error kinds. Every error a service returns wraps exactly one of these.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrAuthorization     = errors.New("not authorized")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUpload            = errors.New("upload failed")
	ErrStorage           = errors.New("storage failure")
)

var (
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)
	ErrOrderNotFound   = fmt.Errorf("order %w", ErrNotFound)
	ErrEmptyCart       = fmt.Errorf("%w: cart is empty", ErrValidation)
)

func validationErr(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
