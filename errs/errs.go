// Package errs defines the domain error kinds shared by the managers and
// translated at the HTTP/realtime boundaries. Callers match with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrAuthorization = errors.New("not allowed")
	ErrConflict      = errors.New("conflict")
	ErrCapacity      = errors.New("capacity reached")
	ErrInternal      = errors.New("internal error")
)

func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, prepend(ErrValidation, args)...)
}

func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, prepend(ErrNotFound, args)...)
}

func Authorizationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, prepend(ErrAuthorization, args)...)
}

func Conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, prepend(ErrConflict, args)...)
}

func Capacityf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, prepend(ErrCapacity, args)...)
}

// Internal wraps an unexpected persistence or infrastructure failure so the
// boundary can hide the cause from clients while keeping it in the logs.
func Internal(err error) error {
	return fmt.Errorf("%w: %v", ErrInternal, err)
}

func prepend(err error, args []interface{}) []interface{} {
	return append([]interface{}{err}, args...)
}
