package errdefs

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the engine's error taxonomy. Callers classify
// failures with errors.Is rather than string matching.
var (
	ErrInvalidArg  = errors.New("invalid argument")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrForbidden   = errors.New("forbidden")
	ErrIntegrity   = errors.New("integrity error")
	ErrUnavailable = errors.New("unavailable")
)

// InvalidArgf wraps ErrInvalidArg with a formatted message.
func InvalidArgf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidArg}, args...)...)
}

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrNotFound}, args...)...)
}

// Conflictf wraps ErrConflict with a formatted message.
func Conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrConflict}, args...)...)
}

// Forbiddenf wraps ErrForbidden with a formatted message.
func Forbiddenf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrForbidden}, args...)...)
}

// Integrityf wraps ErrIntegrity with a formatted message.
func Integrityf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrIntegrity}, args...)...)
}

// Unavailablef wraps ErrUnavailable with a formatted message.
func Unavailablef(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrUnavailable}, args...)...)
}

// Kind returns the taxonomy name for an error, or "internal" if the error
// does not wrap any sentinel.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArg):
		return "invalid_argument"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrIntegrity):
		return "integrity_error"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}

// HTTPStatus maps an error to the status code the REST layer reports.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidArg):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrIntegrity):
		return http.StatusInternalServerError
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
