// Package fault defines error values that are reused across the core
// components. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios. For
// example, ErrUnauthorized indicates that the acting principal lacks
// the capability required for an operation, while ErrConflict signals
// that an operation cannot proceed due to existing dependent records
// (e.g. deleting a spot that still has an active reservation).
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrValidation is returned when input fields are missing or malformed,
// such as an empty booking name or a non-positive price. It is
// recovered locally and surfaced to the acting user as an inline
// message. Handlers translate it into an HTTP 400 response.
var ErrValidation = errors.New("validation failed")

// ErrConflict is returned when a mutation cannot proceed because of
// conflicting state: a duplicate spot id, a second reservation for the
// same spot, or deleting a spot while a reservation stands. The
// operation is aborted and the previous snapshot is left intact.
// Handlers translate it into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrUnavailable is returned when a booking is attempted on a spot
// that already carries an active reservation. Handlers translate it
// into an HTTP 409 response.
var ErrUnavailable = errors.New("spot unavailable")

// ErrUnauthorized is returned by the capability gate when the acting
// principal does not hold the flag an operation requires. Mutating
// entry points return it uniformly instead of ad hoc prompts.
// Handlers translate it into an HTTP 403 response.
var ErrUnauthorized = errors.New("capability missing")

// ErrTransport is returned when a remote call (spot source fetch,
// payment intent creation) fails. Callers degrade to cached or local
// data where possible. Handlers translate it into an HTTP 502.
var ErrTransport = errors.New("transport failure")

// ErrNotFound is returned when a referenced spot, reservation or user
// does not exist. Handlers translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// Wrap annotates a sentinel with context while keeping errors.Is
// working against the sentinel.
func Wrap(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, sentinel)...)
}

// HTTPStatus maps a fault sentinel to the HTTP status code handlers
// should respond with. Unknown errors map to 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrUnavailable):
		return http.StatusConflict
	case errors.Is(err, ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
