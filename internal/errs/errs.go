// Package errs defines the error taxonomy shared by the extractor, the oracle
// adapter, the catalog and the HTTP layer. Callers wrap these with fmt.Errorf
// and %w; the server maps them to status codes with errors.Is.
package errs

import (
	"context"
	"errors"
	"net/http"
)

// StatusClientClosedRequest is reported when the caller went away before a
// response was ready. Nothing reads it; it keeps such requests out of the 5xx logs.
const StatusClientClosedRequest = 499

var (
	// ErrDecode means the uploaded bytes are not a decodable image.
	ErrDecode = errors.New("image decode failed")
	// ErrModelUnavailable means the vision encoder could not be initialized.
	ErrModelUnavailable = errors.New("embedding model unavailable")
	// ErrOracleUnavailable means the ranking service failed or was unreachable.
	ErrOracleUnavailable = errors.New("similarity oracle unavailable")
	// ErrMalformedRow means the ranking service returned a row without id, title or score.
	ErrMalformedRow = errors.New("malformed oracle row")
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTimeout means a bounded step (embedding or oracle call) ran out of time.
	ErrTimeout = errors.New("timeout")
	// ErrInvalidInput means a caller-supplied argument was rejected before any work was done.
	ErrInvalidInput = errors.New("invalid input")
)

// HTTPStatus returns the response status for err. Unknown errors are 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrDecode), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrOracleUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, ErrModelUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
