package executor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrBadRequest means CARTO rejected the SQL; queries are built locally, so this is our bug.
	ErrBadRequest    = errors.New("carto: bad request")
	ErrNotFound      = errors.New("carto: not found")
	ErrServerFault   = errors.New("carto: server fault")
	ErrUnexpected    = errors.New("carto: unexpected status")
	ErrTransport     = errors.New("carto: transport failure")
	ErrInvalidResult = errors.New("carto: invalid geojson")
)

type UpstreamError struct {
	Status int
	Body   string
	kind   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%v (status %d): %s", e.kind, e.Status, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.kind }

func classify(status int, body string) error {
	var kind error
	switch {
	case status == http.StatusBadRequest:
		kind = ErrBadRequest
	case status == http.StatusNotFound:
		kind = ErrNotFound
	case status >= 500:
		kind = ErrServerFault
	default:
		kind = ErrUnexpected
	}
	return &UpstreamError{Status: status, Body: body, kind: kind}
}

// Outcome is the metric label for a fetch result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrServerFault):
		return "server_fault"
	case errors.Is(err, ErrTransport), errors.Is(err, context.DeadlineExceeded):
		return "transport"
	case errors.Is(err, ErrInvalidResult):
		return "invalid_result"
	default:
		return "other"
	}
}

// UserMessage is the alert text shown for a failed fetch.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrBadRequest):
		return "Error (400): Bad request."
	case errors.Is(err, ErrNotFound):
		return "Error (404): The requested resource could not be found."
	case errors.Is(err, ErrServerFault):
		return "Error (500): Internal server error."
	default:
		return "Error: the county data could not be loaded. Check your connection and try again."
	}
}

// HTTPStatus maps a fetch error onto the status the API returns to its own clients.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusInternalServerError
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
