package http

import (
	"context"
	"errors"
	"net/http"

	"spese-report/internal/core"
	"spese-report/internal/period"
	"spese-report/internal/report"
)

// apiError is what a failed request is reduced to before it is written.
type apiError struct {
	Code       string
	Message    string
	StatusCode int
	Err        error
}

func (e *apiError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + " - " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *apiError) Unwrap() error { return e.Err }

func (e *apiError) withError(err error) *apiError {
	clone := *e
	clone.Err = err
	return &clone
}

var (
	errBadRequest   = &apiError{Code: "BAD_REQUEST", Message: "Invalid request", StatusCode: http.StatusBadRequest}
	errUnauthorized = &apiError{Code: "UNAUTHORIZED", Message: "Missing user identity", StatusCode: http.StatusUnauthorized}
	errNotFound     = &apiError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	errRateLimited  = &apiError{Code: "RATE_LIMITED", Message: "Too many requests, please try again later", StatusCode: http.StatusTooManyRequests}
	errInternal     = &apiError{Code: "INTERNAL_ERROR", Message: "Internal server error", StatusCode: http.StatusInternalServerError}
	errUnavailable  = &apiError{Code: "UNAVAILABLE", Message: "Service unavailable", StatusCode: http.StatusServiceUnavailable}
)

// fromError classifies err. Unknown errors become 500s.
func fromError(err error) *apiError {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae
	}

	var pe *period.InvalidPeriodError
	switch {
	case errors.As(err, &pe):
		return &apiError{Code: "INVALID_PERIOD", Message: pe.Error(), StatusCode: http.StatusBadRequest, Err: err}
	case errors.Is(err, period.ErrInvalidGranularity):
		return &apiError{Code: "INVALID_GRANULARITY", Message: err.Error(), StatusCode: http.StatusBadRequest, Err: err}
	case errors.Is(err, report.ErrAggregation):
		return &apiError{Code: "AGGREGATION_FAILED", Message: "Failed to generate report", StatusCode: http.StatusInternalServerError, Err: err}
	case errors.Is(err, core.ErrNotFound):
		return errNotFound.withError(err)
	case errors.Is(err, core.ErrEmptyUser):
		return errUnauthorized.withError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return errUnavailable.withError(err)
	}
	return errInternal.withError(err)
}

// detail is the "error" field of the body. Server-side causes are only
// revealed in debug mode.
func (e *apiError) detail(debug bool) string {
	if e.StatusCode < 500 {
		if e.Err != nil {
			return e.Err.Error()
		}
		return e.Code
	}
	if debug && e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}
