// Package errors defines the error envelope returned to clients and the
// taxonomy used by the composition engine and the workflow pipelines.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/go-errors/errors"
)

const InternalServerErrorMsg = "Internal Server Error"

// Code strings are machine readable and stable; messages are for humans.
const (
	CodeNotFound           = "not_found"
	CodeMultipleResults    = "multiple_results"
	CodeUpstreamError      = "upstream_error"
	CodeTransportError     = "transport_error"
	CodeUnprocessableInput = "unprocessable_input"
	CodeInternalError      = "internal_error"
)

// ErrorResponse is the body serialized to the client. Exactly one of these
// is ever written per request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EncodedError carries a client-facing code and message together with the
// HTTP status the transport layer should write.
type EncodedError struct {
	HTTPStatusCode int
	ActualError    ErrorResponse

	// internal is never serialized; it is kept for server-side logging.
	internal error
}

// Error returns the client-facing message.
func (e *EncodedError) Error() string {
	return e.ActualError.Message
}

// HTTPStatus returns the HTTP status code to write.
func (e *EncodedError) HTTPStatus() int {
	return e.HTTPStatusCode
}

// Code returns the machine-readable code string.
func (e *EncodedError) Code() string {
	return e.ActualError.Code
}

// Internal returns the wrapped server-side error, if any.
func (e *EncodedError) Internal() error {
	return e.internal
}

// NewEncodedError builds an encoded error with an explicit status and code.
func NewEncodedError(httpStatus int, code, message string) *EncodedError {
	return &EncodedError{
		HTTPStatusCode: httpStatus,
		ActualError: ErrorResponse{
			Code:    code,
			Message: message,
		},
	}
}

// NotFound reports a required fetch that returned zero records.
func NotFound(sourcePath string) *EncodedError {
	return NewEncodedError(http.StatusNotFound, CodeNotFound,
		fmt.Sprintf("no record found for query %s", sourcePath))
}

// MultipleResults reports a fetch that must return exactly one record but
// returned several.
func MultipleResults(sourcePath string) *EncodedError {
	return NewEncodedError(http.StatusBadRequest, CodeMultipleResults,
		fmt.Sprintf("%s returns multiple results", sourcePath))
}

// upstreamPassthroughStatuses are backend statuses forwarded to the client
// unchanged; every other backend error collapses to a 500.
var upstreamPassthroughStatuses = map[int]struct{}{
	http.StatusBadRequest: {},
	http.StatusForbidden:  {},
	http.StatusNotFound:   {},
}

// Upstream reports an error status returned by a backend service. Statuses
// 400, 403 and 404 pass through; anything else maps to a 500.
func Upstream(backendStatus int, message, sourcePath string) *EncodedError {
	status := http.StatusInternalServerError
	if _, ok := upstreamPassthroughStatuses[backendStatus]; ok {
		status = backendStatus
	}
	if strings.TrimSpace(message) == "" {
		message = fmt.Sprintf("request to %s failed with status %d", sourcePath, backendStatus)
	}
	return NewEncodedError(status, CodeUpstreamError, message)
}

// Transport reports a connection, timeout or body-parse failure. It is
// indistinguishable from a backend 5xx as far as the client is concerned.
func Transport(err error, sourcePath string) *EncodedError {
	e := NewEncodedError(http.StatusInternalServerError, CodeTransportError,
		fmt.Sprintf("request to %s failed", sourcePath))
	e.internal = err
	return e
}

// UnprocessableInput reports a workflow-level semantic rejection with a
// typed reason code, e.g. "user.not-found".
func UnprocessableInput(reason, message string) *EncodedError {
	return NewEncodedError(http.StatusUnprocessableEntity, CodeUnprocessableInput,
		fmt.Sprintf("%s: %s", reason, message))
}

// Internal hides an unexpected server-side error behind a generic message.
// The original error is retained, with stack, for logging only.
func Internal(public string, err error) *EncodedError {
	if public == "" {
		public = InternalServerErrorMsg
	}
	e := NewEncodedError(http.StatusInternalServerError, CodeInternalError, public)
	if err != nil {
		e.internal = goerrors.Wrap(err, 1)
	}
	return e
}

// FromError normalizes any error into an EncodedError. Already-encoded
// errors are returned as-is so codes survive wrapping.
func FromError(err error) *EncodedError {
	var encoded *EncodedError
	if errors.As(err, &encoded) {
		return encoded
	}
	return Internal("", err)
}

// Aggregate combines the failures of independent branches into one error:
// the numerically highest status wins and messages are comma-joined. The
// numeric-max rule is kept for compatibility with existing clients.
func Aggregate(failures []*EncodedError) *EncodedError {
	if len(failures) == 0 {
		return nil
	}
	worst := 0
	messages := make([]string, 0, len(failures))
	for _, f := range failures {
		if f.HTTPStatusCode > worst {
			worst = f.HTTPStatusCode
		}
		if f.ActualError.Message != "" {
			messages = append(messages, f.ActualError.Message)
		}
	}
	if worst < http.StatusBadRequest {
		worst = http.StatusInternalServerError
	}
	message := strings.Join(messages, ",")
	if message == "" {
		message = InternalServerErrorMsg
	}
	return NewEncodedError(worst, CodeUpstreamError, message)
}
