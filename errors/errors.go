package errors

import (
	"encoding/json"
	"errors"
)

// ErrorCode represents a specific error code.
type ErrorCode string

// ErrorKind groups error codes by how callers are expected to react to them.
type ErrorKind string

const (
	// KindTransientFetch is a network or API failure while polling. Retried on the next cycle.
	KindTransientFetch ErrorKind = "transient"
	// KindSigning means the signer is unavailable or the user declined to sign.
	KindSigning ErrorKind = "signing"
	// KindSubmission means the broadcast was rejected.
	KindSubmission ErrorKind = "submission"
	// KindValidation is a malformed request or replacement target. Never retried.
	KindValidation ErrorKind = "validation"
	// KindUnknown is used for errors that did not originate from this module.
	KindUnknown ErrorKind = "unknown"
)

// ErrorResponse represents an error response structure.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Details string    `json:"details,omitempty"`
	Kind    ErrorKind `json:"kind,omitempty"`

	cause error
}

// Error implements the error interface for ErrorResponse.
func (e *ErrorResponse) Error() string {
	errorJSON, _ := json.Marshal(e)
	return string(errorJSON)
}

// Unwrap exposes the underlying cause attached with WithCause.
func (e *ErrorResponse) Unwrap() error {
	return e.cause
}

// Is matches any ErrorResponse carrying the same code, so sentinel values
// keep working with errors.Is after WithCause produced a copy.
func (e *ErrorResponse) Is(target error) bool {
	t, ok := target.(*ErrorResponse)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the response with the cause attached and its
// message appended to the details.
func (e *ErrorResponse) WithCause(cause error) *ErrorResponse {
	cp := *e
	cp.cause = cause
	if cause != nil {
		if cp.Details != "" {
			cp.Details = cp.Details + ": " + cause.Error()
		} else {
			cp.Details = cause.Error()
		}
	}
	return &cp
}

// KindOf returns the kind of the first ErrorResponse found in the chain.
func KindOf(err error) ErrorKind {
	var resp *ErrorResponse
	if errors.As(err, &resp) && resp.Kind != "" {
		return resp.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether a retry with backoff makes sense for err.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransientFetch
}

// CreateErrorResponseFromError creates an ErrorResponse from a generic error.
func CreateErrorResponseFromError(err error) error {
	if err == nil {
		return nil
	}
	var errResp *ErrorResponse
	if errors.As(err, &errResp) {
		return errResp
	}
	return &ErrorResponse{
		Code:    "0",
		Details: err.Error(),
		Kind:    KindUnknown,
	}
}
