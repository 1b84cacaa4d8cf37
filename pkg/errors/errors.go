// Package errors carries typed application errors and the HTTP metadata the
// response layer derives from their codes.
package errors

import (
	stdErrors "errors"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeInvalidPlateFormat  Code = "INVALID_PLATE_FORMAT"
	CodeInvalidTaxID        Code = "INVALID_TAX_ID"
	CodeProviderUnavailable Code = "PROVIDER_UNAVAILABLE"
	CodePaymentNotConfirmed Code = "PAYMENT_NOT_CONFIRMED"
	CodeInvalidAccessToken  Code = "INVALID_ACCESS_TOKEN"
)

// Metadata says how a code is rendered. DetailsAllowed gates whether the
// error's details reach the client.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	final     = false
	retryable = true
	opaque    = false
	detailed  = true
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, final, "validation failed", detailed},
	CodeUnauthorized:  {http.StatusUnauthorized, final, "authentication required", opaque},
	CodeForbidden:     {http.StatusForbidden, final, "access denied", opaque},
	CodeNotFound:      {http.StatusNotFound, final, "resource not found", opaque},
	CodeConflict:      {http.StatusConflict, final, "conflict detected", opaque},
	CodeStateConflict: {http.StatusUnprocessableEntity, final, "state transition disallowed", detailed},
	CodeIdempotency:   {http.StatusConflict, final, "idempotency key reused", detailed},
	CodeRateLimit:     {http.StatusTooManyRequests, final, "rate limit exceeded", opaque},
	CodeInternal:      {http.StatusInternalServerError, retryable, "internal server error", opaque},
	CodeDependency:    {http.StatusServiceUnavailable, retryable, "dependency unavailable", detailed},

	CodeInvalidPlateFormat:  {http.StatusBadRequest, final, "invalid plate format", detailed},
	CodeInvalidTaxID:        {http.StatusBadRequest, final, "invalid CPF", detailed},
	CodeProviderUnavailable: {http.StatusBadGateway, retryable, "upstream provider unavailable", detailed},
	CodePaymentNotConfirmed: {http.StatusPaymentRequired, retryable, "payment not confirmed", opaque},
	CodeInvalidAccessToken:  {http.StatusNotFound, final, "invalid access token", opaque},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// PublicMessageFor picks the client-facing message. Internal and dependency
// failures never leak their own text.
func PublicMessageFor(err *Error) string {
	code := err.Code()
	if code == CodeInternal || code == CodeDependency || err.Message() == "" {
		return MetadataFor(code).PublicMessage
	}
	return err.Message()
}

// IsRetryable reports whether a caller may repeat the operation unchanged.
// Untyped errors count as internal and so as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return MetadataFor(As(err).Code()).Retryable
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap keeps err reachable through errors.Is and errors.As.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// Code is CodeInternal on a nil receiver, as are the other accessors' zero
// values.
func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the first *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
