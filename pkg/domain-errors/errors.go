// Package dErrors provides coded domain errors. Services construct these at
// trust boundaries; the transport layer translates codes to HTTP statuses.
// Infrastructure facts (store misses, conflicts) travel as sentinel errors and
// are translated into coded errors by the owning service.
package dErrors

import (
	"errors"
	"net/http"
)

// Code classifies a domain error for callers and the transport layer.
type Code string

const (
	CodeInvalidArgument    Code = "invalid_argument"
	CodeUnauthorized       Code = "unauthorized"
	CodeAlreadyExists      Code = "already_exists"
	CodeNotFound           Code = "not_found"
	CodeLimitExceeded      Code = "limit_exceeded"
	CodeInsufficientFunds  Code = "insufficient_funds"
	CodeAlreadyInitialized Code = "already_initialized"
	CodeInternal           Code = "internal"
)

// Error is a coded domain error. The wrapped cause, when present, stays
// available to errors.Is/As chains.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a coded error with no cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var domainErr *Error
	for errors.As(err, &domainErr) {
		if domainErr.Code == code {
			return true
		}
		err = domainErr.Unwrap()
		if err == nil {
			return false
		}
	}
	return false
}

// CodeOf returns the outermost code carried by err, or CodeInternal when err
// is not a coded error.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain error code to an HTTP status code.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeAlreadyExists:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeLimitExceeded:
		return http.StatusUnprocessableEntity
	case CodeInsufficientFunds:
		return http.StatusUnprocessableEntity
	case CodeAlreadyInitialized:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
