package main

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
)

// ErrorKind classifies every failure the service reports to clients.
type ErrorKind string

const (
	KindInvalidInput        ErrorKind = "INVALID_INPUT"
	KindUnauthorized        ErrorKind = "UNAUTHORIZED"
	KindNotFound            ErrorKind = "NOT_FOUND"
	KindConflict            ErrorKind = "CONFLICT"
	KindUpstreamUnavailable ErrorKind = "UPSTREAM_UNAVAILABLE"
	KindUpstreamRejected    ErrorKind = "UPSTREAM_REJECTED"
	KindInternal            ErrorKind = "INTERNAL_ERROR"
)

// Status returns the HTTP status code for the kind.
func (k ErrorKind) Status() int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUpstreamRejected:
		return http.StatusBadGateway
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AppError is an error with a client-visible kind and message. Err holds the
// underlying cause, which is logged but never sent to clients.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func newAppError(kind ErrorKind, msg string) *AppError {
	return &AppError{Kind: kind, Message: msg}
}

func wrapAppError(kind ErrorKind, err error, msg string) *AppError {
	return &AppError{Kind: kind, Message: msg, Err: err}
}

func errInvalidInput(msg string) *AppError { return newAppError(KindInvalidInput, msg) }

func errNotFound(id string) *AppError {
	return newAppError(KindNotFound, "Product not found: "+id)
}

func errConflict(id string) *AppError {
	return newAppError(KindConflict, "Product already exists: "+id)
}

// kindOf reports the kind of err; errors outside the taxonomy are internal.
func kindOf(err error) ErrorKind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// isTimeout reports whether err came from an expired deadline.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
