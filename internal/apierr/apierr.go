//    \\ SPIKE: Secure your secrets with SPIFFE.
//  \\\\\ Copyright 2024-present SPIKE contributors.
// \\\\\\\ SPDX-License-Identifier: Apache-2.0

// Package apierr defines the error taxonomy shared by every request
// pipeline and its mapping onto HTTP status codes, per the error handling
// design: cryptographic authentication failures and I/O errors always
// surface as Internal, never as a silent boolean.
package apierr

import (
	"errors"
	"net/http"
)

// Kind enumerates the error categories the core can raise.
type Kind string

const (
	BadRequest          Kind = "bad_request"
	Unauthorized        Kind = "unauthorized"
	NotFound            Kind = "not_found"
	DuplicateCommitment Kind = "duplicate_commitment"
	Gone                Kind = "gone"
	Internal            Kind = "internal"
)

// Error is the typed error every pipeline function returns instead of a
// bare error, so that callers never have to sniff error strings to decide
// on an HTTP status.
type Error struct {
	Kind   Kind
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Detail + ": " + e.cause.Error()
	}
	return e.Detail
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

// New constructs an Error of the given kind with a client-visible detail
// message.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap constructs an Internal error that carries an underlying cause not
// meant for client eyes; the detail is a generic, safe message.
func Wrap(cause error, detail string) *Error {
	return &Error{Kind: Internal, Detail: detail, cause: cause}
}

// Status maps an error Kind onto the HTTP status code the spec requires.
func Status(kind Kind) int {
	switch kind {
	case BadRequest:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case DuplicateCommitment:
		return http.StatusConflict
	case Gone:
		return http.StatusGone
	case Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// As is a thin convenience wrapper over errors.As for *Error, used by HTTP
// adapters that receive a plain error from deeper library code.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
