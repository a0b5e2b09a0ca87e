// Package apperr defines the error taxonomy shared by the identity service,
// the request gates and the HTTP layer. Every error carries a Kind, which
// decides the HTTP status, and a stable machine-readable Code that clients
// branch on independently of the human message.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindNotFound
	KindAlreadyExists
	KindTooManyRequests
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindTooManyRequests:
		return "too_many_requests"
	default:
		return "internal"
	}
}

const (
	CodeAuthTokenNotFound      = "AUTH_TOKEN_NOT_FOUND"
	CodeInvalidToken           = "INVALID_TOKEN"
	CodeAccessUnauthorized     = "ACCESS_UNAUTHORIZED"
	CodeAuthUserNotFound       = "AUTH_USER_NOT_FOUND"
	CodeAuthEmailAlreadyExists = "AUTH_EMAIL_ALREADY_EXISTS"
	CodeAuthInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeVerificationError      = "VERIFICATION_ERROR"
	CodeResourceNotFound       = "RESOURCE_NOT_FOUND"
	CodeValidationError        = "VALIDATION_ERROR"
	CodeTooManyAttempts        = "AUTH_TOO_MANY_ATTEMPTS"
	CodeInternal               = "INTERNAL_SERVER_ERROR"
	CodeMFAInvalidCode         = "MFA_INVALID_CODE"
	CodeRoleNotFound           = "ROLE_NOT_FOUND"
)

// Sentinels for errors.Is matching on kind alone.
var (
	ErrBadRequest      = &Error{Kind: KindBadRequest}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrAlreadyExists   = &Error{Kind: KindAlreadyExists}
	ErrTooManyRequests = &Error{Kind: KindTooManyRequests}
	ErrInternal        = &Error{Kind: KindInternal}
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match when target is an *Error of the same kind whose code,
// if set, also matches.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func BadRequest(code, message string) *Error {
	if code == "" {
		code = CodeValidationError
	}
	return newError(KindBadRequest, code, message)
}

func Unauthorized(code, message string) *Error {
	if code == "" {
		code = CodeAccessUnauthorized
	}
	return newError(KindUnauthorized, code, message)
}

func NotFound(code, message string) *Error {
	if code == "" {
		code = CodeResourceNotFound
	}
	return newError(KindNotFound, code, message)
}

func AlreadyExists(code, message string) *Error {
	return newError(KindAlreadyExists, code, message)
}

func TooManyRequests(message string) *Error {
	return newError(KindTooManyRequests, CodeTooManyAttempts, message)
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: message, Err: err}
}

// From returns err as an *Error, treating anything untyped as internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("internal server error", err)
}

func KindOf(err error) Kind {
	return From(err).Kind
}

func Status(err error) int {
	switch KindOf(err) {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyExists:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
