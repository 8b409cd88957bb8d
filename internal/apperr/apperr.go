// Package apperr holds the error taxonomy shared by the ingestion, send and
// broadcast pipelines and its mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindAuthentication Kind = "authentication"
	KindUpstreamSend   Kind = "upstream_send"
	KindPersistence    Kind = "persistence"
	KindConfiguration  Kind = "configuration"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

func Authentication(message string) *Error {
	return &Error{Kind: KindAuthentication, Message: message}
}

func Upstream(err error) *Error {
	return &Error{Kind: KindUpstreamSend, Message: "platform send failed", Err: err}
}

func Persistence(err error) *Error {
	return &Error{Kind: KindPersistence, Message: "storage operation failed", Err: err}
}

func Configuration(message string) *Error {
	return &Error{Kind: KindConfiguration, Message: message}
}

// KindOf reports the kind of the first *Error in err's chain. Errors outside
// the taxonomy are treated as persistence failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPersistence
}

func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindUpstreamSend:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to return to API callers.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
