package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an orchestration failure
type Kind string

const (
	KindValidation      Kind = "validation"
	KindAuth            Kind = "auth"
	KindNotFound        Kind = "not_found"
	KindExternalService Kind = "external_service"
	KindNetwork         Kind = "network"
	KindTimedOut        Kind = "timed_out"
)

// Error is a classified error raised by the gateway, the gate, the launcher or a poller
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Status  int // HTTP status when the error came from a response
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports a client-side precondition failure
func Validation(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// Network wraps a transport failure
func Network(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Message: "request failed", Err: err}
}

// TimedOut reports an exhausted poll budget
func TimedOut(op string, attempts int) *Error {
	return &Error{Kind: KindTimedOut, Op: op, Message: fmt.Sprintf("no terminal status after %d attempts", attempts)}
}

// ExternalService reports a failure on the generation side
func ExternalService(op, message string) *Error {
	return &Error{Kind: KindExternalService, Op: op, Message: message}
}

// FromStatus classifies a non-2xx HTTP response
func FromStatus(op string, status int, body string) *Error {
	kind := KindExternalService
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindAuth
	case http.StatusNotFound:
		kind = KindNotFound
	}
	return &Error{
		Kind:    kind,
		Op:      op,
		Status:  status,
		Message: fmt.Sprintf("status %d: %s", status, body),
	}
}

// KindOf returns the Kind of err, or "" when err carries none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err is classified as kind
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Transient reports whether a failed status fetch should just schedule the next attempt
func Transient(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindExternalService:
		return true
	}
	return false
}
