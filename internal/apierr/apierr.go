// Package apierr defines the typed error taxonomy shared by every HTTP
// handler. Handlers return a *apierr.Error (or a plain error, treated as
// internal) and the httpserver layer maps it to a status code and the
// v1/v2 response envelope.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of domain error, independent of the wire format
// used to report it.
type Kind string

const (
	KindValidationError    Kind = "ValidationError"
	KindPermissionDenied   Kind = "PermissionDenied"
	KindNotFound           Kind = "NotFound"
	KindConflict           Kind = "Conflict"
	KindNoFreeIPs          Kind = "NoFreeIPs"
	KindPDSizeLimit        Kind = "PDSizeLimit"
	KindImageNotAvailable  Kind = "ImageNotAvailable"
	KindRegistryError      Kind = "RegistryError"
	KindCommandIsMissing   Kind = "CommandIsMissing"
	KindInternalAPIError   Kind = "InternalAPIError"
	KindInvalidAPIVersion  Kind = "InvalidAPIVersion"
	KindBillingError       Kind = "BillingError"
	KindMaintenanceMode    Kind = "MaintenanceMode"
	KindTooManyRequests    Kind = "TooManyRequests"
)

var statusByKind = map[Kind]int{
	KindValidationError:   http.StatusUnprocessableEntity,
	KindPermissionDenied:  http.StatusForbidden,
	KindNotFound:          http.StatusNotFound,
	KindConflict:          http.StatusConflict,
	KindNoFreeIPs:         http.StatusConflict,
	KindPDSizeLimit:       http.StatusUnprocessableEntity,
	KindImageNotAvailable: http.StatusUnprocessableEntity,
	KindRegistryError:     http.StatusBadGateway,
	KindCommandIsMissing:  http.StatusBadRequest,
	KindInternalAPIError:  http.StatusInternalServerError,
	KindInvalidAPIVersion: http.StatusBadRequest,
	KindBillingError:      http.StatusPaymentRequired,
	KindMaintenanceMode:   http.StatusServiceUnavailable,
	KindTooManyRequests:   http.StatusTooManyRequests,
}

// Error is a typed domain error carrying a Kind, a client-safe Message, and
// an optional wrapped cause that is logged but never shown to a non-admin.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Status returns the HTTP status code for this error's Kind.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New builds an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error that wraps an underlying cause. The cause is never
// shown to a non-admin caller.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NotFound is a convenience constructor for a "<kind> <id> not found" error.
func NotFound(kind, id string) *Error {
	return New(KindNotFound, fmt.Sprintf("%s %q not found", kind, id))
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Resolve converts any error into an *Error suitable for a response,
// defaulting unclassified errors to KindInternalAPIError.
func Resolve(err error) *Error {
	if e, ok := As(err); ok {
		return e
	}
	return &Error{Kind: KindInternalAPIError, Message: "Internal error, please contact administrator", Cause: err}
}
