package kibana

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the bridge can surface to a caller.
// All backend and transport faults are normalized to one of these at the
// client boundary; no raw *url.Error or json error crosses into the dispatcher.
type Kind string

const (
	// KindConfiguration indicates missing/invalid credentials or base URL.
	// The process cannot start; never produced mid-request.
	KindConfiguration Kind = "configuration"
	// KindValidation indicates malformed tool arguments. No I/O was performed.
	KindValidation Kind = "validation"
	// KindAuth indicates the backend rejected the configured credentials (401/403).
	KindAuth Kind = "auth"
	// KindNotFound indicates the referenced alert does not exist (404).
	KindNotFound Kind = "not_found"
	// KindConflict indicates a version mismatch on a conditional write (409).
	// Terminal: the caller may re-fetch and retry, this layer does not.
	KindConflict Kind = "conflict"
	// KindBackend covers any other non-success status, malformed response
	// body, or transport failure (timeout, connection refused).
	KindBackend Kind = "backend"
	// KindUnknownTool indicates an invocation name that is not registered.
	KindUnknownTool Kind = "unknown_tool"
)

// Error is the normalized failure type for all bridge operations.
// Message is safe to show to the caller: concise, no stack traces,
// no internal identifiers.
type Error struct {
	Kind    Kind
	Message string
	Err     error // underlying cause, for logs only
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a normalized error with a formatted message.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a normalized error carrying an underlying cause.
func WrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Describe extracts the kind and caller-safe message from any error.
// Unclassified errors are reported as backend faults with a generic message,
// so internal details never leak into a tool result.
func Describe(err error) (Kind, string) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, e.Message
	}
	return KindBackend, "unexpected backend failure"
}

// KindOf returns the kind of a normalized error, or KindBackend for
// anything unclassified.
func KindOf(err error) Kind {
	k, _ := Describe(err)
	return k
}
