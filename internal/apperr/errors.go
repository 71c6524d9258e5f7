// Package apperr provides the structured error taxonomy used across the
// hybrid memory server: InvalidInput, NotFound, Internal, CorruptionTolerable,
// and RecoverableBackground errors.
package apperr

import "fmt"

// Kind classifies an error for response translation and logging policy.
type Kind string

const (
	// InvalidInput covers missing/empty/malformed caller input. No state change.
	InvalidInput Kind = "INVALID_INPUT"
	// NotFound covers an absent memory, document, or path.
	NotFound Kind = "NOT_FOUND"
	// Internal covers unexpected KV, serialization, or I/O failures.
	Internal Kind = "INTERNAL_ERROR"
	// CorruptionTolerable covers bad embedding lengths, orphan keys, dangling
	// edges: skipped at read time, repaired by maintenance, never surfaced
	// to callers as a failure.
	CorruptionTolerable Kind = "CORRUPTION_TOLERABLE"
	// RecoverableBackground covers maintenance-loop errors: logged and
	// retried on the next tick, never abort the process.
	RecoverableBackground Kind = "RECOVERABLE_BACKGROUND"
)

// Error is the tagged error type returned by core packages. The HTTP and
// stdio collaborators translate Kind into a response/protocol code; nothing
// in the core depends on that translation.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on Kind so errors.Is(err, apperr.New(apperr.NotFound, "", nil)) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds a tagged error.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetail attaches a key/value detail and returns the error for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func Invalid(message string) *Error { return New(InvalidInput, message, nil) }
func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...), nil)
}
func Internalf(cause error, format string, args ...any) *Error {
	return New(Internal, fmt.Sprintf(format, args...), cause)
}

// HTTPStatus maps a Kind to the canonical HTTP status from spec.md §7.
func (k Kind) HTTPStatus() int {
	switch k {
	case InvalidInput:
		return 400
	case NotFound:
		return 404
	default:
		return 500
	}
}
