package procerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes errors by how the caller has to react to them
type Kind int

const (
	KindUnknown      Kind = iota
	KindInvalidInput      // Bad executable name or folder, do not retry unchanged
	KindNotFound          // Template executable missing, installation problem
	KindIO                // mkdir, copy or spawn failure
	KindLockDegraded      // Registry unusable after a panic, logged only
	KindCleanupFailed     // Artifact could not be deleted, logged only
)

// String returns string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindIO:
		return "io"
	case KindLockDegraded:
		return "lock_degraded"
	case KindCleanupFailed:
		return "cleanup_failed"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("not found")
	ErrIO            = errors.New("io failure")
	ErrLockDegraded  = errors.New("registry lock degraded")
	ErrCleanupFailed = errors.New("artifact cleanup failed")
)

// Error wraps a failure with the operation and resource it concerns
type Error struct {
	Kind       Kind
	Op         string // "place", "launch", "insert", "reclaim", ...
	Path       string
	PID        int
	Err        error
	Suggestion string
}

// Error implements error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(" failed")
	if e.PID > 0 {
		fmt.Fprintf(&b, " for PID %d", e.PID)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " (%s)", e.Path)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	} else {
		fmt.Fprintf(&b, ": %s", e.Kind)
	}
	return b.String()
}

// Unwrap implements error unwrapping
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind
func (e *Error) Is(target error) bool {
	return target != nil && target == sentinel(e.Kind)
}

// New creates an Error of the given kind
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithPath records the filesystem path involved
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithPID records the process involved
func (e *Error) WithPID(pid int) *Error {
	e.PID = pid
	return e
}

// WithSuggestion adds an actionable hint for the user
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// InvalidInput is a shorthand for a KindInvalidInput error with a plain message
func InvalidInput(op, format string, args ...interface{}) *Error {
	return New(KindInvalidInput, op, fmt.Errorf(format, args...))
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// UserMessage renders err for display, appending the suggestion if any
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) && pe.Suggestion != "" {
		return fmt.Sprintf("%v. %s", err, pe.Suggestion)
	}
	return err.Error()
}

func sentinel(k Kind) error {
	switch k {
	case KindInvalidInput:
		return ErrInvalidInput
	case KindNotFound:
		return ErrNotFound
	case KindIO:
		return ErrIO
	case KindLockDegraded:
		return ErrLockDegraded
	case KindCleanupFailed:
		return ErrCleanupFailed
	default:
		return nil
	}
}
