// Package coreerrors implements the error taxonomy of spec §7 as a closed
// set of error kinds carried by a structured CoreError, grounded on the
// teacher's pkg/errors package. The rollback path and other control flow in
// this repository branch on Kind, never on exceptions.
package coreerrors

import (
	"fmt"
	"time"
)

// Kind is the closed error taxonomy of spec §7.
type Kind string

const (
	KindTransientNetwork    Kind = "TRANSIENT_NETWORK"
	KindVenueRejection      Kind = "VENUE_REJECTION"
	KindDesync              Kind = "DESYNC"
	KindCrossedBook         Kind = "CROSSED_BOOK"
	KindTimeout             Kind = "TIMEOUT"
	KindConfigError         Kind = "CONFIG_ERROR"
	KindInvariantViolation  Kind = "INVARIANT_VIOLATION"
)

// Severity mirrors the teacher's ErrorSeverity levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func severityForKind(k Kind) Severity {
	switch k {
	case KindTransientNetwork:
		return SeverityLow
	case KindVenueRejection, KindTimeout, KindDesync, KindCrossedBook:
		return SeverityMedium
	case KindInvariantViolation:
		return SeverityCritical
	case KindConfigError:
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

// CoreError is the structured error type used throughout the core.
// Propagation policy (spec §7): transient errors recover locally where
// possible; everything else surfaces to the orchestrator of the enclosing
// operation (feed loop, trade execution) and is reported via metrics/alert
// channels — no silent failure.
type CoreError struct {
	Kind      Kind
	Message   string
	Details   map[string]interface{}
	Severity  Severity
	Timestamp time.Time
	Cause     error
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (caused by: %v)", e.Kind, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Severity, e.Message)
}

func (e *CoreError) Unwrap() error { return e.Cause }

// WithDetail attaches a structured detail field, returning e for chaining.
func (e *CoreError) WithDetail(key string, value interface{}) *CoreError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New constructs a CoreError of the given kind.
func New(kind Kind, message string) *CoreError {
	return &CoreError{
		Kind:      kind,
		Message:   message,
		Severity:  severityForKind(kind),
		Timestamp: time.Now(),
	}
}

// Newf constructs a CoreError with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *CoreError {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap attaches kind/message context to an existing error as its cause.
func Wrap(err error, kind Kind, message string) *CoreError {
	if err == nil {
		return nil
	}
	ce := New(kind, message)
	ce.Cause = err
	return ce
}

// Is reports whether err's chain contains a CoreError of the given kind.
func Is(err error, kind Kind) bool {
	var ce *CoreError
	if As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// As finds the first CoreError in err's chain.
func As(err error, target **CoreError) bool {
	for err != nil {
		if ce, ok := err.(*CoreError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err is not (or does not wrap)
// a CoreError.
func KindOf(err error) Kind {
	var ce *CoreError
	if As(err, &ce) {
		return ce.Kind
	}
	return ""
}
