// Package cerr defines the compile-time error taxonomy shared by every
// compilation stage. All compile failures are non-retryable and carry the
// identity of the offending component, operation, or scope so that users can
// locate the problem in their pipeline source. Compilation halts on the first
// error; no partial document is ever emitted.
package cerr

import (
	"errors"
	"fmt"
)

// Kind classifies a compile failure.
type Kind string

const (
	MalformedComponent               Kind = "MalformedComponent"
	UnknownReference                 Kind = "UnknownReference"
	InvalidNesting                   Kind = "InvalidNesting"
	CyclicDependency                 Kind = "CyclicDependency"
	UnboundRequiredInput             Kind = "UnboundRequiredInput"
	TypeMismatch                     Kind = "TypeMismatch"
	DuplicateOperationAfterSuffixing Kind = "DuplicateOperationAfterSuffixing"
	UnresolvedPlaceholder            Kind = "UnresolvedPlaceholder"
)

// Error is a compile failure. Subject names the component, operation, or
// scope the failure was detected on.
type Error struct {
	Kind    Kind
	Subject string
	Detail  string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Subject, e.Detail)
}

// New constructs a compile error for the given subject.
func New(kind Kind, subject, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Subject: subject,
		Detail:  fmt.Sprintf(format, args...),
	}
}

// KindOf returns the Kind of err if it is (or wraps) a compile error, and
// the empty string otherwise.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
