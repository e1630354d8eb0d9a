// Package reconerr defines the error kinds surfaced by the reconciliation engine.
//
// Domain packages declare their own snake_case sentinels through the
// constructors below; every sentinel matches both itself and its kind with
// errors.Is, so callers can branch on the kind without knowing every code.
package reconerr

import "errors"

var (
	ErrValidation   = errors.New("validation_error")
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid_state")
	ErrPrecondition = errors.New("precondition_failed")
	ErrNoCandidate  = errors.New("no_candidate")
)

type kindError struct {
	kind error
	code string
}

func (e *kindError) Error() string { return e.code }

func (e *kindError) Unwrap() error { return e.kind }

func newKind(kind error, code string) error {
	return &kindError{kind: kind, code: code}
}

func Validation(code string) error   { return newKind(ErrValidation, code) }
func NotFound(code string) error     { return newKind(ErrNotFound, code) }
func Conflict(code string) error     { return newKind(ErrConflict, code) }
func InvalidState(code string) error { return newKind(ErrInvalidState, code) }
func Precondition(code string) error { return newKind(ErrPrecondition, code) }
func NoCandidate(code string) error  { return newKind(ErrNoCandidate, code) }

// Kind returns the kind sentinel err belongs to, or nil for errors outside
// the taxonomy (storage failures, cancellations).
func Kind(err error) error {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrInvalidState, ErrPrecondition, ErrNoCandidate} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Code returns the snake_case code carried by err, falling back to the kind.
func Code(err error) string {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.code
	}
	if kind := Kind(err); kind != nil {
		return kind.Error()
	}
	return ""
}
