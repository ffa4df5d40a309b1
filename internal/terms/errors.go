package terms

import (
	"errors"
	"fmt"
)

// Code is the machine-readable reason attached to a rejected mutation.
type Code string

const (
	CodeInvalidTerm Code = "INVALID_TERM"
	CodeBadRegex    Code = "BAD_REGEX"
	CodeNotFound    Code = "NOT_FOUND"
	CodeTermsLimit  Code = "TERMS_LIMIT"
)

var (
	// ErrInvalidTerm is matched by every [ValidationError] with [CodeInvalidTerm].
	ErrInvalidTerm = errors.New("terms: invalid term")

	// ErrBadRegex is matched by every [ValidationError] with [CodeBadRegex].
	ErrBadRegex = errors.New("terms: regex pattern is invalid")

	// ErrNotFound is returned by update and delete for an unknown id.
	ErrNotFound = errors.New("terms: entry not found")

	// ErrDuplicateID is returned by Add when the payload carries an id that
	// already exists. It is also an [ErrInvalidTerm].
	ErrDuplicateID = errors.New("terms: entry with that id already exists")

	// ErrTermsLimit is matched by every [LimitError].
	ErrTermsLimit = errors.New("terms: entry limit exceeded")
)

// ValidationError reports why a payload or mutation was rejected.
type ValidationError struct {
	Code   Code
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := "terms: " + string(e.Code)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the sentinel for e.Code alongside the underlying cause, so
// both errors.Is(err, ErrBadRegex) and errors.As(err, &syntaxErr) work.
func (e *ValidationError) Unwrap() []error {
	errs := make([]error, 0, 2)
	switch e.Code {
	case CodeInvalidTerm:
		errs = append(errs, ErrInvalidTerm)
	case CodeBadRegex:
		errs = append(errs, ErrBadRegex)
	case CodeNotFound:
		errs = append(errs, ErrNotFound)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func invalid(reason string) *ValidationError {
	return &ValidationError{Code: CodeInvalidTerm, Reason: reason}
}

func notFound(id string) *ValidationError {
	return &ValidationError{Code: CodeNotFound, Reason: fmt.Sprintf("id %q", id)}
}

// LimitError is returned when a mutation would push the store past its
// configured entry ceiling.
type LimitError struct {
	Max int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("terms: %s: store holds at most %d entries", CodeTermsLimit, e.Max)
}

func (e *LimitError) Unwrap() error { return ErrTermsLimit }

// CodeOf returns the [Code] carried by err, or "" when err did not originate
// from validation or limit checks.
func CodeOf(err error) Code {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	var le *LimitError
	if errors.As(err, &le) {
		return CodeTermsLimit
	}
	return ""
}
