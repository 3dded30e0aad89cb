package study

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyPack reports that no content was available to compose a pack.
// It describes a normal outcome and is never returned as a failure.
var ErrEmptyPack = errors.New("no items available today")

// NotFoundError is returned when a referenced item, user or session does
// not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Kind + " not found"
	}
	return e.Kind + " not found: " + e.ID
}

// ValidationError is returned for malformed input. It is always raised
// before any state is mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UserFailure records why one user's part of a batch did not complete.
type UserFailure struct {
	UserID string `json:"userId"`
	Err    error  `json:"-"`
}

func (f UserFailure) Error() string {
	return f.UserID + ": " + f.Err.Error()
}

func (f UserFailure) Unwrap() error {
	return f.Err
}

// PartialBatchFailure reports the users that failed during a batch run.
// The rest of the batch is still committed.
type PartialBatchFailure struct {
	RunID    string
	Failures []UserFailure
}

func (e *PartialBatchFailure) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("batch %s: %d user(s) failed: %s", e.RunID, len(e.Failures), strings.Join(msgs, "; "))
}

func (e *PartialBatchFailure) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
