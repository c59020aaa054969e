package core

import (
	"errors"
	"fmt"
)

var (
	ErrValidation  = errors.New("validation failed")
	ErrUpstream    = errors.New("upstream request failed")
	ErrPersistence = errors.New("persistence failed")
)

// Error carries the operation that failed, the error kind (one of the
// sentinel errors above) and the underlying cause.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match on the kind as well as anywhere in the cause chain.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func NewValidationError(op, msg string) *Error {
	return &Error{Op: op, Kind: ErrValidation, Err: errors.New(msg)}
}

func NewUpstreamError(op string, err error) *Error {
	return &Error{Op: op, Kind: ErrUpstream, Err: err}
}

func NewPersistenceError(op string, err error) *Error {
	return &Error{Op: op, Kind: ErrPersistence, Err: err}
}

// KindOf returns the sentinel kind of err, or nil when err is not a *Error.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}
