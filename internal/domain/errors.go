package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("case not found")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrBlobNotFound      = errors.New("blob not found")
	ErrBatchNotFound     = errors.New("batch not found")
	ErrInvalidFilter     = errors.New("invalid filter expression")
	ErrInvalidStatus     = errors.New("unknown status")
)

// TransitionError is returned when an adjudication asks for a status change
// the operator state machine does not allow.
type TransitionError struct {
	CaseID string
	From   Status
	To     Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("case %s: cannot move from %s to %s", e.CaseID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// TransportError means the Analysis Service could not be reached or did not
// return a readable response. The case set is left as it was.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("analysis service %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError carries a structured error reported by the Analysis
// Service. Message is shown to the operator verbatim.
type MalformedResponseError struct {
	Message string
}

func (e *MalformedResponseError) Error() string {
	return e.Message
}

// PersistenceError means a durable write failed. The in-memory state already
// reflects the mutation.
type PersistenceError struct {
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsPersistenceError reports whether err is (or wraps) a PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
