package domain

import (
	"errors"
	"fmt"
)

// ErrEpochNotReady is returned when a send is attempted while the group has
// an unmerged pending commit. Callers surface it; it is never retried
// automatically.
var ErrEpochNotReady = errors.New("group epoch not ready: pending commit unmerged")

// TransientError marks a network failure worth retrying with backoff.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError for op.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ProtocolViolation marks a malformed or out-of-policy envelope. The
// offending envelope is discarded and logged; never fatal.
type ProtocolViolation struct {
	Reason string
	Err    error
}

func (e *ProtocolViolation) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol violation: %s: %v", e.Reason, e.Err)
	}
	return "protocol violation: " + e.Reason
}
func (e *ProtocolViolation) Unwrap() error { return e.Err }

// Violation builds a ProtocolViolation with an optional cause.
func Violation(reason string, err error) error {
	return &ProtocolViolation{Reason: reason, Err: err}
}

// IsViolation reports whether err is (or wraps) a ProtocolViolation.
func IsViolation(err error) bool {
	var pv *ProtocolViolation
	return errors.As(err, &pv)
}

// StorageError marks a backend I/O failure. Fatal for the affected
// operation, surfaced to the user; the process continues.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// Storage wraps err as a StorageError for op.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
