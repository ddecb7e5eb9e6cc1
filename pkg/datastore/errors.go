package datastore

import (
	"errors"
	"fmt"
)

// ErrorCode is the structured failure code reported by store backends.
type ErrorCode string

const (
	// CodeNotFound indicates the requested key does not exist.
	CodeNotFound ErrorCode = "not_found"
	// CodeThrottled indicates the remote store rejected the call due to
	// rate limiting or quota exhaustion.
	CodeThrottled ErrorCode = "throttled"
	// CodeValidation indicates a malformed key, value or payload size.
	CodeValidation ErrorCode = "validation"
	// CodeConflict indicates a concurrent modification was detected.
	CodeConflict ErrorCode = "conflict"
	// CodeUnavailable indicates a connectivity or timeout failure.
	CodeUnavailable ErrorCode = "unavailable"
	// CodeInternal indicates an unclassified backend failure.
	CodeInternal ErrorCode = "internal"
)

// StoreError is the typed failure returned by store backends.
type StoreError struct {
	Code   ErrorCode
	Op     string
	Target Target
	Err    error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("datastore %s %s: %s: %v", e.Op, e.Target, e.Code, e.Err)
	}

	return fmt.Sprintf("datastore %s %s: %s", e.Op, e.Target, e.Code)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError builds a StoreError for the given operation and target.
func NewStoreError(code ErrorCode, op string, target Target, err error) *StoreError {
	return &StoreError{Code: code, Op: op, Target: target, Err: err}
}

// CodeOf extracts the structured code from an error chain. Returns CodeInternal
// and false when no StoreError is present.
func CodeOf(err error) (ErrorCode, bool) {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Code, true
	}

	return CodeInternal, false
}

// IsNotFound reports whether the error chain carries CodeNotFound.
func IsNotFound(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == CodeNotFound
}
