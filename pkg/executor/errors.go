package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harborkv/dsgate/pkg/datastore"
)

// Define static errors
var (
	// ErrBudgetExceeded is returned when admission is denied by the budget tracker
	ErrBudgetExceeded = errors.New("request budget exceeded")
	// ErrCallSuppressed is returned when an active throttle marker suppresses a
	// call and no fallback data is cached
	ErrCallSuppressed = errors.New("call suppressed by throttle marker")
	// ErrRemotePanic is returned when the remote call panicked
	ErrRemotePanic = errors.New("remote call panicked")
)

// Class is the failure classification driving retry policy.
type Class string

const (
	// ClassBudgetExceeded means admission was denied; budget recovers over time
	ClassBudgetExceeded Class = "budget_exceeded"
	// ClassThrottled means the remote store signaled overload
	ClassThrottled Class = "throttled"
	// ClassValidation means the request shape is invalid; never retried
	ClassValidation Class = "validation"
	// ClassNotFound means the key is absent; benign, never retried
	ClassNotFound Class = "not_found"
	// ClassTransientNetwork means a connectivity or timeout failure
	ClassTransientNetwork Class = "transient_network"
	// ClassConflict means a concurrent modification was reported; retried
	// immediately since the data has likely already been refreshed
	ClassConflict Class = "conflict"
	// ClassCancelled means the caller's context ended before the call
	// completed; never retried
	ClassCancelled Class = "cancelled"
	// ClassInternal means an unclassified failure; treated as permanent
	ClassInternal Class = "internal"
)

// Transient reports whether failures of this class are worth retrying.
func (c Class) Transient() bool {
	switch c {
	case ClassBudgetExceeded, ClassThrottled, ClassTransientNetwork, ClassConflict:
		return true
	default:
		return false
	}
}

// ClassifiedError wraps a failure with its classification.
type ClassifiedError struct {
	Class Class
	Err   error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// NewClassifiedError wraps err with an explicit class.
func NewClassifiedError(class Class, err error) *ClassifiedError {
	return &ClassifiedError{Class: class, Err: err}
}

// ClassOf returns the classification of an error chain, classifying on the
// fly when no ClassifiedError is present.
func ClassOf(err error) Class {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Class
	}

	return Classify(err)
}

// Classify determines the failure class of an error. Structured store codes
// are the primary channel; substring matching on the error text is kept only
// as a fallback for unstructured upstream errors.
func Classify(err error) Class {
	// Caller cancellation wins over any wrapping the store layer applied.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassCancelled
	}

	if errors.Is(err, ErrBudgetExceeded) {
		return ClassBudgetExceeded
	}

	if errors.Is(err, ErrCallSuppressed) {
		return ClassThrottled
	}

	if code, ok := datastore.CodeOf(err); ok {
		switch code {
		case datastore.CodeNotFound:
			return ClassNotFound
		case datastore.CodeThrottled:
			return ClassThrottled
		case datastore.CodeValidation:
			return ClassValidation
		case datastore.CodeConflict:
			return ClassConflict
		case datastore.CodeUnavailable:
			return ClassTransientNetwork
		case datastore.CodeInternal:
			return ClassInternal
		}
	}

	return classifyMessage(err.Error())
}

// classifyMessage is the fallback heuristic for errors that carry no
// structured code.
func classifyMessage(msg string) Class {
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "budget"), strings.Contains(lower, "quota"), strings.Contains(lower, "throttl"), strings.Contains(lower, "rate limit"), strings.Contains(lower, "too many requests"):
		return ClassThrottled
	case strings.Contains(lower, "not found"), strings.Contains(lower, "no such key"):
		return ClassNotFound
	case strings.Contains(lower, "invalid"), strings.Contains(lower, "too large"), strings.Contains(lower, "malformed"):
		return ClassValidation
	case strings.Contains(lower, "conflict"), strings.Contains(lower, "concurrent"):
		return ClassConflict
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"), strings.Contains(lower, "connection"), strings.Contains(lower, "unavailable"), strings.Contains(lower, "network"):
		return ClassTransientNetwork
	default:
		return ClassInternal
	}
}

// IsNotFound reports whether the error chain classifies as an absent key.
func IsNotFound(err error) bool {
	return ClassOf(err) == ClassNotFound
}
