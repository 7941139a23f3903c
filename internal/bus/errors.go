package bus

import (
	"errors"
	"fmt"
)

// Error kinds used across the coordinator. A lost claim is not represented
// here: Claim returns (nil, nil) for that, it is expected control flow.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindCapability ErrorKind = "capability"
	KindStore      ErrorKind = "store"
)

// Error is a classified coordinator error
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ValidationError marks malformed input or malformed capability output
func ValidationError(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

// NotFoundError marks an absent referenced entity
func NotFoundError(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Err: fmt.Errorf(format, args...)}
}

// CapabilityError marks a failed, timed-out, or unavailable external call
func CapabilityError(format string, args ...interface{}) error {
	return &Error{Kind: KindCapability, Err: fmt.Errorf(format, args...)}
}

// StoreError wraps a persistence layer failure
func StoreError(op string, err error) error {
	return &Error{Kind: KindStore, Err: fmt.Errorf("%s: %w", op, err)}
}

// IsKind reports whether err (or anything it wraps) carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
