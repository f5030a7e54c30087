// Package errors provides the error taxonomy for the chainrules engine.
// Every engine error carries a stable machine-readable kind, a technical
// message, and optional structured context. An enhanced variant additionally
// carries severity, a user-facing message, and suggested recovery actions.
package errors

import (
	"errors"
	"fmt"
)

// Kind is the stable machine-readable error category.
type Kind string

const (
	KindRuleNotFound          Kind = "RULE_NOT_FOUND"
	KindDuplicateName         Kind = "DUPLICATE_NAME"
	KindInvalidType           Kind = "INVALID_TYPE"
	KindTypeMismatch          Kind = "TYPE_MISMATCH"
	KindValidation            Kind = "VALIDATION_ERROR"
	KindStorage               Kind = "STORAGE_ERROR"
	KindDataIntegrity         Kind = "DATA_INTEGRITY_ERROR"
	KindTemporaryIDConflict   Kind = "TEMPORARY_ID_CONFLICT"
	KindRuleStateInconsistent Kind = "RULE_STATE_INCONSISTENT"
	KindOperationTimeout      Kind = "OPERATION_TIMEOUT"
	KindConcurrentModify      Kind = "CONCURRENT_MODIFICATION"
	KindNetwork               Kind = "NETWORK_ERROR"
)

// Kinds returns every kind in the taxonomy.
func Kinds() []Kind {
	return []Kind{
		KindRuleNotFound, KindDuplicateName, KindInvalidType, KindTypeMismatch,
		KindValidation, KindStorage, KindDataIntegrity, KindTemporaryIDConflict,
		KindRuleStateInconsistent, KindOperationTimeout, KindConcurrentModify,
		KindNetwork,
	}
}

// RuleError wraps engine errors with a kind and structured context.
type RuleError struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error returns a formatted error string including the kind, message, and cause if present.
func (e *RuleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for use with errors.Is and errors.As.
func (e *RuleError) Unwrap() error {
	return e.Cause
}

// New creates a new RuleError with the given kind and message.
func New(kind Kind, message string) *RuleError {
	return &RuleError{Kind: kind, Message: message, Context: make(map[string]interface{})}
}

// Newf creates a new RuleError with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *RuleError {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates a new RuleError wrapping a cause.
func Wrap(kind Kind, message string, cause error) *RuleError {
	return &RuleError{Kind: kind, Message: message, Cause: cause, Context: make(map[string]interface{})}
}

// WithContext adds a key-value pair to the error's context and returns the
// error, allowing method chaining.
func (e *RuleError) WithContext(key string, value interface{}) *RuleError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// KindOf extracts the kind from an error chain. The second return value is
// false when no RuleError is present in the chain.
func KindOf(err error) (Kind, bool) {
	var re *RuleError
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Is reports whether err matches target using errors.Is semantics.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain matching target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
