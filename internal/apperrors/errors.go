package apperrors

import (
	"errors"
	"fmt"
)

// Code categorizes ledger errors.
type Code string

const (
	// CodeStorageUnavailable means no verified storage handle could be obtained.
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"

	// CodeValidation means caller input violated an invariant.
	CodeValidation Code = "VALIDATION"

	// CodeNotFound means an operation referenced a nonexistent id.
	CodeNotFound Code = "NOT_FOUND"

	// CodeMigration means the schema upgrade failed. Fatal for the session.
	CodeMigration Code = "MIGRATION"

	// CodeConflict means a record changed between read and conditional write.
	CodeConflict Code = "CONFLICT"

	// CodeReconciliation means a linking/payment operation was rejected as a whole.
	CodeReconciliation Code = "RECONCILIATION"
)

// Error is the typed error returned by repositories and the reconciliation engine.
type Error struct {
	Code Code

	// Message is a human-readable description.
	Message string

	// Rule names the violated invariant, e.g. "payment_exceeds_debt".
	Rule string

	// Store and ID identify the record involved, when there is one.
	Store string
	ID    int64

	// Rejected lists record ids refused by a batch operation.
	Rejected []Rejection

	Err error
}

// Rejection explains why one record of a batch was refused.
type Rejection struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Rule != "" {
		msg += fmt.Sprintf(" (rule=%s)", e.Rule)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StorageUnavailable reports that the readiness gate gave up or the provider failed.
func StorageUnavailable(store string, err error) *Error {
	return &Error{
		Code:    CodeStorageUnavailable,
		Message: "cannot reach local database, retry later",
		Store:   store,
		Err:     err,
	}
}

// Validation reports a violated input rule.
func Validation(rule, format string, args ...any) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: fmt.Sprintf(format, args...),
		Rule:    rule,
	}
}

// NotFound reports a missing record.
func NotFound(store string, id int64) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %d not found", store, id),
		Store:   store,
		ID:      id,
	}
}

// Migration wraps a schema upgrade failure.
func Migration(step string, err error) *Error {
	return &Error{
		Code:    CodeMigration,
		Message: fmt.Sprintf("schema upgrade failed at %s; reset local storage", step),
		Err:     err,
	}
}

// Conflict reports a failed conditional write.
func Conflict(store string, id int64) *Error {
	return &Error{
		Code:    CodeConflict,
		Message: fmt.Sprintf("%s %d was modified concurrently", store, id),
		Store:   store,
		ID:      id,
	}
}

// Reconciliation reports a batch refused atomically.
func Reconciliation(rule, message string, rejected []Rejection) *Error {
	return &Error{
		Code:     CodeReconciliation,
		Message:  message,
		Rule:     rule,
		Rejected: rejected,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsStorageUnavailable(err error) bool { return CodeOf(err) == CodeStorageUnavailable }
func IsValidation(err error) bool         { return CodeOf(err) == CodeValidation }
func IsNotFound(err error) bool           { return CodeOf(err) == CodeNotFound }
func IsMigration(err error) bool          { return CodeOf(err) == CodeMigration }
func IsConflict(err error) bool           { return CodeOf(err) == CodeConflict }
func IsReconciliation(err error) bool     { return CodeOf(err) == CodeReconciliation }
