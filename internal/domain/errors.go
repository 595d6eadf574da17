package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorClass buckets a sync failure into the taxonomy the ledger and the UI
// understand. The class never changes the control flow inside one operation;
// it only determines the code written to the status record.
type ErrorClass string

const (
	ErrorClassTransport ErrorClass = "transport"
	ErrorClassAuth      ErrorClass = "auth"
	ErrorClassNotFound  ErrorClass = "not-found"
	ErrorClassServer    ErrorClass = "server"
	ErrorClassFormat    ErrorClass = "format"
	ErrorClassLocalIO   ErrorClass = "local-io"
)

// SyncError carries the classification alongside the underlying cause.
type SyncError struct {
	Class ErrorClass
	// Code is a short human-readable identifier, e.g. "unauthorized",
	// "quota-exceeded", "invalid-payload".
	Code string
	Err  error
}

func (e *SyncError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Class, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Class, e.Code, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

func NewSyncError(class ErrorClass, code string, err error) *SyncError {
	return &SyncError{Class: class, Code: code, Err: err}
}

// ClassifyError extracts the classification from err. Errors that were never
// classified fall back to local-io, the only class produced outside the
// remote adapter.
func ClassifyError(err error) (ErrorClass, string) {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Class, syncErr.Code
	}
	return ErrorClassLocalIO, "local-io"
}
