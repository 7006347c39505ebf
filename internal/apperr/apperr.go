// Package apperr holds the error kinds surfaced to callers of the session
// processing core. Transports map them to status codes with errors.As.
package apperr

import (
	"errors"
	"fmt"
)

const (
	CodeAlreadyRecorded     = "ALREADY_RECORDED"
	CodeInProgress          = "IN_PROGRESS"
	CodeTranscriptionFailed = "TRANSCRIPTION_FAILED"
	CodePersistenceFailed   = "PERSISTENCE_FAILED"
	CodeValidation          = "VALIDATION_FAILED"
	CodeNotFound            = "NOT_FOUND"
	CodeCanceled            = "CANCELED"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// ConflictError reports that a meeting already has a completed or active
// session. SessionID always names the existing row.
type ConflictError struct {
	Code      string
	SessionID string
	Status    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: session %s is %s", e.Code, e.SessionID, e.Status)
}

type TranscriptionError struct {
	SessionID string
	Code      string
	Err       error
}

func (e *TranscriptionError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("transcription failed: %v", e.Err)
	}
	return fmt.Sprintf("transcription failed (%s): %v", e.Code, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

type PersistenceError struct {
	SessionID string
	Code      string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed (%s): %v", e.Code, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type CanceledError struct {
	SessionID string
	Err       error
}

func (e *CanceledError) Error() string {
	return fmt.Sprintf("processing of session %s canceled: %v", e.SessionID, e.Err)
}

func (e *CanceledError) Unwrap() error { return e.Err }

// BackendError carries a vendor error code through adapter boundaries.
type BackendError struct {
	Backend    string
	Code       string
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend error %s: %v", e.Backend, e.Code, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// BackendCode returns the vendor code of the first BackendError in err's chain.
func BackendCode(err error) string {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
