package entity

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

type ErrorKind string

const (
	KindMissingField        ErrorKind = "MissingField"
	KindInvalidField        ErrorKind = "InvalidField"
	KindUnsupportedFormat   ErrorKind = "UnsupportedFormat"
	KindConversionFailure   ErrorKind = "ConversionFailure"
	KindLoadFailure         ErrorKind = "LoadFailure"
	KindEmptySignal         ErrorKind = "EmptySignal"
	KindPersistFailure      ErrorKind = "PersistFailure"
	KindVerificationFailure ErrorKind = "VerificationFailure"
	KindTimeout             ErrorKind = "Timeout"
	KindNotFound            ErrorKind = "NotFound"
	KindInternal            ErrorKind = "InternalError"
)

// Status maps a kind to the HTTP status reported to the caller.
func (k ErrorKind) Status() int {
	switch k {
	case KindMissingField, KindInvalidField, KindUnsupportedFormat, KindEmptySignal:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// PipelineError is the only error type that leaves the verification usecase.
// Subject names the input it concerns ("file1", "user_id", ...), or is empty.
type PipelineError struct {
	Kind    ErrorKind
	Subject string
	Err     error
}

func NewError(kind ErrorKind, subject string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Subject: subject, Err: err}
}

func (e *PipelineError) Error() string {
	msg := describe(e.Kind)
	if e.Subject != "" {
		msg = e.Subject + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Cause lets errors.Cause from pkg/errors walk through a PipelineError.
func (e *PipelineError) Cause() error { return e.Err }

// KindOf resolves the kind of err, or KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

func describe(k ErrorKind) string {
	switch k {
	case KindMissingField:
		return "missing required field"
	case KindInvalidField:
		return "invalid field"
	case KindUnsupportedFormat:
		return "unsupported audio format"
	case KindConversionFailure:
		return "audio conversion failed"
	case KindLoadFailure:
		return "audio could not be loaded"
	case KindEmptySignal:
		return "audio contains no samples"
	case KindPersistFailure:
		return "failed to store audio"
	case KindVerificationFailure:
		return "voice verification failed"
	case KindTimeout:
		return "processing timed out"
	case KindNotFound:
		return "not found"
	default:
		return "internal error"
	}
}
