package models

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a failure in the OCR pipeline.
type ErrorKind string

const (
	KindIO                 ErrorKind = "io_error"
	KindUnsupportedFormat  ErrorKind = "unsupported_format"
	KindBackendUnavailable ErrorKind = "backend_unavailable"
	KindTimeout            ErrorKind = "timeout"
	KindModelError         ErrorKind = "model_error"
	KindFormatMismatch     ErrorKind = "format_mismatch"
	KindNoInputFound       ErrorKind = "no_input_found"
	KindCanceled           ErrorKind = "canceled"
	KindInvalidArgument    ErrorKind = "invalid_argument"
	KindUnknown            ErrorKind = "unknown"
)

// OCRError is the error type returned by every pipeline stage.
type OCRError struct {
	Kind ErrorKind
	Op   string // stage that failed, e.g. "encode", "query", "interpret"
	ID   string // image identifier, empty for batch-level errors
	Err  error
}

func (e *OCRError) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.ID != "" {
		msg += " (" + e.ID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OCRError) Unwrap() error {
	return e.Err
}

// NewError builds an OCRError wrapping err.
func NewError(kind ErrorKind, op, id string, err error) *OCRError {
	return &OCRError{Kind: kind, Op: op, ID: id, Err: err}
}

// Errorf builds an OCRError with a formatted cause.
func Errorf(kind ErrorKind, op, id, format string, args ...interface{}) *OCRError {
	return &OCRError{Kind: kind, Op: op, ID: id, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the ErrorKind of err. Context errors that were never wrapped
// into an OCRError are classified as well.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var oe *OCRError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	return KindUnknown
}

// IsKind reports whether err is an OCRError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
