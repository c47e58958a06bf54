package lifecycle

import (
	"errors"
	"fmt"
)

// Kind classifies a lifecycle failure. The string form is what API clients see.
type Kind string

const (
	KindUnauthenticated         Kind = "unauthenticated"
	KindUnsupportedFileType     Kind = "unsupported_file_type"
	KindFileTooLarge            Kind = "file_too_large"
	KindMissingTargetLanguage   Kind = "missing_target_language"
	KindUploadFailed            Kind = "upload_failed"
	KindJobCreateFailed         Kind = "job_create_failed"
	KindProcessingTriggerFailed Kind = "processing_trigger_failed"
	KindProcessingTimeout       Kind = "processing_timeout"
	KindProcessorError          Kind = "processor_error"
)

// Retryable reports whether resubmitting the same input may succeed.
func (k Kind) Retryable() bool {
	switch k {
	case KindUploadFailed, KindJobCreateFailed, KindProcessingTriggerFailed, KindProcessingTimeout, KindProcessorError:
		return true
	default:
		return false
	}
}

// Validation reports whether k is raised before any side effect.
func (k Kind) Validation() bool {
	switch k {
	case KindUnsupportedFileType, KindFileTooLarge, KindMissingTargetLanguage:
		return true
	default:
		return false
	}
}

var (
	// ErrAlreadyStarted is returned when a submission is run a second time.
	ErrAlreadyStarted = errors.New("lifecycle: submission already started")
	// ErrNoActiveSession is returned by Cancel when nothing is polling the job.
	ErrNoActiveSession = errors.New("lifecycle: no active session for job")
)

// Error is a classified lifecycle failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind from err, or "" when err is not a lifecycle error.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

func fail(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}
