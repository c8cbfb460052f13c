package workflow

import (
	"errors"
	"fmt"
)

// Kind classifies workflow failures.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindConnection  Kind = "connection"
	KindSubmission  Kind = "submission"
	KindPollTimeout Kind = "poll_timeout"
	KindPoll        Kind = "poll"
)

var (
	ErrMissingSelection = errors.New("Please select both images")
	ErrPollTimeout      = errors.New("Polling timeout")
	ErrInvalidJob       = errors.New("Invalid job object returned")
	ErrBusy             = errors.New("a try-on job is already running")
)

// Error annotates a workflow failure with its kind and the operation
// and run it occurred in.
type Error struct {
	Kind  Kind
	Op    string
	RunID string
	Err   error
}

func (e *Error) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.RunID != "" {
		return fmt.Sprintf("%s (run_id=%s): %v", e.Op, e.RunID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(kind Kind, op, runID string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, RunID: runID, Err: err}
}

// KindOf returns the kind of a workflow error, or "" for other errors.
func KindOf(err error) Kind {
	var wfErr *Error
	if errors.As(err, &wfErr) {
		return wfErr.Kind
	}
	return ""
}

// Message is the user-facing text of err without operation metadata.
func Message(err error) string {
	var wfErr *Error
	if errors.As(err, &wfErr) && wfErr.Err != nil {
		return wfErr.Err.Error()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
