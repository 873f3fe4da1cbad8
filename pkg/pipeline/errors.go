package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrPollTimeout indicates the judge did not finish every execution within the poll timeout.
	ErrPollTimeout = errors.New("judge did not finish in time")
	// ErrNoSubmission is returned by a Store when no record exists for the question.
	ErrNoSubmission = errors.New("no submission for question")
	// ErrNoTestCases indicates a batch was requested without test cases.
	ErrNoTestCases = errors.New("no test cases to grade")
	// ErrFinalized indicates the exam session has already been submitted.
	ErrFinalized = errors.New("exam submission already finalized")
	// ErrNothingPending indicates Confirm was called without an outstanding confirmation.
	ErrNothingPending = errors.New("no submission awaiting confirmation")
)

// SubmissionError reports a failure while sending code to the judge.
type SubmissionError struct {
	Op  string
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission %s failed: %v", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollError reports a failure while waiting for results. Attempts counts the fetches made.
type PollError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll %s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// PersistenceError reports a failed create, update or fetch against the submission store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
