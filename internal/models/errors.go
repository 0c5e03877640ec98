package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies harvest failures so callers branch on kind rather than message text
type ErrorKind string

const (
	// ErrorKindTransient covers network errors, timeouts, 5xx and upstream throttling. Retried internally.
	ErrorKindTransient ErrorKind = "transient"
	// ErrorKindPermanent covers 4xx, malformed payloads and explicit upstream errors. Never retried.
	ErrorKindPermanent ErrorKind = "permanent"
	// ErrorKindPartialGroup means some posts of a group run failed while others succeeded
	ErrorKindPartialGroup ErrorKind = "partial_group"
	// ErrorKindGroupRun means nothing could be harvested for the group in this run
	ErrorKindGroupRun ErrorKind = "group_run"
)

// HarvestError is the tagged error carried through the client, harvester and pipeline
type HarvestError struct {
	Kind      ErrorKind
	Operation string // Logical upstream endpoint, e.g. wall.getComments
	Code      int    // Upstream error code or HTTP status, 0 when not applicable
	Message   string
	Attempts  int
	Err       error // Underlying cause
}

func (e *HarvestError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s failure in %s (code %d): %s", e.Kind, e.Operation, e.Code, msg)
	}
	if e.Operation != "" {
		return fmt.Sprintf("%s failure in %s: %s", e.Kind, e.Operation, msg)
	}
	return fmt.Sprintf("%s failure: %s", e.Kind, msg)
}

func (e *HarvestError) Unwrap() error {
	return e.Err
}

// NewTransientError builds a transient failure for operation with the last underlying cause
func NewTransientError(operation string, attempts int, cause error) *HarvestError {
	he := &HarvestError{
		Kind:      ErrorKindTransient,
		Operation: operation,
		Attempts:  attempts,
		Err:       cause,
	}
	var coded interface{ ErrorCode() int }
	if errors.As(cause, &coded) {
		he.Code = coded.ErrorCode()
	}
	return he
}

// NewPermanentError builds a permanent failure carrying the upstream code and message
func NewPermanentError(operation string, code int, message string, cause error) *HarvestError {
	return &HarvestError{
		Kind:      ErrorKindPermanent,
		Operation: operation,
		Code:      code,
		Message:   message,
		Attempts:  1,
		Err:       cause,
	}
}

// KindOf returns the kind of the first HarvestError in err's chain, or "" if there is none
func KindOf(err error) ErrorKind {
	var he *HarvestError
	if errors.As(err, &he) {
		return he.Kind
	}
	return ""
}

// IsTransient reports whether err carries a transient classification
func IsTransient(err error) bool {
	return KindOf(err) == ErrorKindTransient
}

// IsPermanent reports whether err carries a permanent classification
func IsPermanent(err error) bool {
	return KindOf(err) == ErrorKindPermanent
}

// ToRunError converts any error into the structured form stored on a group
func ToRunError(err error, at time.Time) *RunError {
	if err == nil {
		return nil
	}
	re := &RunError{
		Kind:       ErrorKindGroupRun,
		Message:    err.Error(),
		OccurredAt: at,
	}

	var pe *PostError
	if errors.As(err, &pe) {
		re.PostID = pe.PostID
	}

	// Prefer the innermost classified cause so LastError names the real upstream failure
	var he *HarvestError
	if errors.As(err, &he) {
		re.Kind = he.Kind
		re.Operation = he.Operation
		re.Code = he.Code
		inner := he
		for {
			var next *HarvestError
			if inner.Err == nil || !errors.As(inner.Err, &next) {
				break
			}
			inner = next
		}
		if inner != he {
			re.Operation = inner.Operation
			re.Code = inner.Code
		}
	}
	return re
}

// PostError records a comment-harvest failure isolated to a single post
type PostError struct {
	PostID string
	Err    error
}

func (e *PostError) Error() string {
	return fmt.Sprintf("post %s: %v", e.PostID, e.Err)
}

func (e *PostError) Unwrap() error {
	return e.Err
}
