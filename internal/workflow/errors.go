package workflow

import (
	"errors"
	"fmt"
)

// ErrStateConflict is the root of the state-conflict error family. Every
// typed conflict below unwraps to it so callers can classify with errors.Is.
var ErrStateConflict = errors.New("state conflict")

// ErrRequestNotFound is returned when the request does not exist.
var ErrRequestNotFound = errors.New("purchase request not found")

// NotPendingError is returned when a transition is attempted on a request
// that has already reached a terminal status.
type NotPendingError struct {
	RequestID string
	Status    string
}

func (e *NotPendingError) Error() string {
	return fmt.Sprintf("request %s is %s, not pending", e.RequestID, e.Status)
}

func (e *NotPendingError) Unwrap() error { return ErrStateConflict }

// AlreadyDecidedError is returned when a level has already settled. Prior
// names the decision that was recorded first.
type AlreadyDecidedError struct {
	Level int
	Prior string
}

func (e *AlreadyDecidedError) Error() string {
	return fmt.Sprintf("level %d already decided: %s", e.Level, e.Prior)
}

func (e *AlreadyDecidedError) Unwrap() error { return ErrStateConflict }

// NotApprovedError is returned when a receipt is submitted for a request
// that has not reached APPROVED.
type NotApprovedError struct {
	RequestID string
	Status    string
}

func (e *NotApprovedError) Error() string {
	return fmt.Sprintf("request %s is %s, not approved", e.RequestID, e.Status)
}

func (e *NotApprovedError) Unwrap() error { return ErrStateConflict }

// LevelOrderViolationError is returned when a level-2 decision is submitted
// before level 1 has a recorded approval.
type LevelOrderViolationError struct {
	RequestID string
}

func (e *LevelOrderViolationError) Error() string {
	return fmt.Sprintf("request %s has no level-1 approval yet", e.RequestID)
}

func (e *LevelOrderViolationError) Unwrap() error { return ErrStateConflict }
