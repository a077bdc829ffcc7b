package types

import (
	"errors"
	"fmt"
)

// Error taxonomy for the reaction path. Each stage has its own kind so
// the orchestrator can apply the right retry policy:
//
//	detection  — always swallowed, absence of signal is the steady state
//	drain      — soft, logged and the sequence continues
//	checkpoint — hard after one retry
//	replace    — retried up to the configured attempt limit, then hard
type ErrorKind string

const (
	ErrKindDetection   ErrorKind = "detection"
	ErrKindDrain       ErrorKind = "drain"
	ErrKindCheckpoint  ErrorKind = "checkpoint"
	ErrKindReplacement ErrorKind = "replacement"
)

// StageError wraps a component failure with its taxonomy kind
type StageError struct {
	Kind ErrorKind
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewDetectionError wraps err as a detection failure
func NewDetectionError(err error) error {
	return &StageError{Kind: ErrKindDetection, Err: err}
}

// NewDrainError wraps err as a drain failure
func NewDrainError(err error) error {
	return &StageError{Kind: ErrKindDrain, Err: err}
}

// NewCheckpointError wraps err as a checkpoint failure
func NewCheckpointError(err error) error {
	return &StageError{Kind: ErrKindCheckpoint, Err: err}
}

// NewReplacementError wraps err as a replacement failure
func NewReplacementError(err error) error {
	return &StageError{Kind: ErrKindReplacement, Err: err}
}

// KindOf returns the taxonomy kind of err, or "" for untyped errors
func KindOf(err error) ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// ErrCheckpointNotFound is returned by checkpoint stores when the
// requested record does not exist.
var ErrCheckpointNotFound = errors.New("checkpoint not found")
