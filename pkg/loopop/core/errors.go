package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCancelled is the error a cancelled operation finishes with.
var ErrCancelled = errors.New("operation cancelled by caller")

// IsCancelled reports whether err is, or wraps, ErrCancelled.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// WorkError represents a failure raised by an operation's own work.
type WorkError struct {
	OperationID OperationID
	Cause       error
}

func (e *WorkError) Error() string {
	if e.OperationID == "" {
		return fmt.Sprintf("operation work failed: %v", e.Cause)
	}
	return fmt.Sprintf("operation %s work failed: %v", e.OperationID, e.Cause)
}

func (e *WorkError) Unwrap() error {
	return e.Cause
}

// DeleteError represents a failure to delete a path.
type DeleteError struct {
	Path  string
	Cause error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("failed to delete %s: %v", e.Path, e.Cause)
}

func (e *DeleteError) Unwrap() error {
	return e.Cause
}

// ProtocolViolation describes misuse of an operation contract, such as
// reconfiguring after submission or finishing off the execution context.
// It is raised with panic, never returned.
type ProtocolViolation struct {
	OperationID OperationID
	Reason      string
}

func (e *ProtocolViolation) Error() string {
	if e.OperationID == "" {
		return "protocol violation: " + e.Reason
	}
	return fmt.Sprintf("protocol violation in operation %s: %s", e.OperationID, e.Reason)
}

// DependencyError represents missing dependencies for a task.
type DependencyError struct {
	OperationID OperationID
	Missing     []OperationID
}

func (e *DependencyError) Error() string {
	missing := make([]string, len(e.Missing))
	for i, id := range e.Missing {
		missing[i] = string(id)
	}
	return fmt.Sprintf("task %s depends on unknown tasks: %s", e.OperationID, strings.Join(missing, ", "))
}

// CycleError represents a dependency cycle among queued tasks.
type CycleError struct {
	Cause error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected: %v", e.Cause)
}

func (e *CycleError) Unwrap() error {
	return e.Cause
}
