package core

// OperationID uniquely identifies an operation or task within a queue
type OperationID string

// State is the lifecycle state of an operation. It only ever moves forward:
// StateInited -> StateExecuting -> StateFinished (or StateInited -> StateFinished
// when cancelled before it was started).
type State int

const (
	// StateInited is the state of a configured operation that has not been started
	StateInited State = iota
	// StateExecuting is the state between Start and the finish primitive
	StateExecuting
	// StateFinished is terminal; the operation error is immutable from here on
	StateFinished
)

// String returns the string representation of the State
func (s State) String() string {
	switch s {
	case StateInited:
		return "inited"
	case StateExecuting:
		return "executing"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Mode names a category of loop sources. A loop running in a mode only
// services sources registered for that mode (or for CommonModes).
type Mode string

const (
	// DefaultMode is the mode loops run in unless told otherwise
	DefaultMode Mode = "default"
	// CommonModes is a pseudo-mode; sources registered for it fire in every mode
	CommonModes Mode = "common"
)

// Task is the contract a queue needs from a unit of work.
type Task interface {
	ID() OperationID
	// Start begins the work. For synchronous tasks the work is done when Start
	// returns; asynchronous tasks signal completion through Done.
	Start()
	// Cancel requests cancellation. It is safe to call from any goroutine, any
	// number of times, in any state.
	Cancel()
	IsCancelled() bool
	IsFinished() bool
	// Done is closed once the task is finished.
	Done() <-chan struct{}
	// Err is nil until the task is finished.
	Err() error
}

// Submittable is implemented by tasks that need to know when a queue has
// accepted them, e.g. to freeze their configuration.
type Submittable interface {
	MarkSubmitted()
}
