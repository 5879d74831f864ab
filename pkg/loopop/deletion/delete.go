// Package deletion implements a best-effort recursive delete of a batch of
// paths.
//
// Every requested path is attempted, whatever happened to the ones before
// it, and within a directory tree every sibling is attempted too. Only the
// first failure is kept in the result; callers that need every outcome can
// install an Observer.
package deletion

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arthur-debert/loopop/pkg/loopop/core"
	"github.com/arthur-debert/loopop/pkg/loopop/filesystem"
)

// Kind labels delete tasks in logs and events
const Kind = "recursive-delete"

var taskSequence atomic.Uint64

// Failure is the first deletion that failed in a batch
type Failure struct {
	Path  string
	Cause error
}

// DeleteBatchResult is what a batch delete reports
type DeleteBatchResult struct {
	RequestedPaths []string
	Failure        *Failure
}

// Failed reports whether at least one deletion failed
func (r DeleteBatchResult) Failed() bool {
	return r.Failure != nil
}

// Err returns the first failure as a *core.DeleteError, or nil
func (r DeleteBatchResult) Err() error {
	if r.Failure == nil {
		return nil
	}
	return &core.DeleteError{Path: r.Failure.Path, Cause: r.Failure.Cause}
}

// Observer is called for every path the task tries to remove, children
// before their directory, with a nil err on success.
type Observer func(path string, err error)

// Options configures a Task. A nil FS means the unrooted OS filesystem.
type Options struct {
	ID       core.OperationID
	FS       filesystem.FileSystem
	Logger   core.Logger
	EventBus core.EventBus
	Observer Observer
}

// Task deletes a fixed list of paths when started. It is a synchronous
// core.Task: the work is done on the goroutine that calls Start.
type Task struct {
	id       core.OperationID
	paths    []string
	fs       filesystem.FileSystem
	logger   core.Logger
	bus      core.EventBus
	observer Observer
	done     chan struct{}

	mu        sync.Mutex
	state     core.State
	started   bool
	cancelled bool
	result    DeleteBatchResult
	err       error
}

// NewTask creates a task deleting paths. The slice is copied.
func NewTask(paths []string, opts Options) *Task {
	if opts.ID == "" {
		opts.ID = core.OperationID(fmt.Sprintf("%s-%d", Kind, taskSequence.Add(1)))
	}
	if opts.FS == nil {
		opts.FS = filesystem.NewOSFileSystem("")
	}
	if opts.Logger == nil {
		opts.Logger = core.NopLogger()
	}
	return &Task{
		id:       opts.ID,
		paths:    append([]string(nil), paths...),
		fs:       opts.FS,
		logger:   opts.Logger,
		bus:      opts.EventBus,
		observer: opts.Observer,
		done:     make(chan struct{}),
	}
}

// Paths returns the paths the task deletes
func (t *Task) Paths() []string {
	return append([]string(nil), t.paths...)
}

// Run deletes paths and reports the outcome. It never stops early.
func (t *Task) Run(paths []string) DeleteBatchResult {
	r := &recorder{observer: t.observer}
	for _, p := range paths {
		t.remove(trimSeparators(p), r)
	}

	result := DeleteBatchResult{
		RequestedPaths: append([]string(nil), paths...),
		Failure:        r.first,
	}

	event := t.logger.Debug()
	if result.Failed() {
		event = t.logger.Warn().
			Str("failed_path", result.Failure.Path).
			Err(result.Failure.Cause)
	}
	event.
		Str("task_id", string(t.id)).
		Int("requested", len(paths)).
		Int("removed", r.removed).
		Int("failures", r.failures).
		Msg("batch delete completed")
	return result
}

// remove deletes path, children first. Symlinks are removed, never followed.
func (t *Task) remove(path string, r *recorder) {
	info, err := t.fs.Lstat(path)
	if err != nil {
		r.record(path, err)
		return
	}

	if info.IsDir() {
		entries, err := t.fs.ReadDir(path)
		if err != nil {
			r.record(path, err)
			return
		}
		for _, e := range entries {
			t.remove(filesystem.Join(t.fs, path, e.Name()), r)
		}
	}

	err = t.fs.Remove(path)
	if err == nil {
		t.logger.Trace().Str("path", path).Msg("removed")
	}
	r.record(path, err)
}

// trimSeparators drops trailing separators so that Lstat sees a symlink
// itself and not the directory it points to. A bare root is kept.
func trimSeparators(path string) string {
	trimmed := strings.TrimRight(path, "/"+string(filepath.Separator))
	if trimmed == "" {
		return path
	}
	return trimmed
}

type recorder struct {
	observer Observer
	first    *Failure
	removed  int
	failures int
}

func (r *recorder) record(path string, err error) {
	if r.observer != nil {
		r.observer(path, err)
	}
	if err == nil {
		r.removed++
		return
	}
	r.failures++
	if r.first == nil {
		r.first = &Failure{Path: path, Cause: err}
	}
}

// ID returns the task ID
func (t *Task) ID() core.OperationID { return t.id }

// Start runs the delete. A task cancelled before it starts deletes nothing.
// Once running it always attempts every path.
func (t *Task) Start() {
	t.mu.Lock()
	if t.state != core.StateInited {
		cancelledBeforeStart := t.cancelled && !t.started
		t.mu.Unlock()
		if cancelledBeforeStart {
			return
		}
		panic(&core.ProtocolViolation{OperationID: t.id, Reason: "delete task started twice"})
	}
	t.state = core.StateExecuting
	t.started = true
	t.mu.Unlock()

	start := time.Now()
	t.publish(core.NewOperationStartedEvent(t.id, Kind))
	result := t.Run(t.paths)

	t.mu.Lock()
	t.result = result
	t.err = result.Err()
	t.state = core.StateFinished
	err := t.err
	t.mu.Unlock()
	close(t.done)

	t.publish(core.NewOperationFinishedEvent(t.id, Kind, err, time.Since(start)))
}

// Cancel prevents a task that has not started from running
func (t *Task) Cancel() {
	t.mu.Lock()
	if t.cancelled || t.state == core.StateFinished {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	state := t.state
	if state == core.StateInited {
		t.state = core.StateFinished
		t.err = core.ErrCancelled
		t.result = DeleteBatchResult{RequestedPaths: t.Paths()}
	}
	t.mu.Unlock()

	t.publish(core.NewOperationCancelledEvent(t.id, Kind, state))
	if state == core.StateInited {
		close(t.done)
		t.publish(core.NewOperationFinishedEvent(t.id, Kind, core.ErrCancelled, 0))
	}
}

// IsCancelled reports whether Cancel was called
func (t *Task) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// IsFinished reports whether the task is finished
func (t *Task) IsFinished() bool {
	return t.State() == core.StateFinished
}

// State returns the lifecycle state
func (t *Task) State() core.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Done is closed when the task is finished
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns core.ErrCancelled, the first failure as a *core.DeleteError,
// or nil. It is nil until the task is finished.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Result returns the batch result; it is the zero value until the task is
// finished.
func (t *Task) Result() DeleteBatchResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

func (t *Task) publish(event core.Event) {
	if t.bus != nil {
		t.bus.Publish(context.Background(), event)
	}
}
