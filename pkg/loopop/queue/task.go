package queue

import (
	"sync"

	"github.com/arthur-debert/loopop/pkg/loopop/core"
)

// FuncTask is a synchronous core.Task running a function on the worker that
// starts it. Cancelling it before it starts finishes it with
// core.ErrCancelled; once running, fn can poll IsCancelled.
type FuncTask struct {
	id   core.OperationID
	fn   func(t *FuncTask) error
	done chan struct{}

	mu        sync.Mutex
	started   bool
	cancelled bool
	finished  bool
	err       error
}

// NewFuncTask creates a task that runs fn when started
func NewFuncTask(id core.OperationID, fn func(t *FuncTask) error) *FuncTask {
	return &FuncTask{id: id, fn: fn, done: make(chan struct{})}
}

func (t *FuncTask) ID() core.OperationID { return t.id }

func (t *FuncTask) Start() {
	t.mu.Lock()
	if t.started || t.finished || t.cancelled {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()

	var err error
	if t.fn != nil {
		err = t.fn(t)
	}
	t.finish(err)
}

func (t *FuncTask) Cancel() {
	t.mu.Lock()
	if t.cancelled || t.finished {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	started := t.started
	t.mu.Unlock()

	if !started {
		t.finish(core.ErrCancelled)
	}
}

func (t *FuncTask) IsCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func (t *FuncTask) IsFinished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finished
}

func (t *FuncTask) Done() <-chan struct{} { return t.done }

func (t *FuncTask) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *FuncTask) finish(err error) {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	t.finished = true
	t.err = err
	t.mu.Unlock()
	close(t.done)
}
