// Package queue schedules core.Task values on a bounded set of workers.
//
// A task is dispatched once all the tasks it depends on have finished,
// whatever their outcome, and keeps its worker slot until it is finished
// itself. That makes asynchronous tasks such as run loop operations count
// against MaxConcurrent for as long as they execute, not just while Start
// runs.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"

	"github.com/arthur-debert/loopop/pkg/loopop/core"
)

// DefaultMaxConcurrent is used when Options.MaxConcurrent is not positive
const DefaultMaxConcurrent = 4

var (
	// ErrQueueClosed is returned by Submit after Close
	ErrQueueClosed = errors.New("queue is closed")
	// ErrDuplicateTask is returned when a task ID is submitted twice
	ErrDuplicateTask = errors.New("task already submitted")
)

// Options configures a Queue
type Options struct {
	MaxConcurrent int
	Logger        core.Logger
	EventBus      core.EventBus
}

// Queue runs submitted tasks, honouring dependencies between them.
type Queue struct {
	workers  *pool.Pool
	logger   core.Logger
	bus      core.EventBus
	maxConc  int
	dispatch sync.WaitGroup

	mu     sync.Mutex
	tasks  []core.Task
	ids    map[core.OperationID]struct{}
	closed bool
}

// New creates a queue with opts
func New(opts Options) *Queue {
	maxConc := lo.Ternary(opts.MaxConcurrent > 0, opts.MaxConcurrent, DefaultMaxConcurrent)
	if opts.Logger == nil {
		opts.Logger = core.NopLogger()
	}
	return &Queue{
		workers: pool.New().WithMaxGoroutines(maxConc),
		logger:  opts.Logger,
		bus:     opts.EventBus,
		maxConc: maxConc,
		ids:     make(map[core.OperationID]struct{}),
	}
}

// MaxConcurrent returns the number of tasks allowed to execute at once
func (q *Queue) MaxConcurrent() int {
	return q.maxConc
}

// Submit hands task to the queue. The task is started once every task in
// deps has finished. Tasks implementing core.Submittable are marked submitted
// before Submit returns.
func (q *Queue) Submit(task core.Task, deps ...core.Task) error {
	if task == nil {
		return fmt.Errorf("cannot submit a nil task")
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if _, exists := q.ids[task.ID()]; exists {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID())
	}
	q.ids[task.ID()] = struct{}{}
	q.tasks = append(q.tasks, task)
	q.dispatch.Add(1)
	q.mu.Unlock()

	if s, ok := task.(core.Submittable); ok {
		s.MarkSubmitted()
	}

	depIDs := lo.Map(deps, func(d core.Task, _ int) core.OperationID { return d.ID() })
	q.logger.Debug().
		Str("task_id", string(task.ID())).
		Int("dependency_count", len(deps)).
		Msg("task submitted")
	q.publish(core.NewTaskSubmittedEvent(task.ID(), depIDs))

	go q.schedule(task, deps)
	return nil
}

// schedule waits for the dependencies of task and hands it to a worker
func (q *Queue) schedule(task core.Task, deps []core.Task) {
	defer q.dispatch.Done()

	for _, dep := range deps {
		select {
		case <-dep.Done():
		case <-task.Done():
			q.logger.Debug().
				Str("task_id", string(task.ID())).
				Msg("task finished while waiting for dependencies")
			return
		}
	}

	q.workers.Go(func() {
		if task.IsFinished() {
			return
		}
		q.logger.Debug().
			Str("task_id", string(task.ID())).
			Msg("dispatching task")
		q.publish(core.NewTaskDispatchedEvent(task.ID()))

		task.Start()
		<-task.Done()
	})
}

// Cancel cancels task
func (q *Queue) Cancel(task core.Task) {
	task.Cancel()
}

// CancelAll cancels every task submitted so far
func (q *Queue) CancelAll() {
	tasks := q.snapshot()
	q.logger.Debug().Int("task_count", len(tasks)).Msg("cancelling all tasks")
	for _, t := range tasks {
		t.Cancel()
	}
}

// IsFinished reports whether task is finished
func (q *Queue) IsFinished(task core.Task) bool {
	return task.IsFinished()
}

// Len returns the number of submitted tasks that are not finished yet
func (q *Queue) Len() int {
	return lo.CountBy(q.snapshot(), func(t core.Task) bool { return !t.IsFinished() })
}

// Tasks returns the submitted tasks in submission order
func (q *Queue) Tasks() []core.Task {
	return q.snapshot()
}

// Wait blocks until every task submitted before the call has finished, or ctx
// is done. It returns the errors of failed tasks; cancelled tasks are not
// failures.
func (q *Queue) Wait(ctx context.Context) error {
	tasks := q.snapshot()
	for _, t := range tasks {
		select {
		case <-t.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var errs []error
	for _, t := range tasks {
		if err := t.Err(); err != nil && !core.IsCancelled(err) {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d tasks failed: %w", len(errs), len(tasks), multierror.Append(nil, errs...))
}

// Close stops accepting tasks, waits for the submitted ones to finish and
// releases the workers.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.dispatch.Wait()
	q.workers.Wait()
}

func (q *Queue) snapshot() []core.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]core.Task(nil), q.tasks...)
}

func (q *Queue) publish(event core.Event) {
	if q.bus != nil {
		q.bus.Publish(context.Background(), event)
	}
}
