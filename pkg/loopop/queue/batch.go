package queue

import (
	"fmt"

	"github.com/gammazero/toposort"

	"github.com/arthur-debert/loopop/pkg/loopop/core"
)

type batchEntry struct {
	task core.Task
	deps []core.OperationID
}

// Batch collects tasks whose dependencies are expressed by ID, orders them
// and submits them to a queue together.
type Batch struct {
	entries []batchEntry
	index   map[core.OperationID]int
	logger  core.Logger
}

// NewBatch creates an empty batch
func NewBatch(logger core.Logger) *Batch {
	if logger == nil {
		logger = core.NopLogger()
	}
	return &Batch{
		index:  make(map[core.OperationID]int),
		logger: logger,
	}
}

// Add appends task, which depends on the tasks with the given IDs. The
// dependencies may be added later; they are checked by Resolve.
func (b *Batch) Add(task core.Task, deps ...core.OperationID) error {
	if task == nil {
		return fmt.Errorf("cannot add a nil task to the batch")
	}
	if _, exists := b.index[task.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID())
	}
	b.index[task.ID()] = len(b.entries)
	b.entries = append(b.entries, batchEntry{task: task, deps: deps})
	return nil
}

// Len returns the number of tasks in the batch
func (b *Batch) Len() int {
	return len(b.entries)
}

// Resolve returns the tasks in dependency order. Tasks without dependency
// relations keep their insertion order after the ordered ones.
func (b *Batch) Resolve() ([]core.Task, error) {
	if err := b.validateDependencies(); err != nil {
		return nil, err
	}

	edges := make([]toposort.Edge, 0)
	for _, e := range b.entries {
		for _, depID := range e.deps {
			// dependency comes first
			edges = append(edges, toposort.Edge{string(depID), string(e.task.ID())})
		}
	}

	sortedIDs, err := toposort.Toposort(edges)
	if err != nil {
		return nil, &core.CycleError{Cause: err}
	}

	ordered := make([]core.Task, 0, len(b.entries))
	added := make(map[core.OperationID]bool, len(b.entries))
	for _, idInterface := range sortedIDs {
		idStr, ok := idInterface.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected type in topological sort result: %T", idInterface)
		}
		id := core.OperationID(idStr)
		if i, exists := b.index[id]; exists && !added[id] {
			ordered = append(ordered, b.entries[i].task)
			added[id] = true
		}
	}
	for _, e := range b.entries {
		if !added[e.task.ID()] {
			ordered = append(ordered, e.task)
			added[e.task.ID()] = true
		}
	}

	b.logger.Debug().
		Int("task_count", len(ordered)).
		Int("edge_count", len(edges)).
		Msg("batch resolved")
	return ordered, nil
}

// SubmitTo resolves the batch and submits every task to q with its
// dependencies. Nothing is submitted when resolution fails.
func (b *Batch) SubmitTo(q *Queue) error {
	ordered, err := b.Resolve()
	if err != nil {
		return fmt.Errorf("batch resolution failed: %w", err)
	}

	for _, task := range ordered {
		entry := b.entries[b.index[task.ID()]]
		deps := make([]core.Task, len(entry.deps))
		for i, depID := range entry.deps {
			deps[i] = b.entries[b.index[depID]].task
		}
		if err := q.Submit(task, deps...); err != nil {
			return fmt.Errorf("submit %s: %w", task.ID(), err)
		}
	}
	return nil
}

func (b *Batch) validateDependencies() error {
	for _, e := range b.entries {
		var missing []core.OperationID
		for _, depID := range e.deps {
			if _, exists := b.index[depID]; !exists {
				missing = append(missing, depID)
			}
		}
		if len(missing) > 0 {
			return &core.DependencyError{OperationID: e.task.ID(), Missing: missing}
		}
	}
	return nil
}
