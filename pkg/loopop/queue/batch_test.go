package queue_test

import (
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/loopop/pkg/loopop/core"
	"github.com/arthur-debert/loopop/pkg/loopop/queue"
)

func ids(tasks []core.Task) []core.OperationID {
	return lo.Map(tasks, func(t core.Task, _ int) core.OperationID { return t.ID() })
}

func TestBatch_Resolve(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *queue.Batch)
		want  []core.OperationID
	}{
		{
			name:  "empty",
			build: func(*queue.Batch) {},
			want:  []core.OperationID{},
		},
		{
			name: "independent tasks keep insertion order",
			build: func(b *queue.Batch) {
				require.NoError(t, b.Add(queue.NewFuncTask("x", nil)))
				require.NoError(t, b.Add(queue.NewFuncTask("y", nil)))
			},
			want: []core.OperationID{"x", "y"},
		},
		{
			name: "chain added in reverse",
			build: func(b *queue.Batch) {
				require.NoError(t, b.Add(queue.NewFuncTask("c", nil), "b"))
				require.NoError(t, b.Add(queue.NewFuncTask("b", nil), "a"))
				require.NoError(t, b.Add(queue.NewFuncTask("a", nil)))
			},
			want: []core.OperationID{"a", "b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := queue.NewBatch(nil)
			tt.build(b)
			ordered, err := b.Resolve()
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(ordered))
		})
	}
}

func TestBatch_ResolveErrors(t *testing.T) {
	t.Run("cycle", func(t *testing.T) {
		b := queue.NewBatch(nil)
		require.NoError(t, b.Add(queue.NewFuncTask("a", nil), "b"))
		require.NoError(t, b.Add(queue.NewFuncTask("b", nil), "a"))

		_, err := b.Resolve()
		var cycle *core.CycleError
		assert.ErrorAs(t, err, &cycle)
	})

	t.Run("missing dependency", func(t *testing.T) {
		b := queue.NewBatch(nil)
		require.NoError(t, b.Add(queue.NewFuncTask("a", nil), "ghost"))

		_, err := b.Resolve()
		var depErr *core.DependencyError
		require.ErrorAs(t, err, &depErr)
		assert.Equal(t, core.OperationID("a"), depErr.OperationID)
		assert.Equal(t, []core.OperationID{"ghost"}, depErr.Missing)
	})

	t.Run("duplicate", func(t *testing.T) {
		b := queue.NewBatch(nil)
		require.NoError(t, b.Add(queue.NewFuncTask("a", nil)))
		assert.ErrorIs(t, b.Add(queue.NewFuncTask("a", nil)), queue.ErrDuplicateTask)
		assert.Equal(t, 1, b.Len())
	})
}

func TestBatch_SubmitTo(t *testing.T) {
	var (
		mu    sync.Mutex
		order []core.OperationID
	)
	record := func(ft *queue.FuncTask) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, ft.ID())
		return nil
	}

	b := queue.NewBatch(nil)
	require.NoError(t, b.Add(queue.NewFuncTask("thumbnails", record), "photos"))
	require.NoError(t, b.Add(queue.NewFuncTask("photos", record)))

	q := queue.New(queue.Options{MaxConcurrent: 4})
	defer q.Close()
	require.NoError(t, b.SubmitTo(q))
	require.NoError(t, q.Wait(waitCtx(t)))

	assert.Equal(t, []core.OperationID{"photos", "thumbnails"}, order)
}

func TestBatch_SubmitToRejectsCycles(t *testing.T) {
	b := queue.NewBatch(nil)
	require.NoError(t, b.Add(queue.NewFuncTask("a", nil), "b"))
	require.NoError(t, b.Add(queue.NewFuncTask("b", nil), "a"))

	q := queue.New(queue.Options{})
	defer q.Close()
	assert.Error(t, b.SubmitTo(q))
	assert.Empty(t, q.Tasks())
}
