package queue_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/loopop/pkg/loopop/core"
	"github.com/arthur-debert/loopop/pkg/loopop/operation"
	"github.com/arthur-debert/loopop/pkg/loopop/queue"
	"github.com/arthur-debert/loopop/pkg/loopop/testutil"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestQueue_RunsTasks(t *testing.T) {
	q := queue.New(queue.Options{MaxConcurrent: 2})
	defer q.Close()

	var ran atomic.Int32
	for _, id := range []core.OperationID{"a", "b", "c"} {
		require.NoError(t, q.Submit(queue.NewFuncTask(id, func(*queue.FuncTask) error {
			ran.Add(1)
			return nil
		})))
	}

	require.NoError(t, q.Wait(waitCtx(t)))
	assert.Equal(t, int32(3), ran.Load())
	assert.Equal(t, 0, q.Len())
}

func TestQueue_DependenciesGateOrdering(t *testing.T) {
	q := queue.New(queue.Options{MaxConcurrent: 4})
	defer q.Close()

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
	boom := errors.New("boom")

	first := queue.NewFuncTask("first", func(ft *queue.FuncTask) error {
		time.Sleep(20 * time.Millisecond)
		_ = record(ft)
		return boom
	})
	second := queue.NewFuncTask("second", record)
	third := queue.NewFuncTask("third", record)

	require.NoError(t, q.Submit(third, second))
	require.NoError(t, q.Submit(second, first))
	require.NoError(t, q.Submit(first))

	err := q.Wait(waitCtx(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []core.OperationID{"first", "second", "third"}, order,
		"a failed dependency still releases its dependents")
}

func TestQueue_WorkerHeldUntilDone(t *testing.T) {
	loop := testutil.SpawnLoop(t, "queue-loop")
	q := queue.New(queue.Options{MaxConcurrent: 1})
	defer q.Close()

	var holder *operation.Handle
	started := make(chan struct{})
	async := operation.New(operation.WorkFuncs{
		Start: func(h *operation.Handle) {
			holder = h
			close(started)
		},
	}, operation.Options{DefaultLoop: loop})

	var secondRan atomic.Bool
	second := queue.NewFuncTask("second", func(*queue.FuncTask) error {
		secondRan.Store(true)
		return nil
	})

	require.NoError(t, q.Submit(async))
	require.NoError(t, q.Submit(second))

	testutil.WaitDone(t, started, 5*time.Second)
	time.Sleep(30 * time.Millisecond)
	assert.False(t, secondRan.Load(), "the only worker is held by the executing operation")
	assert.Equal(t, 2, q.Len())

	require.NoError(t, loop.Perform(nil, func() { holder.Finish(nil) }))
	require.NoError(t, q.Wait(waitCtx(t)))
	assert.True(t, secondRan.Load())
}

func TestQueue_SubmitFreezesConfiguration(t *testing.T) {
	q := queue.New(queue.Options{})
	defer q.Close()
	assert.Equal(t, queue.DefaultMaxConcurrent, q.MaxConcurrent())

	op := operation.New(&testutil.RecordingWork{}, operation.Options{DefaultLoop: testutil.SpawnLoop(t, "freeze")})
	op.Cancel()
	require.NoError(t, q.Submit(op))

	assert.Panics(t, func() { op.Configure(operation.ExecutionContext{}) })
}

func TestQueue_CancelAll(t *testing.T) {
	q := queue.New(queue.Options{MaxConcurrent: 1})
	defer q.Close()

	release := make(chan struct{})
	blocker := queue.NewFuncTask("blocker", func(*queue.FuncTask) error {
		<-release
		return nil
	})
	var pendingRan atomic.Bool
	pending := queue.NewFuncTask("pending", func(*queue.FuncTask) error {
		pendingRan.Store(true)
		return nil
	})

	require.NoError(t, q.Submit(blocker))
	require.NoError(t, q.Submit(pending, blocker))

	q.CancelAll()
	close(release)

	require.NoError(t, q.Wait(waitCtx(t)), "cancellation is not a failure")
	assert.False(t, pendingRan.Load())
	assert.True(t, q.IsFinished(pending))
	assert.ErrorIs(t, pending.Err(), core.ErrCancelled)
	assert.True(t, blocker.IsCancelled())
}

func TestQueue_SubmitErrors(t *testing.T) {
	q := queue.New(queue.Options{})
	task := queue.NewFuncTask("dup", nil)

	require.NoError(t, q.Submit(task))
	assert.ErrorIs(t, q.Submit(task), queue.ErrDuplicateTask)
	assert.Error(t, q.Submit(nil))

	q.Close()
	assert.ErrorIs(t, q.Submit(queue.NewFuncTask("late", nil)), queue.ErrQueueClosed)
}

func TestQueue_WaitHonoursContext(t *testing.T) {
	q := queue.New(queue.Options{})
	release := make(chan struct{})
	defer func() {
		close(release)
		q.Close()
	}()

	require.NoError(t, q.Submit(queue.NewFuncTask("slow", func(*queue.FuncTask) error {
		<-release
		return nil
	})))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Wait(ctx), context.DeadlineExceeded)
}

func TestQueue_Events(t *testing.T) {
	bus := core.NewMemoryEventBus(nil)
	var (
		mu    sync.Mutex
		types []core.EventType
	)
	handler := core.EventHandlerFunc(func(_ context.Context, e core.Event) error {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, e.Type())
		return nil
	})
	bus.Subscribe(core.EventTaskSubmitted, handler)
	bus.Subscribe(core.EventTaskDispatched, handler)

	q := queue.New(queue.Options{EventBus: bus})
	require.NoError(t, q.Submit(queue.NewFuncTask("evented", nil)))
	require.NoError(t, q.Wait(waitCtx(t)))
	q.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []core.EventType{core.EventTaskSubmitted, core.EventTaskDispatched}, types)
}
