package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/arthur-debert/loopop/pkg/loopop"
	"github.com/arthur-debert/loopop/pkg/loopop/config"
	"github.com/arthur-debert/loopop/pkg/loopop/core"
	"github.com/arthur-debert/loopop/pkg/loopop/operation"
	"github.com/arthur-debert/loopop/pkg/loopop/queue"
	"github.com/arthur-debert/loopop/pkg/loopop/runloop"
)

// Example wiring a run loop operation, a closure task and a batch delete
// through one queue, ordered by a Batch.
func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rt, err := loopop.NewRuntime(config.Default(), os.Stderr)
	if err != nil {
		log.Fatalf("NewRuntime failed: %v", err)
	}
	defer rt.Close()

	loop := runloop.Spawn(ctx, "example", nil)
	defer loop.Stop()

	dir, err := os.MkdirTemp("", "loopop-example")
	if err != nil {
		log.Fatalf("MkdirTemp failed: %v", err)
	}

	fmt.Println("=== Run loop operation ===")
	// Finishes from a loop timer, so the work never blocks the loop
	warmup := operation.New(operation.WorkFuncs{
		Start: func(h *operation.Handle) {
			fmt.Printf("  started on %s\n", h.Loop())
			if _, err := h.AfterFunc(100*time.Millisecond, func() { h.Finish(nil) }); err != nil {
				h.Fail(err)
			}
		},
		WillFinish: func(h *operation.Handle) {
			fmt.Printf("  finishing, err=%v\n", h.Err())
		},
	}, operation.Options{
		ID:          rt.IDs("warmup", dir),
		Kind:        "warmup",
		DefaultLoop: loop,
		Logger:      rt.Logger,
		EventBus:    rt.Bus,
	})

	seed := queue.NewFuncTask(rt.IDs("seed", dir), func(*queue.FuncTask) error {
		for _, name := range []string{"Photos/a.jpg", "Photos/2024/b.jpg", "Thumbnails/a.jpg"} {
			path := filepath.Join(dir, name)
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(name), 0644); err != nil {
				return err
			}
		}
		fmt.Println("✓ seeded", dir)
		return nil
	})

	purge := rt.DeleteTask([]string{dir}, nil, func(path string, err error) {
		fmt.Printf("  removed %s (err=%v)\n", path, err)
	})

	batch := queue.NewBatch(rt.Logger)
	for _, add := range []struct {
		task core.Task
		deps []core.OperationID
	}{
		{purge, []core.OperationID{seed.ID(), warmup.ID()}},
		{seed, nil},
		{warmup, nil},
	} {
		if err := batch.Add(add.task, add.deps...); err != nil {
			log.Fatalf("Add failed: %v", err)
		}
	}
	if err := batch.SubmitTo(rt.Queue); err != nil {
		log.Fatalf("SubmitTo failed: %v", err)
	}

	if err := rt.Queue.Wait(ctx); err != nil {
		log.Fatalf("Wait failed: %v", err)
	}
	result := purge.Result()
	fmt.Printf("✓ %d paths requested, failed: %v\n", len(result.RequestedPaths), result.Failed())
	_, err = os.Lstat(dir)
	fmt.Println("  directory still there:", err == nil)
}
