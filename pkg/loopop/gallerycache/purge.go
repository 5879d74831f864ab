package gallerycache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"

	"github.com/arthur-debert/loopop/pkg/loopop/core"
	"github.com/arthur-debert/loopop/pkg/loopop/deletion"
	"github.com/arthur-debert/loopop/pkg/loopop/filesystem"
	"github.com/arthur-debert/loopop/pkg/loopop/queue"
)

const lockRetryDelay = 50 * time.Millisecond

// ErrLocked is returned by Purge with NoWait when another purge holds the lock
var ErrLocked = errors.New("gallery cache is locked by another purge")

// PurgeOptions configures a purge
type PurgeOptions struct {
	ID core.OperationID
	// FS overrides the cache filesystem for the deletion, e.g. with a
	// filesystem.DryRunFileSystem
	FS       filesystem.FileSystem
	Observer deletion.Observer
	EventBus core.EventBus
	// NoWait makes Purge fail with ErrLocked instead of waiting for the lock
	NoWait bool
}

// PurgeTask returns a delete task over the current cache entries. The lock
// file is never part of it.
func (c *Cache) PurgeTask(opts PurgeOptions) (*deletion.Task, error) {
	entries, err := c.Entries()
	if err != nil {
		return nil, err
	}
	var fsys filesystem.FileSystem = c.fs
	if opts.FS != nil {
		fsys = opts.FS
	}
	return deletion.NewTask(entries, deletion.Options{
		ID:       opts.ID,
		FS:       fsys,
		Logger:   c.logger,
		EventBus: opts.EventBus,
		Observer: opts.Observer,
	}), nil
}

// Purge deletes the cache contents through q while holding the cache lock,
// then recreates the empty layout. Like any batch delete it attempts every
// entry and reports the first failure.
func (c *Cache) Purge(ctx context.Context, q *queue.Queue, opts PurgeOptions) (deletion.DeleteBatchResult, error) {
	lock := flock.New(c.layout.LockPath())

	var (
		locked bool
		err    error
	)
	if opts.NoWait {
		locked, err = lock.TryLock()
	} else {
		locked, err = lock.TryLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return deletion.DeleteBatchResult{}, fmt.Errorf("acquire lock on gallery cache: %w", err)
	}
	if !locked {
		return deletion.DeleteBatchResult{}, ErrLocked
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			c.logger.Error().Err(err).Str("path", c.layout.LockPath()).Msg("release lock on gallery cache")
		}
	}()

	task, err := c.PurgeTask(opts)
	if err != nil {
		return deletion.DeleteBatchResult{}, err
	}
	c.logger.Info().
		Str("root", c.layout.Root).
		Int("entries", len(task.Paths())).
		Msg("purging gallery cache")

	if err := q.Submit(task); err != nil {
		return deletion.DeleteBatchResult{}, fmt.Errorf("submit purge: %w", err)
	}
	select {
	case <-task.Done():
	case <-ctx.Done():
		q.Cancel(task)
		<-task.Done()
	}

	if err := c.ensureLayout(); err != nil {
		return task.Result(), err
	}
	return task.Result(), task.Err()
}
