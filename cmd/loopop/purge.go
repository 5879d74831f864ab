package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arthur-debert/loopop/pkg/loopop/core"
	"github.com/arthur-debert/loopop/pkg/loopop/deletion"
	"github.com/arthur-debert/loopop/pkg/loopop/filesystem"
)

func newPurgeCommand() *cobra.Command {
	var (
		dryRun  bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "purge [paths...]",
		Short: "Recursively delete paths, best effort",
		Long: `Recursively delete every given path. Symlinks are removed, never followed.
A failure does not stop the batch: every path is attempted and the first
failure is reported.`,
		Args: cobra.MinimumNArgs(1),
		RunE: withRuntime(func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			var fsys filesystem.FileSystem = filesystem.NewOSFileSystem("")
			if dryRun {
				fsys = filesystem.NewDryRunFileSystem(fsys)
			}
			var observer deletion.Observer
			if verbose {
				observer = outcomePrinter(out)
			}

			task := rt.DeleteTask(args, fsys, observer)
			if err := rt.Queue.Submit(task); err != nil {
				return fmt.Errorf("failed to queue delete: %w", err)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			select {
			case <-task.Done():
			case <-ctx.Done():
				rt.Queue.Cancel(task)
				<-task.Done()
			}
			if core.IsCancelled(task.Err()) {
				return task.Err()
			}
			return printDeleteResult(out, task.Result(), dryRun)
		}),
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be deleted without deleting")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print every path as it is handled")

	return cmd
}
