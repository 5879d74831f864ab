package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/arthur-debert/loopop/pkg/loopop/core"
	"github.com/arthur-debert/loopop/pkg/loopop/deletion"
	"github.com/arthur-debert/loopop/pkg/loopop/filesystem"
	"github.com/arthur-debert/loopop/pkg/loopop/gallerycache"
)

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or purge the photo gallery cache",
	}
	cmd.AddCommand(newCacheDuCommand())
	cmd.AddCommand(newCachePurgeCommand())
	return cmd
}

func newCacheDuCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "du",
		Short: "Show the disk usage of the gallery cache",
		Args:  cobra.NoArgs,
		RunE: withRuntime(func(cmd *cobra.Command, args []string) error {
			c, err := rt.OpenCache()
			if err != nil {
				return err
			}
			u, err := c.Size()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s in %s files, %s directories\n",
				c.Layout().Root, humanize.Bytes(uint64(u.Bytes)),
				humanize.Comma(int64(u.Files)), humanize.Comma(int64(u.Dirs)))
			return nil
		}),
	}
}

func newCachePurgeCommand() *cobra.Command {
	var (
		dryRun  bool
		noWait  bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete everything in the gallery cache",
		Long: `Delete the cache contents while holding the cache lock, then recreate
the empty Photos and Thumbnails directories. Every entry is attempted and the
first failure is reported.`,
		Args: cobra.NoArgs,
		RunE: withRuntime(func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			c, err := rt.OpenCache()
			if err != nil {
				return err
			}

			opts := gallerycache.PurgeOptions{
				ID:       rt.IDs(deletion.Kind, c.Layout().Root),
				EventBus: rt.Bus,
				NoWait:   noWait,
			}
			if dryRun {
				opts.FS = filesystem.NewDryRunFileSystem(filesystem.NewOSFileSystem(""))
			}
			if verbose {
				opts.Observer = outcomePrinter(out)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			result, err := c.Purge(ctx, rt.Queue, opts)
			var delErr *core.DeleteError
			if err != nil && !errors.As(err, &delErr) {
				return err
			}
			return printDeleteResult(out, result, dryRun)
		}),
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be deleted without deleting")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Fail instead of waiting when another purge holds the lock")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print every path as it is handled")

	return cmd
}
