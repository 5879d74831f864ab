package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arthur-debert/loopop/pkg/loopop/core"
	"github.com/arthur-debert/loopop/pkg/loopop/reachability"
	"github.com/arthur-debert/loopop/pkg/loopop/runloop"
)

func newReachCommand() *cobra.Command {
	var (
		timeout time.Duration
		mask    string
		value   string
	)

	cmd := &cobra.Command{
		Use:   "reach [host[:port]]",
		Short: "Wait until a host reaches the wanted reachability",
		Long: `Probe a host until (flags & mask) == value, then exit. Flags are
resolved, reachable and local. By default waits for the host to be reachable.
The host defaults to reachability.host from the config file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: withRuntime(func(cmd *cobra.Command, args []string) error {
			targetMask, err := reachability.ParseFlags(mask)
			if err != nil {
				return err
			}
			targetValue, err := reachability.ParseFlags(value)
			if err != nil {
				return err
			}
			host := ""
			if len(args) == 1 {
				host = args[0]
			}

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			// the loop outlives the timeout so the cancellation can run on it
			loop := runloop.Spawn(parent, "reach", nil)
			defer loop.Stop()

			ctx, cancel := context.WithTimeout(parent, timeout)
			defer cancel()

			out := cmd.OutOrStdout()
			op := rt.Reachability(host, loop, func(f reachability.Flags) {
				fmt.Fprintf(out, "  %s: %s\n", time.Now().Format(time.TimeOnly), f)
			})
			op.SetTargetMask(targetMask)
			op.SetTargetValue(targetValue)

			fmt.Fprintf(out, "Waiting for %s to reach %s == %s\n", op.Host(), targetMask, targetValue)
			if err := rt.Queue.Submit(op); err != nil {
				return fmt.Errorf("failed to queue reachability check: %w", err)
			}

			if err := op.Wait(ctx); err != nil {
				op.Cancel()
				<-op.Done()
				fmt.Fprintf(out, "%s %s did not reach the target within %s (last: %s)\n", failMark(), op.Host(), timeout, op.Flags())
				return fmt.Errorf("reachability check timed out: %w", err)
			}
			if err := op.Err(); err != nil && !core.IsCancelled(err) {
				return err
			}
			fmt.Fprintf(out, "%s %s is %s\n", okMark(), op.Host(), op.Flags())
			return nil
		}),
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Give up after this long")
	cmd.Flags().StringVar(&mask, "mask", "reachable", "Flags to compare, e.g. reachable|resolved")
	cmd.Flags().StringVar(&value, "value", "reachable", "Value the masked flags must equal; \"none\" waits for them to clear")

	return cmd
}
