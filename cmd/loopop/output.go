package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/gookit/color"

	"github.com/arthur-debert/loopop/pkg/loopop/deletion"
)

func okMark() string {
	return color.Style{color.Bold, color.Green}.Render("✓")
}

func failMark() string {
	return color.Style{color.Bold, color.Red}.Render("✗")
}

// outcomePrinter returns a deletion observer printing every outcome to w
func outcomePrinter(w io.Writer) deletion.Observer {
	return func(path string, err error) {
		if err != nil {
			fmt.Fprintf(w, "  %s %s: %v\n", failMark(), path, err)
			return
		}
		fmt.Fprintf(w, "  %s %s\n", okMark(), path)
	}
}

// printDeleteResult prints the summary of a batch delete and returns the
// error the command should fail with
func printDeleteResult(w io.Writer, result deletion.DeleteBatchResult, dryRun bool) error {
	prefix := ""
	if dryRun {
		prefix = "DRY RUN: "
	}
	requested := humanize.Comma(int64(len(result.RequestedPaths)))

	if !result.Failed() {
		fmt.Fprintf(w, "%s %s%s paths deleted\n", okMark(), prefix, requested)
		return nil
	}
	fmt.Fprintf(w, "%s %s%s paths attempted, first failure:\n", failMark(), prefix, requested)
	fmt.Fprintf(w, "    %s: %v\n", result.Failure.Path, result.Failure.Cause)
	return fmt.Errorf("delete failed: %w", result.Err())
}
