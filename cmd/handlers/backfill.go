package handlers

import (
	"fmt"
	"os"

	"paperlens/internal/config"
	"paperlens/internal/logger"
	"paperlens/internal/pipeline"

	"github.com/spf13/cobra"
)

// NewBackfillCmd creates the backfill command
func NewBackfillCmd() *cobra.Command {
	backfillCmd := &cobra.Command{
		Use:   "backfill <start-date> <end-date>",
		Short: "Replay the digest pipeline over a past date range",
		Long: `Process every day in the inclusive range, oldest first. Each day runs
in historical mode: the fetch window is pinned to that day and neither
the dedup map nor the daily run state is modified. One day failing does
not stop the rest.

Example:
  paperlens backfill 2025-06-01 2025-06-07`,
		Args: cobra.ExactArgs(2),
		Run:  backfillRunFunc,
	}

	backfillCmd.Flags().Int("max-days", 0, "Override the configured range limit")
	backfillCmd.Flags().BoolP("quiet", "q", false, "Suppress per-day progress output")

	return backfillCmd
}

func backfillRunFunc(cmd *cobra.Command, args []string) {
	start, end := args[0], args[1]
	quiet, _ := cmd.Flags().GetBool("quiet")
	maxDays, _ := cmd.Flags().GetInt("max-days")
	if maxDays <= 0 {
		maxDays = config.GetBackfill().MaxDays
	}

	st := openStores()
	orch, cleanup, err := buildOrchestrator(st, nil)
	if err != nil {
		logger.Error("Failed to build pipeline", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, stop := signalContext()
	defer stop()

	var progress pipeline.ProgressFunc
	if !quiet {
		progress = func(date string, i, total int, dayErr error) {
			mark := styleOK.Render("✔")
			if dayErr != nil {
				mark = styleErr.Render("✘")
			}
			fmt.Printf("%s %s (%d/%d)\n", mark, date, i, total)
		}
	}

	driver := pipeline.NewBackfillDriver(orch, maxDays)
	coord := pipeline.NewCoordinator()
	res, err := coord.RunBackfill(ctx, driver, start, end, progress)
	if err != nil {
		logger.Error("Backfill failed", err)
		fmt.Fprintln(os.Stderr, styleErr.Render("backfill failed: "+err.Error()))
		os.Exit(1)
	}

	fmt.Printf("%s %s days processed, %s failed\n",
		styleOK.Render("✔"),
		styleValue.Render(fmt.Sprintf("%d", len(res.Processed))),
		styleValue.Render(fmt.Sprintf("%d", len(res.Errors))))
	for date, msg := range res.Errors {
		fmt.Printf("  %s: %s\n", date, msg)
	}
}
