package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"paperlens/internal/logger"
	"paperlens/internal/pipeline"

	"github.com/spf13/cobra"
)

// NewDigestCmd creates the daily digest command
func NewDigestCmd() *cobra.Command {
	digestCmd := &cobra.Command{
		Use:   "digest",
		Short: "Fetch, rank, and render today's paper digest",
		Long: `Run the full daily pipeline: fetch papers from the configured feeds,
merge community signals, filter already-seen items, rank against your
interests and directions, annotate with the LLM when a key is set, and
write a markdown digest.

Examples:
  # Today's digest
  paperlens digest

  # Re-run a specific day without touching dedup or run state
  paperlens digest --date 2025-06-10 --historical

  # Re-rank a day whose items were already marked seen
  paperlens digest --date 2025-06-14 --skip-dedup`,
		Run: digestRunFunc,
	}

	digestCmd.Flags().String("date", "", "Target date (YYYY-MM-DD, default today)")
	digestCmd.Flags().Bool("historical", false, "Pin the fetch window to the date and leave dedup/run state untouched")
	digestCmd.Flags().Bool("skip-dedup", false, "Do not filter papers already surfaced on earlier days")
	digestCmd.Flags().BoolP("quiet", "q", false, "Suppress per-stage progress output")

	return digestCmd
}

func digestRunFunc(cmd *cobra.Command, args []string) {
	date, _ := cmd.Flags().GetString("date")
	historical, _ := cmd.Flags().GetBool("historical")
	skipDedup, _ := cmd.Flags().GetBool("skip-dedup")
	quiet, _ := cmd.Flags().GetBool("quiet")

	st := openStores()
	orch, cleanup, err := buildOrchestrator(st, stageObserver(quiet))
	if err != nil {
		logger.Error("Failed to build pipeline", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, stop := signalContext()
	defer stop()

	coord := pipeline.NewCoordinator()
	res, err := coord.RunDaily(ctx, orch, pipeline.RunOptions{
		Date:       date,
		Historical: historical,
		SkipDedup:  skipDedup,
	})
	if err != nil {
		logger.Error("Digest run failed", err)
		fmt.Fprintln(os.Stderr, styleErr.Render("digest failed: "+err.Error()))
		os.Exit(1)
	}

	if res.FetchError != "" {
		fmt.Println(styleErr.Render("primary fetch failed: " + res.FetchError))
	}
	fmt.Printf("%s %s papers ranked, %s trending\n",
		styleOK.Render("✔"),
		styleValue.Render(fmt.Sprintf("%d", len(res.Papers))),
		styleValue.Render(fmt.Sprintf("%d", len(res.Trending))))
	fmt.Printf("  digest written to %s\n", styleValue.Render(res.DocumentPath))
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, so a run
// stops at its next stage boundary instead of dying mid-write.
func signalContext() (context.Context, func()) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
