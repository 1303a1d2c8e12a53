package handlers

import (
	"fmt"
	"os"
	"time"

	"paperlens/internal/logger"
	"paperlens/internal/pipeline"

	"github.com/spf13/cobra"
)

// NewRollupCmd creates the rollup command
func NewRollupCmd() *cobra.Command {
	rollupCmd := &cobra.Command{
		Use:   "rollup",
		Short: "Aggregate daily snapshots into a weekly or monthly summary",
		Long: `Read the persisted daily snapshots for a date range and write one
summary document: direction momentum, the top papers of the window, and
papers that kept reappearing.

Examples:
  paperlens rollup --week
  paperlens rollup --from 2025-06-01 --to 2025-06-30`,
		Run: rollupRunFunc,
	}

	rollupCmd.Flags().String("from", "", "Range start (YYYY-MM-DD)")
	rollupCmd.Flags().String("to", "", "Range end (YYYY-MM-DD)")
	rollupCmd.Flags().Bool("week", false, "Roll up the last 7 days")
	rollupCmd.Flags().Bool("month", false, "Roll up the last 30 days")
	rollupCmd.Flags().Int("top", 10, "Papers to list in the rollup")
	rollupCmd.Flags().StringP("output", "o", "rollups", "Output folder inside the data directory")

	return rollupCmd
}

func rollupRunFunc(cmd *cobra.Command, args []string) {
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	week, _ := cmd.Flags().GetBool("week")
	month, _ := cmd.Flags().GetBool("month")
	topN, _ := cmd.Flags().GetInt("top")
	output, _ := cmd.Flags().GetString("output")

	if from == "" || to == "" {
		days := 7
		if month {
			days = 30
		} else if !week {
			fmt.Fprintln(os.Stderr, "Error: provide --from/--to, --week, or --month")
			os.Exit(1)
		}
		now := time.Now().UTC()
		to = now.Format("2006-01-02")
		from = now.AddDate(0, 0, -(days - 1)).Format("2006-01-02")
	}

	st := openStores()
	gen := pipeline.NewRollupGenerator(st.snapshots, st.docs, topN)

	r, err := gen.Generate(from, to)
	if err != nil {
		logger.Error("Rollup failed", err)
		fmt.Fprintln(os.Stderr, styleErr.Render("rollup failed: "+err.Error()))
		os.Exit(1)
	}

	path, err := gen.WriteMarkdown(r, output)
	if err != nil {
		logger.Error("Failed to write rollup", err)
		os.Exit(1)
	}

	fmt.Printf("%s rolled up %s days (%s with errors)\n",
		styleOK.Render("✔"),
		styleValue.Render(fmt.Sprintf("%d", r.Days)),
		styleValue.Render(fmt.Sprintf("%d", r.ErrorDays)))
	fmt.Printf("  written to %s\n", styleValue.Render(path))
}
