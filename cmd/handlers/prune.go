package handlers

import (
	"fmt"
	"os"
	"time"

	"paperlens/internal/config"
	"paperlens/internal/logger"

	"github.com/spf13/cobra"
)

// NewPruneCmd creates the prune command
func NewPruneCmd() *cobra.Command {
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop dedup entries older than the retention window",
		Long: `Remove dedup entries whose first-seen date is older than the retention
window (digest.dedup_keep_days, default 90). Papers pruned here can be
surfaced again if a feed re-publishes them.`,
		Run: pruneRunFunc,
	}

	pruneCmd.Flags().Int("keep-days", 0, "Override the configured retention window")

	return pruneCmd
}

func pruneRunFunc(cmd *cobra.Command, args []string) {
	keepDays, _ := cmd.Flags().GetInt("keep-days")
	if keepDays <= 0 {
		keepDays = config.GetDigest().DedupKeepDays
	}
	if keepDays <= 0 {
		keepDays = 90
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -keepDays).Format("2006-01-02")

	st := openStores()
	before := st.dedup.Len()
	removed, err := st.dedup.Prune(cutoff)
	if err != nil {
		logger.Error("Prune failed", err)
		fmt.Fprintln(os.Stderr, styleErr.Render("prune failed: "+err.Error()))
		os.Exit(1)
	}

	fmt.Printf("%s pruned %s of %s dedup entries (older than %s)\n",
		styleOK.Render("✔"),
		styleValue.Render(fmt.Sprintf("%d", removed)),
		styleValue.Render(fmt.Sprintf("%d", before)),
		cutoff)
}
