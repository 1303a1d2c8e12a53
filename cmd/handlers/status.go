package handlers

import (
	"fmt"

	"paperlens/internal/config"

	"github.com/spf13/cobra"
)

// NewStatusCmd creates the status command
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline state: last run, last error, store sizes",
		Run:   statusRunFunc,
	}
}

func statusRunFunc(cmd *cobra.Command, args []string) {
	st := openStores()
	rs := st.runState.Current()

	fmt.Println(styleHeading.Render("paperlens status"))
	fmt.Printf("  data dir:       %s\n", styleValue.Render(config.GetApp().DataDir))

	if rs.LastDailyRun.IsZero() {
		fmt.Println("  last daily run: never")
	} else {
		fmt.Printf("  last daily run: %s\n", styleValue.Render(rs.LastDailyRun.Format("2006-01-02 15:04 UTC")))
	}

	if rs.LastError != nil {
		fmt.Printf("  last error:     %s\n",
			styleErr.Render(fmt.Sprintf("[%s] %s (%s)",
				rs.LastError.Stage, rs.LastError.Message,
				rs.LastError.Time.Format("2006-01-02 15:04"))))
	} else {
		fmt.Printf("  last error:     %s\n", styleOK.Render("none"))
	}

	fmt.Printf("  dedup entries:  %s\n", styleValue.Render(fmt.Sprintf("%d", st.dedup.Len())))
	fmt.Printf("  tracked items:  %s\n", styleValue.Render(fmt.Sprintf("%d", st.tracking.Len())))

	dates, err := st.snapshots.Dates()
	if err != nil {
		fmt.Printf("  snapshots:      %s\n", styleErr.Render("unreadable: "+err.Error()))
		return
	}
	if len(dates) == 0 {
		fmt.Println("  snapshots:      none")
	} else {
		fmt.Printf("  snapshots:      %s (%s to %s)\n",
			styleValue.Render(fmt.Sprintf("%d", len(dates))),
			dates[0], dates[len(dates)-1])
	}
}
