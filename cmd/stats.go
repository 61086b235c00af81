package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/interview-cli/internal/monitoring"
)

var (
	statsStaleHours int
	statsJSON       bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise stored interview sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "read")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hours := statsStaleHours
		if hours == 0 {
			hours = cfg.Monitor.StaleAfterHours
		}
		snap, err := monitoring.NewCollector(st, nil).Collect(ctx, hours)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if statsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		fmt.Fprintf(out, "sessions:        %d\n", snap.SessionsTotal)
		fmt.Fprintf(out, "  active:        %d\n", snap.SessionsActive)
		fmt.Fprintf(out, "  complete:      %d (%.0f%%)\n", snap.SessionsComplete, snap.CompletionRate*100)
		fmt.Fprintf(out, "avg progress:    %.0f%%\n", snap.AvgProgress*100)
		fmt.Fprintf(out, "avg turns:       %.1f\n", snap.AvgTurns)
		fmt.Fprintf(out, "stale (>%dh):    %d\n", snap.StaleAfterHours, snap.StaleActive)
		return nil
	},
}

func init() {
	statsCmd.Flags().IntVar(&statsStaleHours, "stale-hours", 0, "hours without a reply before an active session counts as stale (default from config)")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print the snapshot as JSON")
	rootCmd.AddCommand(statsCmd)
}
