package cmd

import (
	"fmt"
	"time"

	"github.com/marcus/fieldops/internal/db"
	"github.com/marcus/fieldops/internal/output"
	"github.com/spf13/cobra"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the local journal of visit transitions",
	Long: `Shows the local journal of committed visit transitions, oldest first.

With --calls, shows the recent backend calls instead.`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		calls, _ := cmd.Flags().GetBool("calls")

		journal, err := db.Open(cfg.DataDir)
		if err != nil {
			return err
		}
		defer journal.Close()

		if calls {
			entries, err := journal.GetSyncHistoryTail(limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				line := fmt.Sprintf("%s  %-18s %3d  %6s", e.Timestamp.Local().Format("2006-01-02 15:04:05"),
					e.Op, e.StatusCode, e.Elapsed.Round(time.Millisecond))
				if e.Error != "" {
					line += "  " + e.Error
				}
				fmt.Println(line)
			}
			return nil
		}

		entries, err := journal.TransitionTail(limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			output.Info("Journal is empty")
			return nil
		}
		for _, t := range entries {
			fmt.Println(output.FormatTransition(t))
		}
		return nil
	},
}

func init() {
	logCmd.Flags().IntP("limit", "n", 50, "Number of entries to show")
	logCmd.Flags().Bool("calls", false, "Show backend call history")
	rootCmd.AddCommand(logCmd)
}
