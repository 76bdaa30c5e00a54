package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"callwatch/internal/leaderboard"
	"callwatch/internal/notify"
)

var leaderboardLimit int

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Print the caller leaderboard",
	Example: `  callwatch leaderboard --limit 20
  callwatch leaderboard --postgres-dsn postgres://... --clickhouse-dsn clickhouse://...`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, cleanup, err := createStores(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		entries, err := leaderboard.NewRanker(st.calls).Rank(cmd.Context(), leaderboardLimit)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), notify.FormatLeaderboard(entries).Text)
		return nil
	},
}

func init() {
	leaderboardCmd.Flags().IntVar(&leaderboardLimit, "limit", 10, "Number of callers to show")
	rootCmd.AddCommand(leaderboardCmd)
}
