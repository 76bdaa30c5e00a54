package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run a single scheduler tick and exit",
	Long: `Run one poll over the due calls, send alerts, and exit. Useful for
driving callwatch from an external scheduler instead of "serve".`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, closeStores, err := createStores(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStores()

		or, closeOracle, err := buildOracle(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeOracle()

		n, err := buildNotifier(cfg)
		if err != nil {
			return err
		}

		res, err := buildScheduler(cfg, st, or, n).Tick(ctx)
		if err != nil {
			return err
		}
		log.Info().
			Int("selected", res.Selected).
			Int("priced", res.Priced).
			Int("alerts", len(res.Alerts)).
			Msg("tick complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tickCmd)
}
