package main

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending PostgreSQL and ClickHouse migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.UseMemory {
			return errors.New("migrate needs --postgres-dsn and --clickhouse-dsn, not --use-memory")
		}
		_, cleanup, err := createStores(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		log.Info().Msg("migrations complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
