// Command callwatch tracks token calls, alerts on milestones and dumps, and
// ranks callers.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"callwatch/internal/config"
)

var (
	cfgFile string
	v       = config.New()
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "callwatch",
	Short: "Track token calls and rank the callers",
	Long: `callwatch records calls on SOL and BSC tokens, polls their market cap,
alerts when a call crosses a milestone multiple or dumps from its peak, and
ranks callers on a leaderboard.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		setupLogging(cfg.Debug)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to a config file (yaml, json or toml)")
	flags.Bool("debug", false, "Enable debug logging")
	flags.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL and ClickHouse")
	flags.String("postgres-dsn", "", "PostgreSQL connection string")
	flags.String("clickhouse-dsn", "", "ClickHouse connection string")

	mustBind("debug", flags.Lookup("debug"))
	mustBind("use_memory", flags.Lookup("use-memory"))
	mustBind("postgres_dsn", flags.Lookup("postgres-dsn"))
	mustBind("clickhouse_dsn", flags.Lookup("clickhouse-dsn"))
}

func setupLogging(debug bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func mustBind(key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", key, err))
	}
}
