package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"callwatch/internal/config"
	"callwatch/internal/cooldown"
	"callwatch/internal/notify"
	"callwatch/internal/oracle"
	"callwatch/internal/scheduler"
	"callwatch/internal/submission"
)

// buildOracle chains DexScreener and Jupiter, refines SOL market caps with
// on-chain supply when an RPC endpoint is set, and caches results.
func buildOracle(ctx context.Context, cfg *config.Config) (oracle.PriceOracle, func(), error) {
	primaryBudget := oracle.PrimaryBudget(cfg.OracleTimeout)
	opts := oracle.Options{
		Primary:       oracle.NewDexScreener(cfg.DexScreenerURL, oracle.WithTimeout(primaryBudget)),
		Secondary:     oracle.NewJupiter(cfg.JupiterURL, oracle.WithTimeout(cfg.OracleTimeout-primaryBudget)),
		AssumedSupply: cfg.AssumedSupply,
		Timeout:       cfg.OracleTimeout,
	}
	if cfg.SolanaRPCURL != "" {
		opts.Supply = oracle.NewSolanaSupply(cfg.SolanaRPCURL)
	}
	base := oracle.New(opts)

	if cfg.RedisAddr == "" {
		return oracle.NewCached(base, oracle.NewMemoryCache(), cfg.CacheTTL), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("market data cache on redis")
	return oracle.NewCached(base, oracle.NewRedisCache(client), cfg.CacheTTL), func() { client.Close() }, nil
}

// buildNotifier fans alerts out to Telegram (when configured) and any extra
// targets such as the websocket feed.
func buildNotifier(cfg *config.Config, extra ...notify.Notifier) (notify.Notifier, error) {
	targets := append(notify.Multi{}, extra...)
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			return nil, fmt.Errorf("connect telegram: %w", err)
		}
		targets = append(targets, tg)
	} else {
		log.Warn().Msg("telegram not configured")
	}
	return targets, nil
}

func buildScheduler(cfg *config.Config, st *stores, or oracle.PriceOracle, n notify.Notifier) *scheduler.Scheduler {
	return scheduler.New(scheduler.Options{
		Calls:            st.calls,
		Snapshots:        st.snapshots,
		Oracle:           or,
		Notifier:         n,
		PollInterval:     cfg.PollInterval,
		BatchSize:        cfg.BatchSize,
		Workers:          cfg.Workers,
		LowLadder:        cfg.LowLadder,
		HighLadder:       cfg.HighLadder,
		DrawdownFraction: cfg.DrawdownFraction,
		ExtendOnMultiple: cfg.ExtendOnMultiple,
		ExtendBy:         cfg.ExtendBy(),
		FetchTimeout:     cfg.OracleTimeout,
	})
}

func buildSubmission(cfg *config.Config, st *stores, or oracle.PriceOracle) *submission.Service {
	guard := cooldown.NewGuard(st.calls, cooldown.Options{
		Window:       cfg.CooldownWindow,
		PremiumQuota: cfg.PremiumDailyQuota,
		Admins:       cfg.PrivilegedCallerIDs,
		Premium:      cfg.PremiumCallerIDs,
	})
	return submission.New(submission.Options{
		Calls:         st.calls,
		Oracle:        or,
		Guard:         guard,
		TrackDuration: cfg.TrackDuration(),
		PollInterval:  cfg.PollInterval,
		FetchTimeout:  cfg.OracleTimeout,
	})
}
