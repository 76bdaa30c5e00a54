// Package config loads callwatch settings from defaults, an optional config
// file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"callwatch/internal/tracking"
)

// Config holds all configuration for the application.
type Config struct {
	// Engine
	PollInterval     time.Duration
	BatchSize        int
	Workers          int
	LowLadder        tracking.Ladder
	HighLadder       tracking.Ladder
	DrawdownFraction float64
	BaseTrackDays    int
	ExtendOnMultiple float64
	ExtendDays       int

	// Cooldown
	CooldownWindow      time.Duration
	PremiumDailyQuota   int
	PrivilegedCallerIDs []string
	PremiumCallerIDs    []string

	// Oracle
	DexScreenerURL string
	JupiterURL     string
	SolanaRPCURL   string
	AssumedSupply  float64
	OracleTimeout  time.Duration
	CacheTTL       time.Duration

	// Storage
	UseMemory     bool
	PostgresDSN   string
	ClickhouseDSN string
	RedisAddr     string

	// Notifications
	TelegramToken  string
	TelegramChatID int64
	DigestCron     string
	DigestSize     int

	// Server
	HTTPAddr   string
	AdminToken string
	Debug      bool
}

// TrackDuration is the base tracking window of a new call.
func (c *Config) TrackDuration() time.Duration {
	return time.Duration(c.BaseTrackDays) * 24 * time.Hour
}

// ExtendBy is the tracking extension applied on a pump.
func (c *Config) ExtendBy() time.Duration {
	return time.Duration(c.ExtendDays) * 24 * time.Hour
}

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("poll_interval_minutes", 5)
	v.SetDefault("batch_size", 50)
	v.SetDefault("workers", 8)
	v.SetDefault("low_milestone_ladder", tracking.DefaultLowLadder.String())
	v.SetDefault("high_milestone_ladder", tracking.DefaultHighLadder.String())
	v.SetDefault("drawdown_fraction", 0.5)
	v.SetDefault("base_track_days", 7)
	v.SetDefault("extend_on_multiple", 0.0)
	v.SetDefault("extend_days", 7)

	v.SetDefault("cooldown_window_hours", 24)
	v.SetDefault("premium_daily_quota", 5)
	v.SetDefault("privileged_caller_ids", "")
	v.SetDefault("premium_caller_ids", "")

	v.SetDefault("dexscreener_url", "https://api.dexscreener.com")
	v.SetDefault("jupiter_url", "https://api.jup.ag")
	v.SetDefault("solana_rpc_url", "")
	v.SetDefault("assumed_supply", 1e9)
	v.SetDefault("oracle_timeout", "10s")
	v.SetDefault("cache_ttl", "30s")

	v.SetDefault("use_memory", false)
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("clickhouse_dsn", "")
	v.SetDefault("redis_addr", "")

	v.SetDefault("telegram_token", "")
	v.SetDefault("telegram_chat_id", 0)
	v.SetDefault("digest_cron", "0 12 * * *")
	v.SetDefault("digest_size", 10)

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("admin_token", "")
	v.SetDefault("debug", false)
}

// New returns a viper instance with defaults registered and environment
// overrides enabled.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	return v
}

// Load reads the .env file (if present) and the config file at path (if
// non-empty), then builds a validated Config from v.
func Load(v *viper.Viper, path string) (*Config, error) {
	// Missing .env is fine; system env vars still apply.
	_ = godotenv.Load()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper builds a validated Config from the values in v.
func FromViper(v *viper.Viper) (*Config, error) {
	low, err := ladder(v, "low_milestone_ladder")
	if err != nil {
		return nil, err
	}
	high, err := ladder(v, "high_milestone_ladder")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		PollInterval:     time.Duration(v.GetInt("poll_interval_minutes")) * time.Minute,
		BatchSize:        v.GetInt("batch_size"),
		Workers:          v.GetInt("workers"),
		LowLadder:        low,
		HighLadder:       high,
		DrawdownFraction: v.GetFloat64("drawdown_fraction"),
		BaseTrackDays:    v.GetInt("base_track_days"),
		ExtendOnMultiple: v.GetFloat64("extend_on_multiple"),
		ExtendDays:       v.GetInt("extend_days"),

		CooldownWindow:      time.Duration(v.GetInt("cooldown_window_hours")) * time.Hour,
		PremiumDailyQuota:   v.GetInt("premium_daily_quota"),
		PrivilegedCallerIDs: stringList(v.Get("privileged_caller_ids")),
		PremiumCallerIDs:    stringList(v.Get("premium_caller_ids")),

		DexScreenerURL: v.GetString("dexscreener_url"),
		JupiterURL:     v.GetString("jupiter_url"),
		SolanaRPCURL:   v.GetString("solana_rpc_url"),
		AssumedSupply:  v.GetFloat64("assumed_supply"),
		OracleTimeout:  v.GetDuration("oracle_timeout"),
		CacheTTL:       v.GetDuration("cache_ttl"),

		UseMemory:     v.GetBool("use_memory"),
		PostgresDSN:   v.GetString("postgres_dsn"),
		ClickhouseDSN: v.GetString("clickhouse_dsn"),
		RedisAddr:     v.GetString("redis_addr"),

		TelegramToken:  v.GetString("telegram_token"),
		TelegramChatID: v.GetInt64("telegram_chat_id"),
		DigestCron:     v.GetString("digest_cron"),
		DigestSize:     v.GetInt("digest_size"),

		HTTPAddr:   v.GetString("http_addr"),
		AdminToken: v.GetString("admin_token"),
		Debug:      v.GetBool("debug"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Accepted range for oracle_timeout.
const (
	MinOracleTimeout = 8 * time.Second
	MaxOracleTimeout = 12 * time.Second
)

// Validate checks ranges and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error

	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval_minutes must be positive"))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, errors.New("batch_size must be positive"))
	}
	if c.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.DrawdownFraction < 0 || c.DrawdownFraction >= 1 {
		errs = append(errs, errors.New("drawdown_fraction must be in [0, 1)"))
	}
	if c.BaseTrackDays <= 0 {
		errs = append(errs, errors.New("base_track_days must be positive"))
	}
	if c.ExtendOnMultiple < 0 {
		errs = append(errs, errors.New("extend_on_multiple must not be negative"))
	}
	if c.CooldownWindow <= 0 {
		errs = append(errs, errors.New("cooldown_window_hours must be positive"))
	}
	if c.PremiumDailyQuota <= 0 {
		errs = append(errs, errors.New("premium_daily_quota must be positive"))
	}
	if c.AssumedSupply <= 0 {
		errs = append(errs, errors.New("assumed_supply must be positive"))
	}
	if c.OracleTimeout < MinOracleTimeout || c.OracleTimeout > MaxOracleTimeout {
		errs = append(errs, fmt.Errorf("oracle_timeout must be between %s and %s", MinOracleTimeout, MaxOracleTimeout))
	}
	if len(c.LowLadder) == 0 && len(c.HighLadder) == 0 {
		errs = append(errs, errors.New("at least one milestone ladder is required"))
	}
	if !c.UseMemory && (c.PostgresDSN == "" || c.ClickhouseDSN == "") {
		errs = append(errs, errors.New("postgres_dsn and clickhouse_dsn are required unless use_memory is set"))
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		errs = append(errs, errors.New("telegram_chat_id is required with telegram_token"))
	}

	return errors.Join(errs...)
}

func ladder(v *viper.Viper, key string) (tracking.Ladder, error) {
	raw := strings.Join(stringList(v.Get(key)), ",")
	l, err := tracking.ParseLadder(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if l == nil {
		return nil, nil
	}

	if key == "low_milestone_ladder" {
		err = l.ValidateLow()
	} else {
		err = l.ValidateHigh()
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return l, nil
}

// stringList accepts a comma-separated string (env, flags) or a list (config
// file) and returns the trimmed non-empty items.
func stringList(raw any) []string {
	var items []string
	switch val := raw.(type) {
	case nil:
	case string:
		items = strings.Split(val, ",")
	case []string:
		items = val
	case []any:
		for _, it := range val {
			items = append(items, fmt.Sprint(it))
		}
	default:
		items = []string{fmt.Sprint(val)}
	}

	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
