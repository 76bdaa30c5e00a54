// Package digest posts the leaderboard to the notifier on a cron schedule.
package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"callwatch/internal/domain"
	"callwatch/internal/notify"
)

// Defaults.
const (
	DefaultSchedule = "0 12 * * *" // daily at noon
	DefaultTop      = 10
	DefaultTimeout  = 30 * time.Second
)

// Ranker produces the current leaderboard.
type Ranker interface {
	Rank(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

// Options configures Worker.
type Options struct {
	Schedule string
	Top      int
	Timeout  time.Duration
	Location *time.Location
	Logger   *zerolog.Logger // nil uses the global logger
}

// Worker publishes the leaderboard digest.
type Worker struct {
	ranker   Ranker
	notifier notify.Notifier
	schedule string
	top      int
	timeout  time.Duration
	cron     *cron.Cron
	logger   zerolog.Logger
}

// New creates a new Worker.
func New(ranker Ranker, notifier notify.Notifier, opts Options) *Worker {
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if opts.Top <= 0 {
		opts.Top = DefaultTop
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Worker{
		ranker:   ranker,
		notifier: notifier,
		schedule: opts.Schedule,
		top:      opts.Top,
		timeout:  opts.Timeout,
		cron:     cron.New(cron.WithLocation(opts.Location)),
		logger:   logger.With().Str("component", "digest").Logger(),
	}
}

// Start registers the digest job and starts the cron runner.
func (w *Worker) Start() error {
	_, err := w.cron.AddFunc(w.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()

		if err := w.Publish(ctx); err != nil {
			w.logger.Error().Err(err).Msg("failed to publish leaderboard digest")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid digest schedule %q: %w", w.schedule, err)
	}

	w.cron.Start()
	w.logger.Info().Str("schedule", w.schedule).Int("top", w.top).Msg("digest worker started")
	return nil
}

// Stop halts the cron runner and waits for a running job to finish.
func (w *Worker) Stop() {
	<-w.cron.Stop().Done()
	w.logger.Info().Msg("digest worker stopped")
}

// Publish ranks callers and sends the top entries once.
func (w *Worker) Publish(ctx context.Context) error {
	entries, err := w.ranker.Rank(ctx, w.top)
	if err != nil {
		return fmt.Errorf("rank callers: %w", err)
	}

	if err := w.notifier.Send(ctx, notify.FormatLeaderboard(entries)); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}

	w.logger.Info().Int("entries", len(entries)).Msg("leaderboard digest published")
	return nil
}
