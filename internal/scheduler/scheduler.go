// Package scheduler runs the polling loop that re-prices active calls,
// detects milestones and drawdowns, persists the result and alerts.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"callwatch/internal/domain"
	"callwatch/internal/notify"
	"callwatch/internal/observability"
	"callwatch/internal/oracle"
	"callwatch/internal/storage"
	"callwatch/internal/tracking"
)

// Defaults.
const (
	DefaultPollInterval     = 5 * time.Minute
	DefaultBatchSize        = 50
	DefaultWorkers          = 8
	DefaultDrawdownFraction = 0.5
	DefaultFetchTimeout     = 10 * time.Second
	DefaultNotifyTimeout    = 10 * time.Second
)

// Options configures Scheduler.
type Options struct {
	Calls     storage.CallStore
	Snapshots storage.SnapshotStore // optional
	Oracle    oracle.PriceOracle
	Notifier  notify.Notifier // optional

	PollInterval time.Duration
	BatchSize    int
	Workers      int

	LowLadder        tracking.Ladder
	HighLadder       tracking.Ladder
	DrawdownFraction float64 // 0 disables dump alerts

	// ExtendOnMultiple > 0 pushes ExpiresAt to at least now+ExtendBy once the
	// call's multiple reaches it.
	ExtendOnMultiple float64
	ExtendBy         time.Duration

	FetchTimeout  time.Duration
	NotifyTimeout time.Duration

	Clock  func() time.Time
	Logger *zerolog.Logger // nil uses the global logger
}

// TickResult summarizes one polling tick.
type TickResult struct {
	Selected       int            `json:"selected"`
	Priced         int            `json:"priced"`
	Expired        int            `json:"expired"`
	FetchFailed    int            `json:"fetch_failed"`
	Conflicts      int            `json:"conflicts"`
	StoreErrors    int            `json:"store_errors"`
	Milestones     int            `json:"milestones"`
	Dumps          int            `json:"dumps"`
	NotifyFailures int            `json:"notify_failures"`
	Alerts         []domain.Alert `json:"-"` // alerts sent, in per-call order
}

// Status is a point-in-time view of the scheduler for status endpoints.
type Status struct {
	Running    bool       `json:"running"`
	Ticks      int        `json:"ticks"`
	LastTickAt time.Time  `json:"last_tick_at,omitempty"`
	LastTick   TickResult `json:"last_tick"`
}

// Scheduler polls due calls on a fixed interval.
type Scheduler struct {
	calls     storage.CallStore
	snapshots storage.SnapshotStore
	oracle    oracle.PriceOracle
	notifier  notify.Notifier

	pollInterval time.Duration
	batchSize    int
	workers      int

	ladder           tracking.Ladder
	drawdownFraction float64
	extendOnMultiple float64
	extendBy         time.Duration

	fetchTimeout  time.Duration
	notifyTimeout time.Duration

	now    func() time.Time
	logger zerolog.Logger

	tickMu sync.Mutex // serializes ticks

	mu         sync.Mutex
	running    bool
	ticks      int
	lastTickAt time.Time
	lastTick   TickResult
}

// New creates a new Scheduler.
func New(opts Options) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.LowLadder == nil && opts.HighLadder == nil {
		opts.LowLadder = tracking.DefaultLowLadder
		opts.HighLadder = tracking.DefaultHighLadder
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = DefaultNotifyTimeout
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Scheduler{
		calls:            opts.Calls,
		snapshots:        opts.Snapshots,
		oracle:           opts.Oracle,
		notifier:         opts.Notifier,
		pollInterval:     opts.PollInterval,
		batchSize:        opts.BatchSize,
		workers:          opts.Workers,
		ladder:           tracking.Merge(opts.LowLadder, opts.HighLadder),
		drawdownFraction: opts.DrawdownFraction,
		extendOnMultiple: opts.ExtendOnMultiple,
		extendBy:         opts.ExtendBy,
		fetchTimeout:     opts.FetchTimeout,
		notifyTimeout:    opts.NotifyTimeout,
		now:              opts.Clock,
		logger:           logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run ticks immediately and then every PollInterval until ctx is cancelled.
// Cancellation is observed between ticks; a tick in progress finishes its
// in-flight items.
func (s *Scheduler) Run(ctx context.Context) error {
	s.setRunning(true)
	defer s.setRunning(false)

	s.logger.Info().
		Dur("poll_interval", s.pollInterval).
		Int("batch_size", s.batchSize).
		Int("workers", s.workers).
		Str("ladder", s.ladder.String()).
		Msg("scheduler started")

	s.runTick(ctx)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	if _, err := s.Tick(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error().Err(err).Msg("tick failed")
	}
}

// Tick processes one batch of due calls. Per-item failures never fail the
// tick; only a failure to select the batch is returned.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	start := time.Now()
	now := s.now()

	due, err := s.calls.FindDue(ctx, now, s.batchSize)
	if err != nil {
		return TickResult{}, fmt.Errorf("find due calls: %w", err)
	}

	result := TickResult{Selected: len(due)}
	var snapshots []*domain.MarketSnapshot
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, call := range due {
		g.Go(func() error {
			item := s.process(gctx, call, now)

			mu.Lock()
			defer mu.Unlock()
			item.addTo(&result)
			if item.snapshot != nil {
				snapshots = append(snapshots, item.snapshot)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.appendSnapshots(ctx, snapshots)

	elapsed := time.Since(start)
	observability.RecordTick(result.Selected, elapsed.Seconds(), s.now().Unix())

	s.mu.Lock()
	s.ticks++
	s.lastTickAt = now
	s.lastTick = result
	s.mu.Unlock()

	if result.Selected > 0 {
		s.logger.Info().
			Int("selected", result.Selected).
			Int("priced", result.Priced).
			Int("expired", result.Expired).
			Int("fetch_failed", result.FetchFailed).
			Int("conflicts", result.Conflicts).
			Int("milestones", result.Milestones).
			Int("dumps", result.Dumps).
			Dur("elapsed", elapsed).
			Msg("tick completed")
	}

	return result, nil
}

// Status returns the scheduler status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:    s.running,
		Ticks:      s.ticks,
		LastTickAt: s.lastTickAt,
		LastTick:   s.lastTick,
	}
}

func (s *Scheduler) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}

func (s *Scheduler) appendSnapshots(ctx context.Context, snapshots []*domain.MarketSnapshot) {
	if s.snapshots == nil || len(snapshots) == 0 {
		return
	}
	if err := s.snapshots.InsertBulk(ctx, snapshots); err != nil {
		s.logger.Warn().Err(err).Int("count", len(snapshots)).Msg("append market snapshots failed")
	}
}

// isConflict reports whether err means another writer got there first.
func isConflict(err error) bool {
	return errors.Is(err, storage.ErrConflict)
}
