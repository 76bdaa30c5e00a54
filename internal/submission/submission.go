// Package submission creates calls on behalf of callers and applies the
// administrative overrides the engine tolerates.
package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"callwatch/internal/chain"
	"callwatch/internal/cooldown"
	"callwatch/internal/domain"
	"callwatch/internal/observability"
	"callwatch/internal/oracle"
	"callwatch/internal/storage"
)

// Defaults.
const (
	DefaultTrackDuration = 7 * 24 * time.Hour
	DefaultPollInterval  = 5 * time.Minute
)

// Request is a caller's submission.
type Request struct {
	Chain   domain.Chain
	Address string
	Caller  domain.Caller
}

// DeniedError is returned when the cooldown rejects a submission.
type DeniedError struct {
	Reason     string
	RetryAfter time.Duration
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("call denied: %s", e.Reason)
}

// Unwrap lets errors.Is match storage.ErrCooldown.
func (e *DeniedError) Unwrap() error {
	return storage.ErrCooldown
}

// Options configures Service.
type Options struct {
	Calls  storage.CallStore
	Oracle oracle.PriceOracle
	Guard  *cooldown.Guard

	TrackDuration time.Duration // baseTrackDays
	PollInterval  time.Duration
	FetchTimeout  time.Duration

	Clock  func() time.Time
	NewID  func() string
	Logger *zerolog.Logger // nil uses the global logger
}

// Service validates, prices and stores new calls.
type Service struct {
	calls         storage.CallStore
	oracle        oracle.PriceOracle
	guard         *cooldown.Guard
	trackDuration time.Duration
	pollInterval  time.Duration
	fetchTimeout  time.Duration
	now           func() time.Time
	newID         func() string
	logger        zerolog.Logger
}

// New creates a new Service.
func New(opts Options) *Service {
	if opts.TrackDuration <= 0 {
		opts.TrackDuration = DefaultTrackDuration
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = oracle.DefaultFetchTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Service{
		calls:         opts.Calls,
		oracle:        opts.Oracle,
		guard:         opts.Guard,
		trackDuration: opts.TrackDuration,
		pollInterval:  opts.PollInterval,
		fetchTimeout:  opts.FetchTimeout,
		now:           opts.Clock,
		newID:         opts.NewID,
		logger:        logger.With().Str("component", "submission").Logger(),
	}
}

// Submit creates a call for req. The entry market cap is fetched once; when
// the fetch fails the call is still created with an unknown entry and is
// never scored. Returns *DeniedError when the caller is in cooldown.
func (s *Service) Submit(ctx context.Context, req Request) (*domain.Call, error) {
	if req.Caller.UserID == "" {
		observability.RecordSubmission("invalid")
		return nil, domain.ErrMissingCaller
	}
	address, err := chain.ValidateAddress(req.Chain, req.Address)
	if err != nil {
		observability.RecordSubmission("invalid")
		return nil, err
	}

	priv := s.guard.PrivilegeOf(req.Caller.UserID)
	decision, err := s.guard.MayCreateCall(ctx, req.Caller.UserID, priv)
	if err != nil {
		return nil, fmt.Errorf("check cooldown: %w", err)
	}
	if !decision.Allowed {
		observability.RecordSubmission("denied")
		return nil, &DeniedError{Reason: decision.Reason, RetryAfter: decision.RetryAfter}
	}

	now := s.now()
	call := &domain.Call{
		ID:          s.newID(),
		Chain:       req.Chain,
		Address:     address,
		Caller:      req.Caller,
		Status:      domain.StatusActive,
		CreatedAt:   now,
		NextCheckAt: now.Add(s.pollInterval),
		ExpiresAt:   now.Add(s.trackDuration),
	}
	s.priceEntry(ctx, call)

	rule := s.guard.RuleFor(priv)
	if err := s.calls.InsertGuarded(ctx, call, rule.Since, rule.Limit); err != nil {
		if errors.Is(err, storage.ErrCooldown) {
			// Lost a race with a concurrent submission from the same caller.
			observability.RecordSubmission("denied")
			d, derr := s.guard.MayCreateCall(ctx, req.Caller.UserID, priv)
			if derr != nil || d.Allowed {
				d = cooldown.Decision{Reason: "a call was just submitted, try again later", RetryAfter: rule.Window}
			}
			return nil, &DeniedError{Reason: d.Reason, RetryAfter: d.RetryAfter}
		}
		return nil, fmt.Errorf("store call: %w", err)
	}

	observability.RecordSubmission("created")
	s.logger.Info().
		Str("call_id", call.ID).
		Str("caller", call.Caller.UserID).
		Str("chain", call.Chain.String()).
		Str("address", call.Address).
		Float64("entry", call.EntryValue).
		Bool("estimated", call.EntryEstimated).
		Msg("call created")

	return call, nil
}

func (s *Service) priceEntry(ctx context.Context, call *domain.Call) {
	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	data, err := s.oracle.Fetch(ctx, call.Chain, call.Address)
	if err != nil {
		s.logger.Warn().Err(err).Str("address", call.Address).Msg("entry price unavailable, call created without entry")
		return
	}

	call.Ticker = data.Ticker
	if mc, ok := data.MarketCap(); ok {
		call.EntryValue = mc
		call.EntryEstimated = data.MarketCapEstimated
		call.LastValue = mc
		call.PeakValue = mc
	}
}

// Cancel moves an active call to cancelled.
func (s *Service) Cancel(ctx context.Context, id string) error {
	if err := s.calls.SetStatus(ctx, id, domain.StatusCancelled); err != nil {
		return fmt.Errorf("cancel call %s: %w", id, err)
	}
	s.logger.Info().Str("call_id", id).Msg("call cancelled")
	return nil
}

// SetPeakLock freezes or unfreezes a call's peak value.
func (s *Service) SetPeakLock(ctx context.Context, id string, locked bool) error {
	if err := s.calls.SetPeakLock(ctx, id, locked); err != nil {
		return fmt.Errorf("set peak lock on %s: %w", id, err)
	}
	return nil
}

// SetExcluded hides or shows a call on the leaderboard.
func (s *Service) SetExcluded(ctx context.Context, id string, excluded bool) error {
	if err := s.calls.SetExcluded(ctx, id, excluded); err != nil {
		return fmt.Errorf("set excluded on %s: %w", id, err)
	}
	return nil
}

// CallsByCaller lists a caller's calls, oldest first.
func (s *Service) CallsByCaller(ctx context.Context, callerID string) ([]*domain.Call, error) {
	calls, err := s.calls.FindByCaller(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("load calls for %s: %w", callerID, err)
	}
	return calls, nil
}
