package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"callwatch/internal/domain"
	"callwatch/internal/notify"
	"callwatch/internal/observability"
	"callwatch/internal/oracle"
	"callwatch/internal/tracking"
)

// itemResult is the outcome of polling one call.
type itemResult struct {
	outcome        string
	alerts         []domain.Alert
	notifyFailures int
	snapshot       *domain.MarketSnapshot
}

func (r *itemResult) addTo(t *TickResult) {
	switch r.outcome {
	case observability.OutcomePriced, observability.OutcomeNoEntry:
		t.Priced++
	case observability.OutcomeExpired:
		t.Expired++
	case observability.OutcomeFetchFailed:
		t.FetchFailed++
	case observability.OutcomeConflict:
		t.Conflicts++
	case observability.OutcomeStoreError:
		t.StoreErrors++
	}
	for _, a := range r.alerts {
		if a.Kind == domain.AlertDrawdown {
			t.Dumps++
		} else {
			t.Milestones++
		}
	}
	t.NotifyFailures += r.notifyFailures
	t.Alerts = append(t.Alerts, r.alerts...)
}

// process polls one call: expire or re-price, evaluate, persist with the
// version read at selection, and only then alert.
func (s *Scheduler) process(ctx context.Context, call *domain.Call, now time.Time) itemResult {
	logger := s.logger.With().Str("call_id", call.ID).Str("address", call.Address).Logger()
	expected := call.Version

	next := call.Clone()
	next.NextCheckAt = now.Add(s.pollInterval)

	if now.After(call.ExpiresAt) {
		next.Status = domain.StatusExpired
		res := itemResult{outcome: observability.OutcomeExpired}
		if outcome, ok := s.persist(ctx, logger, next, expected); !ok {
			res.outcome = outcome
		} else {
			logger.Debug().Time("expires_at", call.ExpiresAt).Msg("call expired")
		}
		observability.RecordItem(res.outcome)
		return res
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	data, err := s.oracle.Fetch(fetchCtx, call.Chain, call.Address)
	cancel()

	var value float64
	if err == nil {
		var ok bool
		if value, ok = data.MarketCap(); !ok {
			err = oracle.ErrNotFound
		}
	}
	if err != nil {
		logFetchError(logger, err)
		res := itemResult{outcome: observability.OutcomeFetchFailed}
		if outcome, ok := s.persist(ctx, logger, next, expected); !ok {
			res.outcome = outcome
		}
		observability.RecordItem(res.outcome)
		return res
	}

	// Multiples are only meaningful when reading and entry share a basis.
	// A mismatched reading is recorded but otherwise treated as a miss.
	if call.HasEntry() && data.MarketCapEstimated != call.EntryEstimated {
		logger.Debug().
			Bool("entry_estimated", call.EntryEstimated).
			Bool("reading_estimated", data.MarketCapEstimated).
			Msg("market cap basis differs from entry, skipping")
		res := itemResult{
			outcome:  observability.OutcomeFetchFailed,
			snapshot: domain.NewMarketSnapshot(call, data, now.UnixMilli()),
		}
		if outcome, ok := s.persist(ctx, logger, next, expected); !ok {
			res.outcome = outcome
			res.snapshot = nil
		}
		observability.RecordItem(res.outcome)
		return res
	}

	alerts := s.evaluate(next, value, now)

	res := itemResult{
		outcome:  observability.OutcomePriced,
		snapshot: domain.NewMarketSnapshot(call, data, now.UnixMilli()),
	}
	if !call.HasEntry() {
		res.outcome = observability.OutcomeNoEntry
	}
	if outcome, ok := s.persist(ctx, logger, next, expected); !ok {
		// Nothing was written, so nothing is announced. The next tick
		// re-derives from the persisted state.
		res.outcome = outcome
		res.snapshot = nil
		observability.RecordItem(res.outcome)
		return res
	}
	observability.RecordItem(res.outcome)

	for _, a := range alerts {
		a.Call = next
		if err := s.send(ctx, a); err != nil {
			res.notifyFailures++
			logger.Warn().Err(err).Str("kind", string(a.Kind)).Float64("threshold", a.Threshold).Msg("notify failed")
		}
		res.alerts = append(res.alerts, a)
	}
	return res
}

// evaluate applies a fresh market value to next and returns the alerts due,
// milestones in ascending order followed by the dump alert.
func (s *Scheduler) evaluate(next *domain.Call, value float64, now time.Time) []domain.Alert {
	next.LastValue = value
	if !next.PeakLocked && value > next.PeakValue {
		next.PeakValue = value
	}

	multiple := next.Multiple()

	var alerts []domain.Alert
	newly := tracking.EvaluateMilestones(next.EntryValue, value, s.ladder, next.MultipliersHit)
	next.AddMultipliers(newly...)
	for _, t := range newly {
		alerts = append(alerts, domain.Alert{
			Kind:         domain.AlertMilestone,
			Threshold:    t,
			Multiple:     multiple,
			PeakValue:    next.PeakValue,
			CurrentValue: value,
		})
	}

	if tracking.DrawdownFires(next.PeakValue, value, s.drawdownFraction, next.DumpAlerted) {
		next.DumpAlerted = true
		alerts = append(alerts, domain.Alert{
			Kind:         domain.AlertDrawdown,
			Multiple:     multiple,
			PeakValue:    next.PeakValue,
			CurrentValue: value,
		})
	}

	if s.extendOnMultiple > 0 && multiple >= s.extendOnMultiple {
		if until := now.Add(s.extendBy); until.After(next.ExpiresAt) {
			next.ExpiresAt = until
		}
	}

	return alerts
}

// persist writes next conditioned on expected. It returns the failure outcome
// and false when nothing was written.
func (s *Scheduler) persist(ctx context.Context, logger zerolog.Logger, next *domain.Call, expected int64) (string, bool) {
	err := s.calls.Update(ctx, next, expected)
	switch {
	case err == nil:
		return "", true
	case isConflict(err):
		logger.Debug().Int64("version", expected).Msg("call changed concurrently, skipping")
		return observability.OutcomeConflict, false
	default:
		logger.Error().Err(err).Msg("persist call failed")
		return observability.OutcomeStoreError, false
	}
}

func (s *Scheduler) send(ctx context.Context, a domain.Alert) error {
	ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()

	err := s.notifier.Send(ctx, notify.FormatAlert(a))
	observability.RecordNotify(err)
	if a.Kind == domain.AlertDrawdown {
		observability.RecordDump()
	} else {
		observability.RecordMilestone(a.Threshold)
	}
	return err
}

func logFetchError(logger zerolog.Logger, err error) {
	switch {
	case errors.Is(err, oracle.ErrNotFound):
		logger.Debug().Err(err).Msg("no market data")
	case oracle.IsTransient(err):
		logger.Warn().Err(err).Msg("price fetch failed, retrying next tick")
	default:
		logger.Error().Err(err).Msg("price fetch failed")
	}
}
