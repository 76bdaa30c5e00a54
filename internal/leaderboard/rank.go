// Package leaderboard ranks callers by the performance of their calls.
package leaderboard

import (
	"context"
	"fmt"
	"sort"

	"callwatch/internal/domain"
	"callwatch/internal/storage"
)

// callerStats accumulates one caller's calls.
type callerStats struct {
	id          string
	displayName string
	nameAt      int64 // created_at (unix nanos) of the call the name came from
	total       int
	best        float64
	sum         float64
	priced      int
}

// Rank aggregates calls per caller and orders the result by best multiple
// desc, average multiple desc, total calls desc, caller id asc. Calls
// excluded from the leaderboard are ignored. limit <= 0 returns every caller.
func Rank(calls []*domain.Call, limit int) []domain.LeaderboardEntry {
	byCaller := make(map[string]*callerStats)

	for _, c := range calls {
		if c == nil || c.ExcludedFromLeaderboard {
			continue
		}

		s, ok := byCaller[c.Caller.UserID]
		if !ok {
			s = &callerStats{id: c.Caller.UserID, best: 1}
			byCaller[c.Caller.UserID] = s
		}
		s.total++

		if c.Caller.DisplayName != nil && *c.Caller.DisplayName != "" {
			if at := c.CreatedAt.UnixNano(); s.displayName == "" || at >= s.nameAt {
				s.displayName = *c.Caller.DisplayName
				s.nameAt = at
			}
		}

		if m := c.Multiple(); m > 0 {
			s.sum += m
			s.priced++
			if m > s.best {
				s.best = m
			}
		}
	}

	entries := make([]domain.LeaderboardEntry, 0, len(byCaller))
	for _, s := range byCaller {
		e := domain.LeaderboardEntry{
			CallerID:     s.id,
			DisplayName:  s.displayName,
			TotalCalls:   s.total,
			BestMultiple: s.best,
		}
		if s.priced > 0 {
			e.AvgMultiple = s.sum / float64(s.priced)
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.BestMultiple != b.BestMultiple {
			return a.BestMultiple > b.BestMultiple
		}
		if a.AvgMultiple != b.AvgMultiple {
			return a.AvgMultiple > b.AvgMultiple
		}
		if a.TotalCalls != b.TotalCalls {
			return a.TotalCalls > b.TotalCalls
		}
		return a.CallerID < b.CallerID
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// Ranker serves the leaderboard from a CallStore.
type Ranker struct {
	store storage.CallStore
}

// NewRanker creates a new Ranker.
func NewRanker(store storage.CallStore) *Ranker {
	return &Ranker{store: store}
}

// Rank loads every call and ranks callers. limit <= 0 returns every caller.
func (r *Ranker) Rank(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	calls, err := r.store.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load calls: %w", err)
	}
	return Rank(calls, limit), nil
}

// CallerStats returns the entry of a single caller, or false if the caller has
// no ranked calls.
func (r *Ranker) CallerStats(ctx context.Context, callerID string) (domain.LeaderboardEntry, bool, error) {
	calls, err := r.store.FindByCaller(ctx, callerID)
	if err != nil {
		return domain.LeaderboardEntry{}, false, fmt.Errorf("load calls for %s: %w", callerID, err)
	}
	entries := Rank(calls, 0)
	if len(entries) == 0 {
		return domain.LeaderboardEntry{}, false, nil
	}
	return entries[0], true, nil
}
