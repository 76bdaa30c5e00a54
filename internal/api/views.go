package api

import (
	"time"

	"callwatch/internal/domain"
)

type callView struct {
	ID             string    `json:"id"`
	Chain          string    `json:"chain"`
	Address        string    `json:"address"`
	CallerID       string    `json:"caller_id"`
	Ticker         string    `json:"ticker,omitempty"`
	EntryValue     float64   `json:"entry_value"`
	EntryEstimated bool      `json:"entry_estimated"`
	LastValue      float64   `json:"last_value"`
	PeakValue      float64   `json:"peak_value"`
	Multiple       float64   `json:"multiple"`
	MultipliersHit []float64 `json:"multipliers_hit"`
	DumpAlerted    bool      `json:"dump_alerted"`
	PeakLocked     bool      `json:"peak_locked"`
	Excluded       bool      `json:"excluded"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	NextCheckAt    time.Time `json:"next_check_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func newCallView(c *domain.Call) callView {
	v := callView{
		ID:             c.ID,
		Chain:          c.Chain.String(),
		Address:        c.Address,
		CallerID:       c.Caller.UserID,
		EntryValue:     c.EntryValue,
		EntryEstimated: c.EntryEstimated,
		LastValue:      c.LastValue,
		PeakValue:      c.PeakValue,
		Multiple:       c.Multiple(),
		MultipliersHit: c.MultipliersHit,
		DumpAlerted:    c.DumpAlerted,
		PeakLocked:     c.PeakLocked,
		Excluded:       c.ExcludedFromLeaderboard,
		Status:         c.Status.String(),
		CreatedAt:      c.CreatedAt,
		NextCheckAt:    c.NextCheckAt,
		ExpiresAt:      c.ExpiresAt,
	}
	if c.Ticker != nil {
		v.Ticker = *c.Ticker
	}
	if v.MultipliersHit == nil {
		v.MultipliersHit = []float64{}
	}
	return v
}

type entryView struct {
	Rank         int     `json:"rank,omitempty"`
	CallerID     string  `json:"caller_id"`
	DisplayName  string  `json:"display_name"`
	TotalCalls   int     `json:"total_calls"`
	BestMultiple float64 `json:"best_multiple"`
	AvgMultiple  float64 `json:"avg_multiple"`
}

func newEntryView(rank int, e domain.LeaderboardEntry) entryView {
	return entryView{
		Rank:         rank,
		CallerID:     e.CallerID,
		DisplayName:  e.DisplayName,
		TotalCalls:   e.TotalCalls,
		BestMultiple: e.BestMultiple,
		AvgMultiple:  e.AvgMultiple,
	}
}
