package leaderboard

import (
	"context"
	"fmt"
	"testing"
	"time"

	"callwatch/internal/domain"
	"callwatch/internal/storage/memory"
)

var baseTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

var seq int

func call(caller string, entry, last float64) *domain.Call {
	seq++
	return &domain.Call{
		ID:         fmt.Sprintf("call-%d", seq),
		Chain:      domain.ChainSOL,
		Address:    "mint",
		Caller:     domain.Caller{UserID: caller},
		EntryValue: entry,
		LastValue:  last,
		Status:     domain.StatusActive,
		CreatedAt:  baseTime.Add(time.Duration(seq) * time.Minute),
	}
}

func TestRank_Ordering(t *testing.T) {
	calls := []*domain.Call{
		call("C", 100, 300),
		call("B", 100, 500),
		call("A", 100, 500),
		call("A", 100, 400),
		call("B", 100, 100),
		call("A", 100, 300),
	}

	got := Rank(calls, 0)
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}

	want := []struct {
		id    string
		best  float64
		avg   float64
		total int
	}{
		{"A", 5, 4, 3},
		{"B", 5, 3, 2},
		{"C", 3, 3, 1},
	}
	for i, w := range want {
		e := got[i]
		if e.CallerID != w.id || e.BestMultiple != w.best || e.AvgMultiple != w.avg || e.TotalCalls != w.total {
			t.Errorf("position %d: expected %+v, got %+v", i, w, e)
		}
	}
}

func TestRank_TotalCallsTieBreak(t *testing.T) {
	calls := []*domain.Call{
		call("X", 100, 200),
		call("Y", 100, 200),
		call("Y", 0, 0),
	}

	got := Rank(calls, 0)
	if got[0].CallerID != "Y" || got[1].CallerID != "X" {
		t.Errorf("expected Y before X, got %s, %s", got[0].CallerID, got[1].CallerID)
	}

	// Fully tied callers order by id.
	got = Rank([]*domain.Call{call("Z", 100, 200), call("M", 100, 200)}, 0)
	if got[0].CallerID != "M" {
		t.Errorf("expected M first, got %s", got[0].CallerID)
	}
}

func TestRank_BestMultipleFloor(t *testing.T) {
	got := Rank([]*domain.Call{
		call("loser", 100, 20),
		call("unpriced", 0, 500),
		call("unpriced", 100, 0),
	}, 0)

	byID := map[string]domain.LeaderboardEntry{}
	for _, e := range got {
		byID[e.CallerID] = e
	}

	loser := byID["loser"]
	if loser.BestMultiple != 1 {
		t.Errorf("expected best multiple floor 1, got %v", loser.BestMultiple)
	}
	if loser.AvgMultiple != 0.2 {
		t.Errorf("expected avg 0.2, got %v", loser.AvgMultiple)
	}

	unpriced := byID["unpriced"]
	if unpriced.BestMultiple != 1 || unpriced.AvgMultiple != 0 || unpriced.TotalCalls != 2 {
		t.Errorf("unexpected unpriced entry %+v", unpriced)
	}
}

func TestRank_AverageSkipsUnpriced(t *testing.T) {
	got := Rank([]*domain.Call{
		call("A", 100, 400),
		call("A", 100, 200),
		call("A", 0, 0),
	}, 0)

	if got[0].AvgMultiple != 3 {
		t.Errorf("expected avg 3 over priced calls only, got %v", got[0].AvgMultiple)
	}
	if got[0].TotalCalls != 3 {
		t.Errorf("expected total 3, got %d", got[0].TotalCalls)
	}
}

func TestRank_Exclusion(t *testing.T) {
	hidden := call("A", 100, 10000)
	hidden.ExcludedFromLeaderboard = true

	got := Rank([]*domain.Call{hidden, call("A", 100, 200), call("B", 100, 300)}, 0)
	if got[0].CallerID != "B" {
		t.Errorf("excluded call must not count, got leader %s", got[0].CallerID)
	}
	if got[1].TotalCalls != 1 {
		t.Errorf("excluded call must not count toward total, got %d", got[1].TotalCalls)
	}

	only := call("solo", 100, 900)
	only.ExcludedFromLeaderboard = true
	if got := Rank([]*domain.Call{only}, 0); len(got) != 0 {
		t.Errorf("caller with only excluded calls must not appear, got %v", got)
	}
}

func TestRank_LimitAndDisplayName(t *testing.T) {
	old, recent := "old", "recent"
	c1 := call("A", 100, 200)
	c1.Caller.DisplayName = &old
	c2 := call("A", 100, 200)
	c2.Caller.DisplayName = &recent
	c3 := call("A", 100, 200)

	got := Rank([]*domain.Call{c2, c1, c3, call("B", 100, 150), call("C", 100, 120)}, 2)
	if len(got) != 2 {
		t.Fatalf("expected limit 2, got %d", len(got))
	}
	if got[0].DisplayName != "recent" {
		t.Errorf("expected most recent display name, got %q", got[0].DisplayName)
	}
}

func TestRanker(t *testing.T) {
	store := memory.NewCallStore()
	ctx := context.Background()
	for _, c := range []*domain.Call{call("A", 100, 500), call("B", 100, 300)} {
		if err := store.Insert(ctx, c); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	r := NewRanker(store)
	got, err := r.Rank(ctx, 10)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if len(got) != 2 || got[0].CallerID != "A" {
		t.Errorf("unexpected ranking %+v", got)
	}

	e, ok, err := r.CallerStats(ctx, "B")
	if err != nil || !ok {
		t.Fatalf("CallerStats: %v %v", ok, err)
	}
	if e.BestMultiple != 3 {
		t.Errorf("expected best 3, got %v", e.BestMultiple)
	}

	_, ok, err = r.CallerStats(ctx, "nobody")
	if err != nil || ok {
		t.Errorf("expected no stats, got %v %v", ok, err)
	}
}
