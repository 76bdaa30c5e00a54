package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"callwatch/internal/domain"
	"callwatch/internal/storage"
)

var baseTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newCall(id, caller string, created time.Time) *domain.Call {
	return &domain.Call{
		ID:          id,
		Chain:       domain.ChainSOL,
		Address:     "mint-" + id,
		Caller:      domain.Caller{UserID: caller},
		EntryValue:  100000,
		LastValue:   100000,
		PeakValue:   100000,
		Status:      domain.StatusActive,
		CreatedAt:   created,
		NextCheckAt: created.Add(5 * time.Minute),
		ExpiresAt:   created.Add(7 * 24 * time.Hour),
	}
}

func TestCallStore_InsertAndGet(t *testing.T) {
	store := NewCallStore()
	ctx := context.Background()

	c := newCall("c1", "u1", baseTime)
	if err := store.Insert(ctx, c); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if c.Version != 1 {
		t.Errorf("expected version 1 after insert, got %d", c.Version)
	}

	got, err := store.GetByID(ctx, "c1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Address != c.Address {
		t.Errorf("Address mismatch: got %s, want %s", got.Address, c.Address)
	}

	// Mutating the returned copy must not affect the store
	got.LastValue = 1
	again, _ := store.GetByID(ctx, "c1")
	if again.LastValue != 100000 {
		t.Errorf("store was mutated through returned copy")
	}
}

func TestCallStore_DuplicateAndInvalid(t *testing.T) {
	store := NewCallStore()
	ctx := context.Background()

	c := newCall("c1", "u1", baseTime)
	if err := store.Insert(ctx, c); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := store.Insert(ctx, c); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for nil, got %v", err)
	}
	if err := store.Insert(ctx, &domain.Call{ID: "x"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for incomplete call, got %v", err)
	}
	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCallStore_FindDueOrderingAndLimit(t *testing.T) {
	store := NewCallStore()
	ctx := context.Background()

	for i, offset := range []time.Duration{3, 1, 2, 10} {
		c := newCall(fmt.Sprintf("c%d", i), fmt.Sprintf("u%d", i), baseTime)
		c.NextCheckAt = baseTime.Add(offset * time.Minute)
		if err := store.Insert(ctx, c); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	cancelled := newCall("cx", "ux", baseTime)
	cancelled.NextCheckAt = baseTime
	cancelled.Status = domain.StatusCancelled
	if err := store.Insert(ctx, cancelled); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	due, err := store.FindDue(ctx, baseTime.Add(5*time.Minute), 2)
	if err != nil {
		t.Fatalf("FindDue failed: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due calls, got %d", len(due))
	}
	if due[0].ID != "c1" || due[1].ID != "c2" {
		t.Errorf("expected oldest-due first [c1 c2], got [%s %s]", due[0].ID, due[1].ID)
	}

	all, _ := store.FindDue(ctx, baseTime.Add(5*time.Minute), 0)
	if len(all) != 3 {
		t.Errorf("expected 3 due active calls without limit, got %d", len(all))
	}
}

func TestCallStore_UpdateVersioning(t *testing.T) {
	store := NewCallStore()
	ctx := context.Background()

	c := newCall("c1", "u1", baseTime)
	if err := store.Insert(ctx, c); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	first, _ := store.GetByID(ctx, "c1")
	second, _ := store.GetByID(ctx, "c1")

	first.LastValue = 250000
	first.PeakValue = 250000
	first.AddMultipliers(2)
	if err := store.Update(ctx, first, first.Version); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if first.Version != 2 {
		t.Errorf("expected version 2, got %d", first.Version)
	}

	second.LastValue = 1
	if err := store.Update(ctx, second, second.Version); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict for stale writer, got %v", err)
	}

	got, _ := store.GetByID(ctx, "c1")
	if got.LastValue != 250000 || len(got.MultipliersHit) != 1 {
		t.Errorf("stale write leaked: %+v", got)
	}
}

func TestCallStore_UpdateRejectsReactivation(t *testing.T) {
	store := NewCallStore()
	ctx := context.Background()

	c := newCall("c1", "u1", baseTime)
	_ = store.Insert(ctx, c)
	if err := store.SetStatus(ctx, "c1", domain.StatusCancelled); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	got, _ := store.GetByID(ctx, "c1")
	got.Status = domain.StatusActive
	if err := store.Update(ctx, got, got.Version); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput when reactivating, got %v", err)
	}
	if err := store.SetStatus(ctx, "c1", domain.StatusExpired); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for cancelled -> expired, got %v", err)
	}
}

func TestCallStore_AdminWritesBumpVersion(t *testing.T) {
	store := NewCallStore()
	ctx := context.Background()

	c := newCall("c1", "u1", baseTime)
	_ = store.Insert(ctx, c)
	stale, _ := store.GetByID(ctx, "c1")

	if err := store.SetPeakLock(ctx, "c1", true); err != nil {
		t.Fatalf("SetPeakLock failed: %v", err)
	}
	if err := store.SetExcluded(ctx, "c1", true); err != nil {
		t.Fatalf("SetExcluded failed: %v", err)
	}

	if err := store.Update(ctx, stale, stale.Version); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict after admin write, got %v", err)
	}

	got, _ := store.GetByID(ctx, "c1")
	if !got.PeakLocked || !got.ExcludedFromLeaderboard {
		t.Errorf("admin flags not persisted: %+v", got)
	}
	if got.Version != 3 {
		t.Errorf("expected version 3, got %d", got.Version)
	}

	if err := store.SetPeakLock(ctx, "missing", true); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCallStore_FindByCallerAndCount(t *testing.T) {
	store := NewCallStore()
	ctx := context.Background()

	_ = store.Insert(ctx, newCall("c1", "u1", baseTime.Add(-30*time.Hour)))
	_ = store.Insert(ctx, newCall("c2", "u1", baseTime.Add(-2*time.Hour)))
	_ = store.Insert(ctx, newCall("c3", "u2", baseTime.Add(-1*time.Hour)))

	calls, err := store.FindByCaller(ctx, "u1")
	if err != nil {
		t.Fatalf("FindByCaller failed: %v", err)
	}
	if len(calls) != 2 || calls[0].ID != "c1" {
		t.Errorf("expected [c1 c2] ordered by created_at, got %d calls", len(calls))
	}

	n, err := store.CountByCallerSince(ctx, "u1", baseTime.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CountByCallerSince failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 call in window, got %d", n)
	}
}

func TestCallStore_InsertGuardedConcurrent(t *testing.T) {
	store := NewCallStore()
	ctx := context.Background()
	since := baseTime.Add(-24 * time.Hour)

	var wg sync.WaitGroup
	var accepted, denied atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.InsertGuarded(ctx, newCall(fmt.Sprintf("c%d", i), "u1", baseTime), since, 1)
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, storage.ErrCooldown):
				denied.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if accepted.Load() != 1 {
		t.Errorf("expected exactly 1 accepted submission, got %d", accepted.Load())
	}
	if denied.Load() != 49 {
		t.Errorf("expected 49 denied submissions, got %d", denied.Load())
	}
}

func TestCallStore_InsertGuardedUnlimited(t *testing.T) {
	store := NewCallStore()
	ctx := context.Background()
	since := baseTime.Add(-24 * time.Hour)

	for i := 0; i < 3; i++ {
		if err := store.InsertGuarded(ctx, newCall(fmt.Sprintf("c%d", i), "admin", baseTime), since, 0); err != nil {
			t.Fatalf("unlimited insert %d failed: %v", i, err)
		}
	}
}
