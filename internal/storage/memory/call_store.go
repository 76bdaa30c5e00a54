package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"callwatch/internal/domain"
	"callwatch/internal/storage"
)

// CallStore is an in-memory implementation of storage.CallStore.
type CallStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Call // keyed by id
}

// NewCallStore creates a new in-memory call store.
func NewCallStore() *CallStore {
	return &CallStore{
		data: make(map[string]*domain.Call),
	}
}

// Insert adds a new call. Returns ErrDuplicateKey if id exists.
func (s *CallStore) Insert(_ context.Context, c *domain.Call) error {
	if c == nil || c.Validate() != nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(c)
}

// InsertGuarded adds a new call unless the caller is in cooldown.
func (s *CallStore) InsertGuarded(_ context.Context, c *domain.Call, since time.Time, limit int) error {
	if c == nil || c.Validate() != nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if limit > 0 && s.countLocked(c.Caller.UserID, since) >= limit {
		return storage.ErrCooldown
	}
	return s.insertLocked(c)
}

func (s *CallStore) insertLocked(c *domain.Call) error {
	if _, exists := s.data[c.ID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	stored := c.Clone()
	stored.Version = 1
	s.data[c.ID] = stored
	c.Version = 1
	return nil
}

// GetByID retrieves a call by its ID. Returns ErrNotFound if not exists.
func (s *CallStore) GetByID(_ context.Context, id string) (*domain.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return c.Clone(), nil
}

// FindDue retrieves up to limit active calls that are due at now.
func (s *CallStore) FindDue(_ context.Context, now time.Time, limit int) ([]*domain.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Call
	for _, c := range s.data {
		if c.Status == domain.StatusActive && !c.NextCheckAt.After(now) {
			result = append(result, c.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].NextCheckAt.Equal(result[j].NextCheckAt) {
			return result[i].NextCheckAt.Before(result[j].NextCheckAt)
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Update writes the engine-owned fields of c if the version matches.
func (s *CallStore) Update(_ context.Context, c *domain.Call, expectedVersion int64) error {
	if c == nil || c.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.data[c.ID]
	if !exists {
		return storage.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return storage.ErrConflict
	}
	if !stored.Status.CanTransition(c.Status) {
		return storage.ErrInvalidInput
	}

	stored.LastValue = c.LastValue
	stored.PeakValue = c.PeakValue
	stored.MultipliersHit = append([]float64(nil), c.MultipliersHit...)
	stored.DumpAlerted = c.DumpAlerted
	stored.Status = c.Status
	stored.NextCheckAt = c.NextCheckAt
	stored.ExpiresAt = c.ExpiresAt
	stored.Version++

	c.Version = stored.Version
	return nil
}

// FindByCaller retrieves all calls of a caller, ordered by created_at ASC.
func (s *CallStore) FindByCaller(_ context.Context, callerID string) ([]*domain.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Call
	for _, c := range s.data {
		if c.Caller.UserID == callerID {
			result = append(result, c.Clone())
		}
	}
	sortByCreated(result)
	return result, nil
}

// CountByCallerSince counts calls of a caller created after since.
func (s *CallStore) CountByCallerSince(_ context.Context, callerID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.countLocked(callerID, since), nil
}

func (s *CallStore) countLocked(callerID string, since time.Time) int {
	n := 0
	for _, c := range s.data {
		if c.Caller.UserID == callerID && c.CreatedAt.After(since) {
			n++
		}
	}
	return n
}

// FindAll retrieves all calls ordered by created_at ASC.
func (s *CallStore) FindAll(_ context.Context) ([]*domain.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Call, 0, len(s.data))
	for _, c := range s.data {
		result = append(result, c.Clone())
	}
	sortByCreated(result)
	return result, nil
}

// SetStatus applies an administrative status transition.
func (s *CallStore) SetStatus(_ context.Context, id string, status domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	if !status.IsValid() || !stored.Status.CanTransition(status) {
		return storage.ErrInvalidInput
	}
	stored.Status = status
	stored.Version++
	return nil
}

// SetPeakLock freezes or unfreezes the call's peak value.
func (s *CallStore) SetPeakLock(_ context.Context, id string, locked bool) error {
	return s.modify(id, func(c *domain.Call) { c.PeakLocked = locked })
}

// SetExcluded includes or excludes the call from the leaderboard.
func (s *CallStore) SetExcluded(_ context.Context, id string, excluded bool) error {
	return s.modify(id, func(c *domain.Call) { c.ExcludedFromLeaderboard = excluded })
}

func (s *CallStore) modify(id string, fn func(c *domain.Call)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.data[id]
	if !exists {
		return storage.ErrNotFound
	}
	fn(stored)
	stored.Version++
	return nil
}

func sortByCreated(calls []*domain.Call) {
	sort.Slice(calls, func(i, j int) bool {
		if !calls[i].CreatedAt.Equal(calls[j].CreatedAt) {
			return calls[i].CreatedAt.Before(calls[j].CreatedAt)
		}
		return calls[i].ID < calls[j].ID
	})
}

// Verify interface compliance at compile time.
var _ storage.CallStore = (*CallStore)(nil)
