package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"callwatch/internal/domain"
	"callwatch/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[string]*domain.MarketSnapshot // keyed by (call_id, timestamp_ms)
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		data: make(map[string]*domain.MarketSnapshot),
	}
}

func snapshotKey(callID string, timestampMs int64) string {
	return fmt.Sprintf("%s|%d", callID, timestampMs)
}

// InsertBulk adds multiple snapshots. Fails entire batch on duplicate.
func (s *SnapshotStore) InsertBulk(_ context.Context, snapshots []*domain.MarketSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(snapshots))

	// First pass: check for duplicates (existing + intra-batch)
	for _, snap := range snapshots {
		if snap == nil || snap.CallID == "" {
			return storage.ErrInvalidInput
		}
		key := snapshotKey(snap.CallID, snap.TimestampMs)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, snap := range snapshots {
		snapCopy := *snap
		s.data[snapshotKey(snap.CallID, snap.TimestampMs)] = &snapCopy
	}

	return nil
}

// GetByCallID retrieves all snapshots for a call, ordered by timestamp ASC.
func (s *SnapshotStore) GetByCallID(_ context.Context, callID string) ([]*domain.MarketSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.MarketSnapshot
	for _, snap := range s.data {
		if snap.CallID == callID {
			snapCopy := *snap
			result = append(result, &snapCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)
