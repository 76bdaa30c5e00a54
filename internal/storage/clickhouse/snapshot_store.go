package clickhouse

import (
	"context"
	"fmt"

	"callwatch/internal/domain"
	"callwatch/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using ClickHouse.
type SnapshotStore struct {
	conn *Conn
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// InsertBulk adds multiple snapshots. Fails entire batch on duplicate (call_id, timestamp_ms).
func (s *SnapshotStore) InsertBulk(ctx context.Context, snapshots []*domain.MarketSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	// MergeTree does not enforce keys, so duplicates are checked explicitly
	type key struct {
		callID      string
		timestampMs int64
	}
	seen := make(map[key]struct{}, len(snapshots))
	for _, snap := range snapshots {
		if snap == nil || snap.CallID == "" {
			return storage.ErrInvalidInput
		}
		k := key{snap.CallID, snap.TimestampMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	for _, snap := range snapshots {
		exists, err := s.exists(ctx, snap.CallID, snap.TimestampMs)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO market_snapshots (
			call_id, chain, address, timestamp_ms,
			price_usd, market_cap_usd, liquidity_usd, volume_24h_usd,
			estimated, source
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, snap := range snapshots {
		var estimated uint8
		if snap.Estimated {
			estimated = 1
		}
		err = batch.Append(
			snap.CallID, string(snap.Chain), snap.Address, uint64(snap.TimestampMs),
			snap.PriceUSD, snap.MarketCapUSD, snap.LiquidityUSD, snap.Volume24hUSD,
			estimated, snap.Source,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByCallID retrieves all snapshots for a call, ordered by timestamp ASC.
func (s *SnapshotStore) GetByCallID(ctx context.Context, callID string) ([]*domain.MarketSnapshot, error) {
	query := `
		SELECT call_id, chain, address, timestamp_ms,
			price_usd, market_cap_usd, liquidity_usd, volume_24h_usd,
			estimated, source
		FROM market_snapshots
		WHERE call_id = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, callID)
	if err != nil {
		return nil, fmt.Errorf("query by call id: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

func (s *SnapshotStore) exists(ctx context.Context, callID string, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM market_snapshots
		WHERE call_id = ? AND timestamp_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, callID, uint64(timestampMs)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanSnapshots(rows chRows) ([]*domain.MarketSnapshot, error) {
	var snapshots []*domain.MarketSnapshot

	for rows.Next() {
		var snap domain.MarketSnapshot
		var chain string
		var timestampMs uint64
		var estimated uint8

		err := rows.Scan(
			&snap.CallID, &chain, &snap.Address, &timestampMs,
			&snap.PriceUSD, &snap.MarketCapUSD, &snap.LiquidityUSD, &snap.Volume24hUSD,
			&estimated, &snap.Source,
		)
		if err != nil {
			return nil, fmt.Errorf("scan market snapshot row: %w", err)
		}

		snap.Chain = domain.Chain(chain)
		snap.TimestampMs = int64(timestampMs)
		snap.Estimated = estimated == 1
		snapshots = append(snapshots, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate market snapshot rows: %w", err)
	}

	return snapshots, nil
}
