package storage

import (
	"context"
	"time"

	"callwatch/internal/domain"
)

// CallStore provides access to calls storage.
// Every write bumps the call's Version.
type CallStore interface {
	// Insert adds a new call. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, c *domain.Call) error

	// InsertGuarded adds a new call unless the caller already has limit or more
	// calls created after since. The count and insert are atomic per caller.
	// limit <= 0 disables the check. Returns ErrCooldown on violation.
	InsertGuarded(ctx context.Context, c *domain.Call, since time.Time, limit int) error

	// GetByID retrieves a call by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Call, error)

	// FindDue retrieves up to limit active calls with next_check_at <= now,
	// ordered by next_check_at ASC (oldest due first), then id ASC.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.Call, error)

	// Update writes the engine-owned fields of c (last/peak values, multipliers,
	// dump latch, status, next_check_at, expires_at) as a single write, only if
	// the stored version equals expectedVersion. On success c.Version is set to
	// the new version. Returns ErrConflict on version mismatch, ErrNotFound if
	// the call does not exist.
	Update(ctx context.Context, c *domain.Call, expectedVersion int64) error

	// FindByCaller retrieves all calls of a caller, ordered by created_at ASC.
	FindByCaller(ctx context.Context, callerID string) ([]*domain.Call, error)

	// CountByCallerSince counts calls of a caller created strictly after since,
	// regardless of status.
	CountByCallerSince(ctx context.Context, callerID string, since time.Time) (int, error)

	// FindAll retrieves all calls ordered by created_at ASC, id ASC.
	FindAll(ctx context.Context) ([]*domain.Call, error)

	// SetStatus applies an administrative status transition.
	// Returns ErrInvalidInput if the transition is not allowed.
	SetStatus(ctx context.Context, id string, status domain.Status) error

	// SetPeakLock freezes or unfreezes the call's peak value.
	SetPeakLock(ctx context.Context, id string, locked bool) error

	// SetExcluded includes or excludes the call from the leaderboard.
	SetExcluded(ctx context.Context, id string, excluded bool) error
}

// SnapshotStore provides access to market_snapshots storage.
type SnapshotStore interface {
	// InsertBulk adds multiple snapshots. Fails entire batch on duplicate (call_id, timestamp_ms).
	InsertBulk(ctx context.Context, snapshots []*domain.MarketSnapshot) error

	// GetByCallID retrieves all snapshots for a call, ordered by timestamp ASC.
	GetByCallID(ctx context.Context, callID string) ([]*domain.MarketSnapshot, error)
}
