package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"callwatch/internal/domain"
	"callwatch/internal/storage"
)

// CallStore implements storage.CallStore using PostgreSQL.
type CallStore struct {
	pool *Pool
}

// NewCallStore creates a new CallStore.
func NewCallStore(pool *Pool) *CallStore {
	return &CallStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CallStore = (*CallStore)(nil)

const callColumns = `
	id, chain, address, caller_id, caller_name, ticker,
	entry_value, entry_estimated, last_value, peak_value, peak_locked,
	multipliers_hit, dump_alerted, status, next_check_at, created_at, expires_at,
	excluded_from_leaderboard, suspicious_score, version
`

const insertCallQuery = `
	INSERT INTO calls (` + callColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, 1)
`

// Insert adds a new call. Returns ErrDuplicateKey if id exists.
func (s *CallStore) Insert(ctx context.Context, c *domain.Call) error {
	if c == nil || c.Validate() != nil {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertCallQuery, insertArgs(c)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert call: %w", err)
	}
	c.Version = 1
	return nil
}

// InsertGuarded adds a new call unless the caller is in cooldown.
// The caller's rows are serialized with a transaction-scoped advisory lock,
// so concurrent submissions from one caller cannot both pass the count.
func (s *CallStore) InsertGuarded(ctx context.Context, c *domain.Call, since time.Time, limit int) error {
	if c == nil || c.Validate() != nil {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin guarded insert: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, c.Caller.UserID); err != nil {
		return fmt.Errorf("lock caller: %w", err)
	}

	if limit > 0 {
		var n int
		err := tx.QueryRow(ctx,
			`SELECT count(*) FROM calls WHERE caller_id = $1 AND created_at > $2`,
			c.Caller.UserID, since,
		).Scan(&n)
		if err != nil {
			return fmt.Errorf("count recent calls: %w", err)
		}
		if n >= limit {
			return storage.ErrCooldown
		}
	}

	if _, err := tx.Exec(ctx, insertCallQuery, insertArgs(c)...); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert call: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit guarded insert: %w", err)
	}
	c.Version = 1
	return nil
}

// GetByID retrieves a call by its ID. Returns ErrNotFound if not exists.
func (s *CallStore) GetByID(ctx context.Context, id string) (*domain.Call, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1`, id)
	c, err := scanCall(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get call by id: %w", err)
	}
	return c, nil
}

// FindDue retrieves up to limit active calls that are due at now.
func (s *CallStore) FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.Call, error) {
	query := `
		SELECT ` + callColumns + `
		FROM calls
		WHERE status = 'active' AND next_check_at <= $1
		ORDER BY next_check_at ASC, id ASC
	`
	args := []any{now}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find due calls: %w", err)
	}
	defer rows.Close()

	return scanCalls(rows)
}

// Update writes the engine-owned fields of c if the version matches.
func (s *CallStore) Update(ctx context.Context, c *domain.Call, expectedVersion int64) error {
	if c == nil || c.ID == "" || !c.Status.IsValid() {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE calls SET
			last_value = $3,
			peak_value = $4,
			multipliers_hit = $5,
			dump_alerted = $6,
			status = $7,
			next_check_at = $8,
			expires_at = $9,
			version = version + 1
		WHERE id = $1 AND version = $2 AND (status = $7 OR status = 'active')
		RETURNING version
	`

	var version int64
	err := s.pool.QueryRow(ctx, query,
		c.ID,
		expectedVersion,
		c.LastValue,
		c.PeakValue,
		nonNilFloats(c.MultipliersHit),
		c.DumpAlerted,
		string(c.Status),
		c.NextCheckAt,
		c.ExpiresAt,
	).Scan(&version)
	if err != nil {
		if isNotFoundError(err) {
			return s.diagnoseUpdateMiss(ctx, c.ID, expectedVersion)
		}
		return fmt.Errorf("update call: %w", err)
	}

	c.Version = version
	return nil
}

// diagnoseUpdateMiss explains why a conditional update touched no rows.
func (s *CallStore) diagnoseUpdateMiss(ctx context.Context, id string, expectedVersion int64) error {
	var version int64
	err := s.pool.QueryRow(ctx, `SELECT version FROM calls WHERE id = $1`, id).Scan(&version)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("diagnose update: %w", err)
	}
	if version != expectedVersion {
		return storage.ErrConflict
	}
	return storage.ErrInvalidInput
}

// FindByCaller retrieves all calls of a caller, ordered by created_at ASC.
func (s *CallStore) FindByCaller(ctx context.Context, callerID string) ([]*domain.Call, error) {
	query := `
		SELECT ` + callColumns + `
		FROM calls
		WHERE caller_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, callerID)
	if err != nil {
		return nil, fmt.Errorf("find calls by caller: %w", err)
	}
	defer rows.Close()

	return scanCalls(rows)
}

// CountByCallerSince counts calls of a caller created after since.
func (s *CallStore) CountByCallerSince(ctx context.Context, callerID string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM calls WHERE caller_id = $1 AND created_at > $2`,
		callerID, since,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count calls by caller: %w", err)
	}
	return n, nil
}

// FindAll retrieves all calls ordered by created_at ASC.
func (s *CallStore) FindAll(ctx context.Context) ([]*domain.Call, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+callColumns+` FROM calls ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("find all calls: %w", err)
	}
	defer rows.Close()

	return scanCalls(rows)
}

// SetStatus applies an administrative status transition.
func (s *CallStore) SetStatus(ctx context.Context, id string, status domain.Status) error {
	if !status.IsValid() {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE calls SET status = $2, version = version + 1
		WHERE id = $1 AND (status = $2 OR status = 'active')
	`, id, string(status))
	if err != nil {
		return fmt.Errorf("set call status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetByID(ctx, id); err != nil {
			return err
		}
		return storage.ErrInvalidInput
	}
	return nil
}

// SetPeakLock freezes or unfreezes the call's peak value.
func (s *CallStore) SetPeakLock(ctx context.Context, id string, locked bool) error {
	return s.setFlag(ctx, "peak_locked", id, locked)
}

// SetExcluded includes or excludes the call from the leaderboard.
func (s *CallStore) SetExcluded(ctx context.Context, id string, excluded bool) error {
	return s.setFlag(ctx, "excluded_from_leaderboard", id, excluded)
}

// setFlag updates one boolean admin column. column is never user input.
func (s *CallStore) setFlag(ctx context.Context, column, id string, value bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE calls SET `+column+` = $2, version = version + 1 WHERE id = $1`,
		id, value,
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func insertArgs(c *domain.Call) []any {
	return []any{
		c.ID,
		string(c.Chain),
		c.Address,
		c.Caller.UserID,
		c.Caller.DisplayName,
		c.Ticker,
		c.EntryValue,
		c.EntryEstimated,
		c.LastValue,
		c.PeakValue,
		c.PeakLocked,
		nonNilFloats(c.MultipliersHit),
		c.DumpAlerted,
		string(c.Status),
		c.NextCheckAt,
		c.CreatedAt,
		c.ExpiresAt,
		c.ExcludedFromLeaderboard,
		c.SuspiciousScore,
	}
}

// nonNilFloats keeps NOT NULL array columns from receiving a SQL NULL.
func nonNilFloats(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}

// scanCall scans a single row into a Call.
func scanCall(row pgx.Row) (*domain.Call, error) {
	var c domain.Call
	var chainStr, statusStr string

	err := row.Scan(
		&c.ID,
		&chainStr,
		&c.Address,
		&c.Caller.UserID,
		&c.Caller.DisplayName,
		&c.Ticker,
		&c.EntryValue,
		&c.EntryEstimated,
		&c.LastValue,
		&c.PeakValue,
		&c.PeakLocked,
		&c.MultipliersHit,
		&c.DumpAlerted,
		&statusStr,
		&c.NextCheckAt,
		&c.CreatedAt,
		&c.ExpiresAt,
		&c.ExcludedFromLeaderboard,
		&c.SuspiciousScore,
		&c.Version,
	)
	if err != nil {
		return nil, err
	}

	c.Chain = domain.Chain(chainStr)
	c.Status = domain.Status(statusStr)
	if len(c.MultipliersHit) == 0 {
		c.MultipliersHit = nil
	}
	return &c, nil
}

// scanCalls scans multiple rows into a slice of Call.
func scanCalls(rows pgx.Rows) ([]*domain.Call, error) {
	var calls []*domain.Call

	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call row: %w", err)
		}
		calls = append(calls, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call rows: %w", err)
	}

	return calls, nil
}
