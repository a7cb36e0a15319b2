package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/leadline/leadline/domain/quota"
	"github.com/leadline/leadline/ports"
)

// QuotaStore enforces plan ceilings with row-level transactional increments.
// Semantics match the JSON-file store: prune stale periods on write, never
// increment on rejection.
type QuotaStore struct {
	db    *DB
	clock ports.Clock
}

// NewQuotaStore creates a quota store on db.
func NewQuotaStore(db *DB, clk ports.Clock) *QuotaStore {
	return &QuotaStore{db: db, clock: clk}
}

// RecordHit checks and increments inside one immediate transaction.
func (s *QuotaStore) RecordHit(ctx context.Context, userID string, kind quota.Kind, limit int) (quota.Decision, error) {
	now := s.clock.Now()
	key := quota.PeriodKey(kind, now)

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return quota.Decision{}, fmt.Errorf("begin quota tx: %w", err)
	}
	defer tx.Rollback()

	// Prune every period except the current one for this kind.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM quotas WHERE user_id = ? AND kind = ? AND period_key != ?`,
		userID, string(kind), key); err != nil {
		return quota.Decision{}, fmt.Errorf("prune quota periods: %w", err)
	}

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT count FROM quotas WHERE user_id = ? AND kind = ? AND period_key = ?`,
		userID, string(kind), key).Scan(&count)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return quota.Decision{}, fmt.Errorf("read quota count: %w", err)
	}

	if count >= limit {
		return quota.Decision{Allowed: false, RetryAfter: quota.RetryAfter(kind, now)}, nil
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO quotas (user_id, kind, period_key, count) VALUES (?, ?, ?, 1)
		 ON CONFLICT (user_id, kind, period_key) DO UPDATE SET count = count + 1`,
		userID, string(kind), key); err != nil {
		return quota.Decision{}, fmt.Errorf("increment quota: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return quota.Decision{}, fmt.Errorf("commit quota tx: %w", err)
	}
	return quota.Decision{Allowed: true}, nil
}

// Count returns the stored counter for the current period.
func (s *QuotaStore) Count(ctx context.Context, userID string, kind quota.Kind) (int, error) {
	key := quota.PeriodKey(kind, s.clock.Now())

	var count int
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT count FROM quotas WHERE user_id = ? AND kind = ? AND period_key = ?`,
		userID, string(kind), key).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read quota count: %w", err)
	}
	return count, nil
}

// Ensure interface compliance.
var _ ports.QuotaStore = (*QuotaStore)(nil)
