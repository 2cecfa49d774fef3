package facilitator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLLedger is a ReplayLedger backed by a SQL database, for facilitator
// deployments that need settlements to survive restarts. It relies on the
// primary-key constraint for atomicity, so Reserve is safe across multiple
// facilitator processes sharing one database.
//
// The caller owns the *sql.DB and its driver.
type SQLLedger struct {
	db *sql.DB
}

// NewSQLLedger wraps an open database handle.
func NewSQLLedger(db *sql.DB) *SQLLedger {
	return &SQLLedger{db: db}
}

// EnsureSchema creates the settlements table if it does not exist.
func (l *SQLLedger) EnsureSchema(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS settlements (
			settlement_key TEXT PRIMARY KEY,
			valid_before   BIGINT NOT NULL DEFAULT 0
		)`)
	if err != nil {
		return fmt.Errorf("failed to create settlements table: %w", err)
	}
	return nil
}

// Reserve implements ReplayLedger via INSERT ... ON CONFLICT DO NOTHING; a
// zero rows-affected result means the key was already settled.
func (l *SQLLedger) Reserve(ctx context.Context, key string, validBefore int64) (bool, error) {
	result, err := l.db.ExecContext(ctx,
		`INSERT INTO settlements (settlement_key, valid_before) VALUES ($1, $2) ON CONFLICT (settlement_key) DO NOTHING`,
		key, validBefore)
	if err != nil {
		return false, fmt.Errorf("failed to reserve settlement key: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}

// Contains implements ReplayLedger.
func (l *SQLLedger) Contains(ctx context.Context, key string) (bool, error) {
	var one int
	err := l.db.QueryRowContext(ctx,
		`SELECT 1 FROM settlements WHERE settlement_key = $1`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query settlement key: %w", err)
	}
	return true, nil
}

// PruneExpired implements ReplayLedger.
func (l *SQLLedger) PruneExpired(ctx context.Context, now int64) (int, error) {
	result, err := l.db.ExecContext(ctx,
		`DELETE FROM settlements WHERE valid_before > 0 AND valid_before < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to prune settlements: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return int(affected), nil
}
