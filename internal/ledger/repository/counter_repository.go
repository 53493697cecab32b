package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type TransactionManager interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type MySQLCounterRepository struct {
	db TransactionManager
}

func NewMySQLCounterRepository(db TransactionManager) *MySQLCounterRepository {
	return &MySQLCounterRepository{db: db}
}

// TryIncrement bumps the counter for day when it is below limit. The check
// and the increment run under a row lock in one transaction.
func (r *MySQLCounterRepository) TryIncrement(ctx context.Context, day string, limit int, now time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return false, fmt.Errorf("beginning counter transaction: %w", err)
	}
	// MySQL ignores rollback after commit.
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT IGNORE INTO daily_order_counter (day, count, updated_at) VALUES (?, 0, ?)`,
		day, now,
	)
	if err != nil {
		return false, fmt.Errorf("seeding daily counter: %w", err)
	}

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT count FROM daily_order_counter WHERE day = ? FOR UPDATE`,
		day,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("locking daily counter: %w", err)
	}

	if count >= limit {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE daily_order_counter SET count = count + 1, updated_at = ? WHERE day = ?`,
		now, day,
	)
	if err != nil {
		return false, fmt.Errorf("incrementing daily counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing daily counter: %w", err)
	}

	return true, nil
}

func (r *MySQLCounterRepository) Count(ctx context.Context, day string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count FROM daily_order_counter WHERE day = ?`,
		day,
	).Scan(&count)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying daily counter: %w", err)
	}

	return count, nil
}
