package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"roofline/internal/domain"
	"roofline/internal/errors"
	"roofline/internal/infrastructure/mysql"
)

const orderColumns = `id, provider_order_id, address, report_type, status, measurement,
		       message, simulated, created_at, updated_at, last_checked_at`

type MySQLOrderRepository struct {
	db *sql.DB
}

func NewMySQLOrderRepository(db *sql.DB) *MySQLOrderRepository {
	return &MySQLOrderRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order         domain.Order
		providerID    sql.NullString
		measurement   []byte
		message       sql.NullString
		lastCheckedAt sql.NullTime
	)

	err := row.Scan(
		&order.ID, &providerID, &order.Address, &order.ReportType, &order.Status,
		&measurement, &message, &order.Simulated, &order.CreatedAt, &order.UpdatedAt,
		&lastCheckedAt,
	)
	if err != nil {
		return nil, err
	}

	if providerID.Valid {
		order.ProviderOrderID = domain.StringPtr(providerID.String)
	}
	if message.Valid {
		order.Message = domain.StringPtr(message.String)
	}
	if lastCheckedAt.Valid {
		t := lastCheckedAt.Time
		order.LastCheckedAt = &t
	}
	if len(measurement) > 0 {
		var m domain.Measurement
		if err := json.Unmarshal(measurement, &m); err != nil {
			return nil, fmt.Errorf("decoding measurement for order %s: %w", order.ID, err)
		}
		order.Measurement = &m
	}

	return &order, nil
}

// encodeMeasurement returns a string so MySQL accepts it for a JSON column.
func encodeMeasurement(m *domain.Measurement) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding measurement: %w", err)
	}
	return string(b), nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func (r *MySQLOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	measurement, err := encodeMeasurement(order.Measurement)
	if err != nil {
		return err
	}

	var lastCheckedAt any
	if order.LastCheckedAt != nil {
		lastCheckedAt = *order.LastCheckedAt
	}

	query := `
		INSERT INTO orders (id, provider_order_id, address, report_type, status, measurement,
		                    message, simulated, created_at, updated_at, last_checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		order.ID, nullString(order.ProviderOrderID), order.Address, order.ReportType, order.Status,
		measurement, nullString(order.Message), order.Simulated, order.CreatedAt, order.UpdatedAt,
		lastCheckedAt,
	)
	if mysql.IsDuplicateKey(err) {
		return errors.NewConflictError(fmt.Sprintf("order %s conflicts with an existing order", order.ID))
	}
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}

	return nil
}

func (r *MySQLOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("order %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying order by id: %w", err)
	}

	return order, nil
}

func (r *MySQLOrderRepository) FindPending(ctx context.Context, address string, rt domain.ReportType) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE pending_key = ?`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, string(rt)+"|"+address))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("no pending order for address")
	}
	if err != nil {
		return nil, fmt.Errorf("querying pending order: %w", err)
	}

	return order, nil
}

// List returns orders newest first, optionally filtered by status.
func (r *MySQLOrderRepository) List(ctx context.Context, status *domain.OrderStatus, limit int) ([]domain.Order, error) {
	var (
		where []string
		args  []any
	)
	if status != nil {
		where = append(where, "status = ?")
		args = append(args, *status)
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	return r.query(ctx, query, args...)
}

// ListPending pages through PENDING orders oldest first, strictly after the
// cursor.
func (r *MySQLOrderRepository) ListPending(ctx context.Context, after *domain.OrderCursor, limit int) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = 'PENDING'`
	var args []any
	if after != nil {
		query += ` AND (created_at > ? OR (created_at = ? AND id > ?))`
		args = append(args, after.CreatedAt, after.CreatedAt, after.ID)
	}
	query += ` ORDER BY created_at ASC, id ASC LIMIT ?`
	args = append(args, limit)

	return r.query(ctx, query, args...)
}

func (r *MySQLOrderRepository) query(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating orders: %w", err)
	}

	return orders, nil
}

// Transition applies update only while the row is still PENDING. It reports
// false when another writer got there first.
func (r *MySQLOrderRepository) Transition(ctx context.Context, update domain.StatusUpdate) (bool, error) {
	measurement, err := encodeMeasurement(update.Measurement)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE orders
		SET status = ?,
		    measurement = COALESCE(?, measurement),
		    message = COALESCE(?, message),
		    updated_at = ?,
		    last_checked_at = ?
		WHERE id = ? AND status = 'PENDING'
	`

	result, err := r.db.ExecContext(ctx, query,
		update.Status, measurement, nullString(update.Message), update.At, update.At, update.OrderID,
	)
	if err != nil {
		return false, fmt.Errorf("updating order status: %w", err)
	}

	return r.applied(ctx, result, update.OrderID)
}

func (r *MySQLOrderRepository) MarkChecked(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `UPDATE orders SET last_checked_at = ? WHERE id = ? AND status = 'PENDING'`

	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return false, fmt.Errorf("marking order checked: %w", err)
	}

	return r.applied(ctx, result, id)
}

// applied tells a lost compare-and-set apart from a missing row. MySQL
// reports zero affected rows for a matched row whose values did not change,
// so a row that is still PENDING counts as applied.
func (r *MySQLOrderRepository) applied(ctx context.Context, result sql.Result, id string) (bool, error) {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return true, nil
	}

	var status domain.OrderStatus
	err = r.db.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return false, errors.NewNotFoundError(fmt.Sprintf("order %s not found", id))
	}
	if err != nil {
		return false, fmt.Errorf("checking order status: %w", err)
	}

	return status == domain.OrderStatusPending, nil
}
