package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"roofline/internal/domain"
)

type MySQLEstimateRepository struct {
	db *sql.DB
}

func NewMySQLEstimateRepository(db *sql.DB) *MySQLEstimateRepository {
	return &MySQLEstimateRepository{db: db}
}

func (r *MySQLEstimateRepository) Save(ctx context.Context, rec domain.EstimateRecord) error {
	measurement, err := json.Marshal(rec.Measurement)
	if err != nil {
		return fmt.Errorf("encoding measurement: %w", err)
	}

	query := `INSERT INTO estimates (id, address, measurement, created_at) VALUES (?, ?, ?, ?)`

	if _, err := r.db.ExecContext(ctx, query, rec.ID, rec.Address, string(measurement), rec.CreatedAt); err != nil {
		return fmt.Errorf("inserting estimate: %w", err)
	}

	return nil
}

// List returns estimates newest first.
func (r *MySQLEstimateRepository) List(ctx context.Context, limit int) ([]domain.EstimateRecord, error) {
	query := `
		SELECT id, address, measurement, created_at
		FROM estimates
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying estimates: %w", err)
	}
	defer rows.Close()

	records := make([]domain.EstimateRecord, 0)
	for rows.Next() {
		var (
			rec         domain.EstimateRecord
			measurement []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Address, &measurement, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning estimate: %w", err)
		}
		if err := json.Unmarshal(measurement, &rec.Measurement); err != nil {
			return nil, fmt.Errorf("decoding measurement for estimate %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating estimates: %w", err)
	}

	return records, nil
}
