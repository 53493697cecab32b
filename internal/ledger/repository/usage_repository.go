package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"roofline/internal/domain"
)

type MySQLUsageRepository struct {
	db *sql.DB
}

func NewMySQLUsageRepository(db *sql.DB) *MySQLUsageRepository {
	return &MySQLUsageRepository{db: db}
}

func (r *MySQLUsageRepository) Append(ctx context.Context, entry domain.UsageEntry) error {
	query := `
		INSERT INTO api_usage_log
			(provider, endpoint, method, cost_usd, address, success,
			 error_message, response_time_ms, simulated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		string(entry.Provider), entry.Endpoint, entry.Method, entry.Cost.StringFixed(4),
		nullString(entry.Address), entry.Success, nullString(entry.ErrorMessage),
		entry.ResponseTimeMs, entry.Simulated, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting usage entry: %w", err)
	}

	return nil
}

func (r *MySQLUsageRepository) Totals(ctx context.Context) ([]domain.ProviderUsage, error) {
	query := `
		SELECT provider, COUNT(*), COALESCE(SUM(success = 0), 0), COALESCE(SUM(cost_usd), 0)
		FROM api_usage_log
		GROUP BY provider
		ORDER BY MIN(id)
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying usage totals: %w", err)
	}
	defer rows.Close()

	var totals []domain.ProviderUsage
	for rows.Next() {
		var (
			provider string
			usage    domain.ProviderUsage
			cost     decimal.Decimal
		)
		if err := rows.Scan(&provider, &usage.Calls, &usage.FailedCalls, &cost); err != nil {
			return nil, fmt.Errorf("scanning usage totals: %w", err)
		}
		usage.Provider = domain.Provider(provider)
		usage.Cost = cost
		totals = append(totals, usage)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage totals: %w", err)
	}

	return totals, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
