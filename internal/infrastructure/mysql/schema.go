package mysql

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []struct {
	name  string
	query string
}{
	{"orders", `
	CREATE TABLE IF NOT EXISTS orders (
		id CHAR(36) NOT NULL PRIMARY KEY,
		provider_order_id VARCHAR(128) NULL,
		address VARCHAR(512) NOT NULL,
		report_type VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL,
		measurement JSON NULL,
		message TEXT NULL,
		simulated TINYINT(1) NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		last_checked_at DATETIME(6) NULL,
		pending_key VARCHAR(540) GENERATED ALWAYS AS (
			IF(status = 'PENDING', CONCAT(report_type, '|', address), NULL)
		) STORED,
		UNIQUE KEY uq_orders_provider_order (provider_order_id),
		UNIQUE KEY uq_orders_pending (pending_key),
		INDEX idx_orders_status_created (status, created_at),
		INDEX idx_orders_created (created_at)
	)`},
	{"api_usage_log", `
	CREATE TABLE IF NOT EXISTS api_usage_log (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		provider VARCHAR(32) NOT NULL,
		endpoint VARCHAR(128) NOT NULL,
		method VARCHAR(8) NOT NULL,
		cost_usd DECIMAL(12,4) NOT NULL,
		address VARCHAR(512) NULL,
		success TINYINT(1) NOT NULL,
		error_message TEXT NULL,
		response_time_ms BIGINT NOT NULL DEFAULT 0,
		simulated TINYINT(1) NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		INDEX idx_usage_provider (provider),
		INDEX idx_usage_created (created_at)
	)`},
	{"daily_order_counter", `
	CREATE TABLE IF NOT EXISTS daily_order_counter (
		day DATE NOT NULL PRIMARY KEY,
		count INT NOT NULL DEFAULT 0,
		updated_at DATETIME(6) NOT NULL
	)`},
	{"estimates", `
	CREATE TABLE IF NOT EXISTS estimates (
		id CHAR(36) NOT NULL PRIMARY KEY,
		address VARCHAR(512) NOT NULL,
		measurement JSON NOT NULL,
		created_at DATETIME(6) NOT NULL,
		INDEX idx_estimates_created (created_at)
	)`},
}

// Tables lists the managed tables in creation order.
func Tables() []string {
	names := make([]string, len(schema))
	for i, tbl := range schema {
		names[i] = tbl.name
	}
	return names
}

func Migrate(ctx context.Context, db *sql.DB) error {
	for _, tbl := range schema {
		if _, err := db.ExecContext(ctx, tbl.query); err != nil {
			return fmt.Errorf("creating table %s: %w", tbl.name, err)
		}
	}
	return nil
}
