package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"

	_ "github.com/go-sql-driver/mysql"

	"roofline/internal/infrastructure/mysql"
)

const defaultTestDSN = "root:@tcp(localhost:3306)/roofline_test?parseTime=true&loc=UTC"

// SetupTestDB opens the integration database named by TEST_MYSQL_DSN and
// creates the schema. The test is skipped when no server is reachable.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		dsn = defaultTestDSN
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("test database not available: %v", err)
	}

	if err := mysql.Migrate(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("failed to migrate test database: %v", err)
	}

	truncate(t, db)
	return db
}

// CleanupTestDB empties every managed table and closes db.
func CleanupTestDB(t *testing.T, db *sql.DB) {
	t.Helper()
	if db == nil {
		return
	}
	truncate(t, db)
	db.Close()
}

func truncate(t *testing.T, db *sql.DB) {
	for _, table := range mysql.Tables() {
		if _, err := db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			t.Logf("failed to clean table %s: %v", table, err)
		}
	}
}
