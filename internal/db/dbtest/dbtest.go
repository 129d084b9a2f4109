// Package dbtest opens a migrated PostgreSQL pool for integration tests.
package dbtest

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-core/internal/db"
)

const dsnEnv = "TEST_POSTGRES_DSN"

// Pool returns a pool on a freshly truncated database, or skips the test
// when TEST_POSTGRES_DSN is not set.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}

	if err := db.Migrate(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	pool, err := db.ConnectPostgres(ctx, dsn, 20)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, `
		TRUNCATE outbox_events, prescriptions, payments, invoice_items, invoices, appointments
	`); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	return pool
}
