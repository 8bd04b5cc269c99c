// README: Test helper that opens the DRIVERBUDDY_TEST_DSN database with a fresh schema.
package pgtest

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"driverbuddy/internal/infra"
)

const dsnEnv = "DRIVERBUDDY_TEST_DSN"

// Open skips the test when no database is configured.
func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skip(dsnEnv + " not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	dir, err := infra.MigrationsDir()
	if err != nil {
		t.Fatalf("locate migrations: %v", err)
	}
	if _, err := infra.ApplyMigrations(ctx, db, dir); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE TABLE messages, events, drivers"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return db
}
