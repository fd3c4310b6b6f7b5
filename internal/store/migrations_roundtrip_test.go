package store

import (
	"context"
	"database/sql"
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"
)

func testDatabaseURL(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres test in short mode")
	}
	dsn := strings.TrimSpace(os.Getenv("LINEAGE_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("LINEAGE_TEST_DATABASE_URL is not set")
	}
	return dsn
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := Open(ctx, testDatabaseURL(t), PoolOptions{MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := ApplyMigrations(ctx, db, Migrations()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	downs, err := listMigrations(Migrations(), "down")
	if err != nil {
		t.Fatalf("list down migrations: %v", err)
	}
	for _, down := range downs {
		contents, err := fs.ReadFile(Migrations(), down.name)
		if err != nil {
			t.Fatalf("read %s: %v", down.name, err)
		}
		if _, err := db.ExecContext(ctx, string(contents)); err != nil {
			t.Fatalf("apply %s: %v", down.name, err)
		}
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		t.Fatalf("clear schema_migrations: %v", err)
	}

	if err := ApplyMigrations(ctx, db, Migrations()); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
	// A second run finds everything recorded and is a no-op.
	if err := ApplyMigrations(ctx, db, Migrations()); err != nil {
		t.Fatalf("apply up migrations (pass 3): %v", err)
	}
}
