package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"regexp"
	"sort"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// migrationLockKey is the pg_advisory_lock key held while migrating so that
// several API instances starting together apply each file once.
const migrationLockKey int64 = 0x6c696e65616765

var migrationName = regexp.MustCompile(`^(\d+)_[a-z0-9_]+\.(up|down)\.sql$`)

// Migrations returns the bundled schema migrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		panic(fmt.Sprintf("migrations sub fs: %v", err))
	}
	return sub
}

type migrationFile struct {
	version string
	name    string
}

// listMigrations returns the files of one direction ("up" or "down") ordered
// by version, ascending for up and descending for down.
func listMigrations(fsys fs.FS, direction string) ([]migrationFile, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var files []migrationFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationName.FindStringSubmatch(entry.Name())
		if match == nil || match[2] != direction {
			continue
		}
		files = append(files, migrationFile{version: match[1], name: entry.Name()})
	}
	sort.Slice(files, func(i, j int) bool {
		if direction == "down" {
			return files[i].version > files[j].version
		}
		return files[i].version < files[j].version
	})
	return files, nil
}

// ApplyMigrations runs every up migration in fsys that schema_migrations has
// not recorded, one transaction per file, under an advisory lock.
func ApplyMigrations(ctx context.Context, db *sql.DB, fsys fs.FS) error {
	files, err := listMigrations(fsys, "up")
	if err != nil {
		return err
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("migration conn: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockKey); err != nil {
			log.Printf("release migration lock: %v", err)
		}
	}()

	if _, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, file := range files {
		var applied bool
		if err := conn.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, file.name).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", file.name, err)
		}
		if applied {
			continue
		}
		if err := applyMigration(ctx, conn, fsys, file); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, conn *sql.Conn, fsys fs.FS, file migrationFile) error {
	contents, err := fs.ReadFile(fsys, file.name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file.name, err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx %s: %w", file.name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(contents)); err != nil {
		return fmt.Errorf("execute migration %s: %w", file.name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, file.name); err != nil {
		return fmt.Errorf("record migration %s: %w", file.name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", file.name, err)
	}
	return nil
}
