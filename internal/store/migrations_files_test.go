package store

import (
	"io/fs"
	"strings"
	"testing"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	ups, err := listMigrations(Migrations(), "up")
	if err != nil {
		t.Fatalf("list up migrations: %v", err)
	}
	downs, err := listMigrations(Migrations(), "down")
	if err != nil {
		t.Fatalf("list down migrations: %v", err)
	}
	if len(ups) == 0 {
		t.Fatal("no migrations discovered")
	}
	if len(ups) != len(downs) {
		t.Fatalf("expected one down file per up file, got %d up and %d down", len(ups), len(downs))
	}

	hasDown := map[string]bool{}
	for _, down := range downs {
		hasDown[down.version] = true
	}
	for i, up := range ups {
		if !hasDown[up.version] {
			t.Fatalf("version %s has no down migration", up.version)
		}
		if i > 0 && ups[i-1].version == up.version {
			t.Fatalf("duplicate up migration for version %s", up.version)
		}
	}
}

func TestListMigrationsOrdersDownFilesNewestFirst(t *testing.T) {
	downs, err := listMigrations(Migrations(), "down")
	if err != nil {
		t.Fatalf("list down migrations: %v", err)
	}
	for i := 1; i < len(downs); i++ {
		if downs[i-1].version < downs[i].version {
			t.Fatalf("down migrations out of order: %s before %s", downs[i-1].name, downs[i].name)
		}
	}
}

func TestDraftMigrationDeclaresOneActiveDraftIndex(t *testing.T) {
	contents, err := fs.ReadFile(Migrations(), "0002_tree_drafts.up.sql")
	if err != nil {
		t.Fatalf("read draft migration: %v", err)
	}
	text := string(contents)
	if !strings.Contains(text, "CREATE UNIQUE INDEX IF NOT EXISTS tree_drafts_one_active_idx") {
		t.Fatal("expected partial unique index on active drafts")
	}
	if !strings.Contains(text, "WHERE status IN ('DRAFT', 'REJECTED')") {
		t.Fatal("expected index to be restricted to resumable statuses")
	}
}
