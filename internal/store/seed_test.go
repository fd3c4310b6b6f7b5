package store

import (
	"context"
	"testing"
)

func TestSeedDemoBuildsEditableTree(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	demo, err := SeedDemo(ctx, s)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	memorials, err := s.ListTreeMemorials(ctx, demo.Tree.ID)
	if err != nil {
		t.Fatalf("list memorials: %v", err)
	}
	if len(memorials) != 2 {
		t.Fatalf("expected 2 tree memorials, got %d", len(memorials))
	}
	relations, err := s.ListTreeRelations(ctx, demo.Tree.ID)
	if err != nil {
		t.Fatalf("list relations: %v", err)
	}
	if len(relations) != 1 {
		t.Fatalf("expected 1 relation, got %d", len(relations))
	}
	if demo.Loose.TreeID != nil {
		t.Fatalf("expected loose memorial outside any tree, got tree %d", *demo.Loose.TreeID)
	}
	role, err := s.GetPermission(ctx, demo.Tree.ID, demo.Editor.ID)
	if err != nil {
		t.Fatalf("get permission: %v", err)
	}
	if role != "editor" {
		t.Fatalf("expected editor role, got %q", role)
	}
}
