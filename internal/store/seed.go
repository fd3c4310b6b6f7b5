package store

import (
	"context"
	"fmt"
	"time"

	"lineage/api/internal/snapshot"
)

type seeder interface {
	InsertUser(ctx context.Context, user User) (User, error)
	InsertTree(ctx context.Context, tree Tree) (Tree, error)
	InsertMemorial(ctx context.Context, memorial Memorial) (Memorial, error)
	CreateRelation(ctx context.Context, relation Relation) (Relation, error)
	UpsertPermission(ctx context.Context, permission Permission) error
}

// Demo is what SeedDemo created.
type Demo struct {
	Owner  User
	Editor User
	Tree   Tree
	// Loose is a memorial that belongs to no tree yet.
	Loose Memorial
}

// SeedDemo writes a small public tree with two related memorials, an owner,
// an editor holding edit access and one unattached memorial.
func SeedDemo(ctx context.Context, s seeder) (Demo, error) {
	var demo Demo
	var err error
	if demo.Owner, err = s.InsertUser(ctx, User{DisplayName: "Margaret Doyle", Email: "margaret@example.com"}); err != nil {
		return Demo{}, fmt.Errorf("seed owner: %w", err)
	}
	if demo.Editor, err = s.InsertUser(ctx, User{DisplayName: "Tom Doyle", Email: "tom@example.com"}); err != nil {
		return Demo{}, fmt.Errorf("seed editor: %w", err)
	}
	if demo.Tree, err = s.InsertTree(ctx, Tree{OwnerID: demo.Owner.ID, Name: "Doyle family", Description: "County Clare and Boston", IsPublic: true}); err != nil {
		return Demo{}, fmt.Errorf("seed tree: %w", err)
	}

	treeID := demo.Tree.ID
	born := func(year int) *time.Time {
		value := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return &value
	}
	parent, err := s.InsertMemorial(ctx, Memorial{TreeID: &treeID, DisplayName: "Patrick Doyle", BirthDate: born(1902), IsPublic: true})
	if err != nil {
		return Demo{}, fmt.Errorf("seed memorial: %w", err)
	}
	child, err := s.InsertMemorial(ctx, Memorial{TreeID: &treeID, DisplayName: "Eileen Doyle", BirthDate: born(1931), IsPublic: true})
	if err != nil {
		return Demo{}, fmt.Errorf("seed memorial: %w", err)
	}
	if demo.Loose, err = s.InsertMemorial(ctx, Memorial{DisplayName: "Bridget Doyle", BirthDate: born(1905), IsPublic: true}); err != nil {
		return Demo{}, fmt.Errorf("seed memorial: %w", err)
	}
	if _, err := s.CreateRelation(ctx, Relation{TreeID: treeID, SourceID: parent.ID, TargetID: child.ID, Type: snapshot.RelationParent}); err != nil {
		return Demo{}, fmt.Errorf("seed relation: %w", err)
	}
	if err := s.UpsertPermission(ctx, Permission{TreeID: treeID, UserID: demo.Editor.ID, Role: "editor", GrantedBy: demo.Owner.ID}); err != nil {
		return Demo{}, fmt.Errorf("seed permission: %w", err)
	}
	return demo, nil
}
