package app

import (
	"context"
	"fmt"
	"time"

	"lineage/api/internal/snapshot"
	"lineage/api/internal/store"
)

const dateLayout = "2006-01-02"

func formatDate(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.UTC().Format(dateLayout)
}

func nodeFromMemorial(memorial store.Memorial) snapshot.NodeSummary {
	return snapshot.NodeSummary{
		ID:          memorial.ID,
		DisplayName: memorial.DisplayName,
		BirthDate:   formatDate(memorial.BirthDate),
		DeathDate:   formatDate(memorial.DeathDate),
		Biography:   memorial.Biography,
		PhotoRef:    memorial.PhotoRef,
		IsPublic:    memorial.IsPublic,
	}
}

func metaFromTree(tree store.Tree) snapshot.Meta {
	return snapshot.Meta{Name: tree.Name, Description: tree.Description, IsPublic: tree.IsPublic}
}

// canonicalSnapshot captures the live tree as a snapshot. A stored relation
// that cannot be represented fails the whole capture instead of being dropped.
func canonicalSnapshot(ctx context.Context, reader CanonicalTreeReader, treeID int64) (snapshot.Snapshot, store.Tree, error) {
	tree, err := reader.GetTree(ctx, treeID)
	if err != nil {
		return snapshot.Snapshot{}, store.Tree{}, translateStoreError(err, "tree")
	}
	memorials, err := reader.ListTreeMemorials(ctx, treeID)
	if err != nil {
		return snapshot.Snapshot{}, store.Tree{}, fmt.Errorf("list memorials of tree %d: %w", treeID, err)
	}
	relations, err := reader.ListTreeRelations(ctx, treeID)
	if err != nil {
		return snapshot.Snapshot{}, store.Tree{}, fmt.Errorf("list relations of tree %d: %w", treeID, err)
	}

	snap := snapshot.Snapshot{
		Meta:  metaFromTree(tree),
		Nodes: make([]snapshot.NodeSummary, 0, len(memorials)),
		Edges: make([]snapshot.EdgeSummary, 0, len(relations)),
	}
	for _, memorial := range memorials {
		if err := snap.AddNode(nodeFromMemorial(memorial)); err != nil {
			return snapshot.Snapshot{}, store.Tree{}, fmt.Errorf("%w: tree %d memorial %d: %v", snapshot.ErrCodec, treeID, memorial.ID, err)
		}
	}
	for _, relation := range relations {
		edge := snapshot.EdgeSummary{
			Ref:      snapshot.Existing(relation.ID),
			TreeID:   relation.TreeID,
			SourceID: relation.SourceID,
			TargetID: relation.TargetID,
			Type:     relation.Type,
		}
		if err := snap.AddEdge(edge); err != nil {
			return snapshot.Snapshot{}, store.Tree{}, fmt.Errorf("%w: tree %d relation %d: %v", snapshot.ErrCodec, treeID, relation.ID, err)
		}
	}
	return snap, tree, nil
}

// existingEdgeIDs returns the canonical relation ids referenced by s.
func existingEdgeIDs(s snapshot.Snapshot) []int64 {
	ids := make([]int64, 0, len(s.Edges))
	for _, edge := range s.Edges {
		if id, ok := edge.Ref.CanonicalID(); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
