package app

import (
	"context"
	"errors"
	"fmt"

	"lineage/api/internal/snapshot"
	"lineage/api/internal/store"
)

// ApplyResult reports what applying a draft changed in the canonical tree.
type ApplyResult struct {
	Draft         store.Draft
	AttachedNodes []int64
	DetachedNodes []int64
	DeletedEdges  []int64
	// CreatedEdges maps each proposal ref ("new:<token>") to the relation id
	// it was persisted as.
	CreatedEdges map[string]int64
	Changes      snapshot.Changes
}

// applyDraft writes the draft's working copy onto the canonical tree: metadata
// first, then membership, then relations. It must run inside the caller's
// transaction; any error leaves the tree as it was.
func applyDraft(ctx context.Context, repo applyRepository, draft store.Draft, actorID int64) (ApplyResult, error) {
	working := draft.Working
	result := ApplyResult{
		AttachedNodes: []int64{},
		DetachedNodes: []int64{},
		DeletedEdges:  []int64{},
		CreatedEdges:  map[string]int64{},
		Changes:       snapshot.Diff(draft.Original, working),
	}

	tree, err := repo.GetTree(ctx, draft.TreeID)
	if err != nil {
		return ApplyResult{}, translateStoreError(err, "tree")
	}
	tree.Name = working.Meta.Name
	tree.Description = working.Meta.Description
	tree.IsPublic = working.Meta.IsPublic
	if err := repo.SaveTree(ctx, tree); err != nil {
		return ApplyResult{}, fmt.Errorf("save tree %d: %w", tree.ID, err)
	}

	members, err := repo.ListTreeMemorials(ctx, tree.ID)
	if err != nil {
		return ApplyResult{}, fmt.Errorf("list memorials of tree %d: %w", tree.ID, err)
	}
	canonicalIDs := make([]int64, 0, len(members))
	for _, memorial := range members {
		canonicalIDs = append(canonicalIDs, memorial.ID)
	}
	workingIDs := working.NodeIDs()

	for _, memorialID := range snapshot.SetDifference(workingIDs, canonicalIDs) {
		if err := attachNode(ctx, repo, tree.ID, memorialID, actorID); err != nil {
			return ApplyResult{}, err
		}
		result.AttachedNodes = append(result.AttachedNodes, memorialID)
	}
	for _, memorialID := range snapshot.SetDifference(canonicalIDs, workingIDs) {
		err := repo.DetachMemorial(ctx, tree.ID, memorialID, actorID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return ApplyResult{}, fmt.Errorf("detach memorial %d: %w", memorialID, err)
		}
		result.DetachedNodes = append(result.DetachedNodes, memorialID)
	}

	// Relations touching a detached memorial are already gone.
	for _, relationID := range snapshot.SetDifference(existingEdgeIDs(draft.Original), existingEdgeIDs(working)) {
		err := repo.DeleteRelation(ctx, relationID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return ApplyResult{}, fmt.Errorf("delete relation %d: %w", relationID, err)
		}
		result.DeletedEdges = append(result.DeletedEdges, relationID)
	}

	for _, edge := range working.ProposedEdges() {
		for _, endpoint := range []int64{edge.SourceID, edge.TargetID} {
			if err := requireMember(ctx, repo, tree.ID, endpoint, edge.Ref); err != nil {
				return ApplyResult{}, err
			}
		}
		created, err := repo.CreateRelation(ctx, store.Relation{
			TreeID:   tree.ID,
			SourceID: edge.SourceID,
			TargetID: edge.TargetID,
			Type:     edge.Type,
		})
		if err != nil {
			return ApplyResult{}, fmt.Errorf("create relation %s: %w", edge.Ref, translateStoreError(err, "memorial"))
		}
		result.CreatedEdges[edge.Ref.String()] = created.ID
	}

	return result, nil
}

func attachNode(ctx context.Context, repo applyRepository, treeID, memorialID, actorID int64) error {
	memorial, err := repo.GetMemorial(ctx, memorialID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("memorial %d no longer exists", memorialID)
	}
	if err != nil {
		return fmt.Errorf("load memorial %d: %w", memorialID, err)
	}
	if memorial.TreeID != nil && *memorial.TreeID != treeID {
		return invalidState("memorial %d already belongs to tree %d", memorialID, *memorial.TreeID)
	}
	err = repo.AttachMemorial(ctx, treeID, memorialID, actorID)
	switch {
	case errors.Is(err, store.ErrConflict):
		return invalidState("memorial %d already belongs to another tree", memorialID)
	case errors.Is(err, store.ErrNotFound):
		return notFound("memorial %d no longer exists", memorialID)
	case err != nil:
		return fmt.Errorf("attach memorial %d: %w", memorialID, err)
	}
	return nil
}

// requireMember checks that a proposed relation's endpoint exists and, after
// membership has been reconciled, belongs to the tree.
func requireMember(ctx context.Context, repo NodeRepository, treeID, memorialID int64, ref snapshot.EdgeRef) error {
	memorial, err := repo.GetMemorial(ctx, memorialID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("relation %s references missing memorial %d", ref, memorialID)
	}
	if err != nil {
		return fmt.Errorf("load memorial %d: %w", memorialID, err)
	}
	if memorial.TreeID == nil || *memorial.TreeID != treeID {
		return notFound("relation %s references memorial %d which is not in tree %d", ref, memorialID, treeID)
	}
	return nil
}
