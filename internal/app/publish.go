package app

import (
	"context"
	"fmt"
	"strings"

	"lineage/api/internal/archive"
	"lineage/api/internal/search"
)

const defaultSearchLimit = 20

// treeDocument reads the committed tree back for the search index.
func (s *Service) treeDocument(ctx context.Context, treeID int64, detached []int64) (search.TreeDocument, error) {
	tree, err := s.store.GetTree(ctx, treeID)
	if err != nil {
		return search.TreeDocument{}, fmt.Errorf("load tree %d: %w", treeID, err)
	}
	memorials, err := s.store.ListTreeMemorials(ctx, treeID)
	if err != nil {
		return search.TreeDocument{}, fmt.Errorf("list memorials of tree %d: %w", treeID, err)
	}
	doc := search.TreeDocument{
		Tree: search.TreeRecord{
			ID:          tree.ID,
			OwnerID:     tree.OwnerID,
			Name:        tree.Name,
			Description: tree.Description,
			IsPublic:    tree.IsPublic,
		},
		Memorials: make([]search.MemorialRecord, 0, len(memorials)),
		Detached:  append([]int64(nil), detached...),
	}
	for _, memorial := range memorials {
		doc.Memorials = append(doc.Memorials, search.MemorialRecord{
			ID:          memorial.ID,
			TreeID:      tree.ID,
			OwnerID:     tree.OwnerID,
			DisplayName: memorial.DisplayName,
			Biography:   memorial.Biography,
			IsPublic:    memorial.IsPublic && tree.IsPublic,
		})
	}
	return doc, nil
}

func archiveChangeSet(result ApplyResult, reviewerID int64) archive.ChangeSet {
	draft := result.Draft
	changeSet := archive.ChangeSet{
		DraftID:        draft.ID,
		TreeID:         draft.TreeID,
		EditorID:       draft.EditorID,
		ReviewerID:     reviewerID,
		Message:        draft.Message,
		ReviewMessage:  draft.ReviewMessage,
		Changes:        result.Changes,
		CreatedEdgeIDs: result.CreatedEdges,
	}
	if draft.ReviewedAt != nil {
		changeSet.AppliedAt = *draft.ReviewedAt
	}
	return changeSet
}

// Search finds trees and memorials visible to viewerID. It returns an empty
// response when no index is configured.
func (s *Service) Search(ctx context.Context, viewerID int64, text, filterType string, limit, offset int) (search.Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return search.Response{}, validation("q is required")
	}
	resultType := search.ResultType(strings.ToLower(strings.TrimSpace(filterType)))
	switch resultType {
	case "", search.ResultTree, search.ResultMemorial:
	default:
		return search.Response{}, validation("type must be tree or memorial")
	}
	if limit <= 0 || limit > 100 {
		limit = defaultSearchLimit
	}
	if offset < 0 {
		offset = 0
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(ctx, search.Query{
		Text:       text,
		FilterType: resultType,
		ViewerID:   viewerID,
		Limit:      limit,
		Offset:     offset,
	}), nil
}
