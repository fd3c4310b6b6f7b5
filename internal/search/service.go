package search

import (
	"context"
	"log"
)

type backend interface {
	Healthy() bool
	Search(q Query) ([]Result, int, error)
	IndexTree(doc TreeDocument) error
	IndexAll(trees []TreeRecord, memorials []MemorialRecord) error
}

type fallback interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	LoadAllRecords(ctx context.Context) ([]TreeRecord, []MemorialRecord, error)
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
// Either side may be absent.
type Service struct {
	meili backend
	pgfts fallback
}

// NewService creates a search service. Pass nil for a backend that is not
// configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	s := &Service{}
	if meili != nil {
		s.meili = meili
	}
	if pgfts != nil {
		s.pgfts = pgfts
	}
	return s
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexTree pushes a rewritten tree to Meilisearch (fire-and-forget).
func (s *Service) IndexTree(doc TreeDocument) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexTree(doc); err != nil {
			log.Printf("search: index tree %d: %v", doc.Tree.ID, err)
		}
	}()
}

// ReindexAllFromPG reads every tree and memorial from PostgreSQL and pushes
// them to Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	trees, memorials, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexAll(trees, memorials); err != nil {
		log.Printf("search: reindex: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
