package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxTrees     = "lineage_trees"
	idxMemorials = "lineage_memorials"
)

// Meili indexes trees and memorials in Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes.
// An unreachable server is only logged; the health loop picks it up later.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxTrees,
			filterable: []string{"ownerId", "isPublic"},
			searchable: []string{"name", "description"},
		},
		{
			uid:        idxMemorials,
			filterable: []string{"ownerId", "isPublic", "treeId"},
			searchable: []string{"displayName", "biography"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: "id",
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}

		index := m.client.Index(idx.uid)
		filterable := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterable[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", idx.uid, err)
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func visibilityFilter(viewerID int64) string {
	return fmt.Sprintf("isPublic = true OR ownerId = %d", viewerID)
}

func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	for _, ti := range []struct {
		uid  string
		rtyp ResultType
	}{
		{idxTrees, ResultTree},
		{idxMemorials, ResultMemorial},
	} {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		queries = append(queries, &meili.SearchRequest{
			IndexUID:              ti.uid,
			Query:                 q.Text,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			Filter:                visibilityFilter(q.ViewerID),
		})
	}

	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: queries,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}

	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxTrees:
		return ResultTree
	case idxMemorials:
		return ResultMemorial
	default:
		return ""
	}
}

// hitFields names the title and snippet attributes of each index.
var hitFields = map[ResultType][2]string{
	ResultTree:     {"name", "description"},
	ResultMemorial: {"displayName", "biography"},
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp, ID: hitValue[int64](hit, "id"), TreeID: hitValue[int64](hit, "treeId")}
	if rtyp == ResultTree {
		r.TreeID = r.ID
	}
	formatted := hitValue[map[string]json.RawMessage](hit, "_formatted")
	fields := hitFields[rtyp]
	r.Title = highlighted(hit, formatted, fields[0])
	r.Snippet = highlighted(hit, formatted, fields[1])
	return r
}

// hitValue decodes one attribute of a hit, returning the zero value when it
// is missing or of another type.
func hitValue[T any](hit map[string]json.RawMessage, key string) T {
	var value T
	raw, ok := hit[key]
	if !ok {
		return value
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		var zero T
		return zero
	}
	return value
}

// highlighted prefers the highlighted form of key and falls back to the raw
// attribute.
func highlighted(hit meili.Hit, formatted map[string]json.RawMessage, key string) string {
	if text := strings.TrimSpace(hitValue[string](formatted, key)); text != "" {
		return text
	}
	return hitValue[string](hit, key)
}

// IndexTree upserts the tree and its memorials and drops detached memorials.
func (m *Meili) IndexTree(doc TreeDocument) error {
	if _, err := m.client.Index(idxTrees).AddDocuments([]TreeRecord{doc.Tree}, nil); err != nil {
		return fmt.Errorf("index tree %d: %w", doc.Tree.ID, err)
	}
	if len(doc.Memorials) > 0 {
		if _, err := m.client.Index(idxMemorials).AddDocuments(doc.Memorials, nil); err != nil {
			return fmt.Errorf("index memorials of tree %d: %w", doc.Tree.ID, err)
		}
	}
	for _, id := range doc.Detached {
		if _, err := m.client.Index(idxMemorials).DeleteDocument(strconv.FormatInt(id, 10), nil); err != nil {
			return fmt.Errorf("delete memorial %d: %w", id, err)
		}
	}
	return nil
}

// IndexAll bulk-indexes trees and memorials.
func (m *Meili) IndexAll(trees []TreeRecord, memorials []MemorialRecord) error {
	if len(trees) > 0 {
		if _, err := m.client.Index(idxTrees).AddDocuments(trees, nil); err != nil {
			return fmt.Errorf("bulk index trees: %w", err)
		}
	}
	if len(memorials) > 0 {
		if _, err := m.client.Index(idxMemorials).AddDocuments(memorials, nil); err != nil {
			return fmt.Errorf("bulk index memorials: %w", err)
		}
	}
	return nil
}
