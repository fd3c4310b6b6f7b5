package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS searches trees and memorials with PostgreSQL full-text search. It is
// the fallback while Meilisearch is down and the source for full reindexing.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('simple', $1)"
	args := []any{q.Text, q.ViewerID}

	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultTree {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'tree'::text AS type, t.id, t.id AS tree_id, t.name AS title,
				ts_headline('simple', t.description, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				ts_rank(to_tsvector('simple', t.name || ' ' || t.description), %s) AS rank
			FROM family_trees t
			WHERE to_tsvector('simple', t.name || ' ' || t.description) @@ %s
				AND (t.is_public OR t.owner_id = $2)`, tsQuery, tsQuery, tsQuery))
	}
	if q.FilterType == "" || q.FilterType == ResultMemorial {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'memorial'::text AS type, m.id, t.id AS tree_id, m.display_name AS title,
				ts_headline('simple', m.biography, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				ts_rank(to_tsvector('simple', m.display_name || ' ' || m.biography), %s) AS rank
			FROM memorials m
			JOIN family_trees t ON t.id = m.tree_id
			WHERE to_tsvector('simple', m.display_name || ' ' || m.biography) @@ %s
				AND ((t.is_public AND m.is_public) OR t.owner_id = $2)`, tsQuery, tsQuery, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}
	union := strings.Join(subQueries, " UNION ALL ")

	var total int
	if err := p.db.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM (%s) sub", union), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`SELECT type, id, tree_id, title, snippet
		FROM (%s) sub
		ORDER BY rank DESC, id ASC
		LIMIT %d OFFSET %d`, union, limit, offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r   Result
			typ string
		)
		if err := rows.Scan(&typ, &r.ID, &r.TreeID, &r.Title, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]TreeRecord, []MemorialRecord, error) {
	treeRows, err := p.db.QueryContext(ctx, `
		SELECT id, owner_id, name, description, is_public
		FROM family_trees
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load trees: %w", err)
	}
	defer treeRows.Close()

	trees := make([]TreeRecord, 0)
	for treeRows.Next() {
		var t TreeRecord
		if err := treeRows.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Description, &t.IsPublic); err != nil {
			return nil, nil, fmt.Errorf("scan tree: %w", err)
		}
		trees = append(trees, t)
	}
	if err := treeRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate trees: %w", err)
	}

	memorialRows, err := p.db.QueryContext(ctx, `
		SELECT m.id, t.id, t.owner_id, m.display_name, m.biography, (m.is_public AND t.is_public)
		FROM memorials m
		JOIN family_trees t ON t.id = m.tree_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load memorials: %w", err)
	}
	defer memorialRows.Close()

	memorials := make([]MemorialRecord, 0)
	for memorialRows.Next() {
		var m MemorialRecord
		if err := memorialRows.Scan(&m.ID, &m.TreeID, &m.OwnerID, &m.DisplayName, &m.Biography, &m.IsPublic); err != nil {
			return nil, nil, fmt.Errorf("scan memorial: %w", err)
		}
		memorials = append(memorials, m)
	}
	if err := memorialRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate memorials: %w", err)
	}

	return trees, memorials, nil
}
