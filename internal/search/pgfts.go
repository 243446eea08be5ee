package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across roadmaps and items using
// plainto_tsquery and ts_rank, with ts_headline for snippets. The owner_id
// predicate is part of every sub-query.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || strings.TrimSpace(q.OwnerID) == "" {
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

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text, q.OwnerID}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultRoadmap {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'roadmap'::text AS type, r.id, r.name AS title,
				ts_headline('english', coalesce(r.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				r.id AS roadmap_id, r.category,
				ts_rank(r.fts, %s) AS rank
			FROM roadmaps r
			WHERE r.owner_id = $2 AND r.fts @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultItem {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'item'::text AS type, i.id, i.title,
				ts_headline('english', coalesce(i.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				i.roadmap_id, ''::text AS category,
				ts_rank(i.fts, %s) AS rank
			FROM items i
			WHERE i.owner_id = $2 AND i.fts @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, roadmap_id, category
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.RoadmapID, &r.Category); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]RoadmapRecord, []ItemRecord, error) {
	roadmapRows, err := p.db.QueryContext(ctx, `
		SELECT id, owner_id, name, description, category, slug
		FROM roadmaps
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load roadmaps: %w", err)
	}
	defer roadmapRows.Close()

	roadmaps := make([]RoadmapRecord, 0)
	for roadmapRows.Next() {
		var r RoadmapRecord
		if err := roadmapRows.Scan(&r.ID, &r.OwnerID, &r.Name, &r.Description, &r.Category, &r.Slug); err != nil {
			return nil, nil, fmt.Errorf("scan roadmap: %w", err)
		}
		roadmaps = append(roadmaps, r)
	}
	if err := roadmapRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate roadmaps: %w", err)
	}

	itemRows, err := p.db.QueryContext(ctx, `
		SELECT id, owner_id, roadmap_id, title, description, is_finished
		FROM items
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load items: %w", err)
	}
	defer itemRows.Close()

	items := make([]ItemRecord, 0)
	for itemRows.Next() {
		var i ItemRecord
		if err := itemRows.Scan(&i.ID, &i.OwnerID, &i.RoadmapID, &i.Title, &i.Description, &i.IsFinished); err != nil {
			return nil, nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, i)
	}
	if err := itemRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate items: %w", err)
	}

	return roadmaps, items, nil
}
