package postgres

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"github.com/trendllm/paperdex/internal/db"
	"github.com/trendllm/paperdex/internal/domain"
)

const searchVectorSQL = `
SELECT note_id, title, abstract, link, 1 - (embedding <=> $1) AS score
FROM papers
WHERE embedding IS NOT NULL
ORDER BY embedding <=> $1, id
LIMIT $2
`

const searchKeywordSQL = `
SELECT note_id, title, abstract, link,
	ts_rank_cd(to_tsvector('english', title || ' ' || abstract),
		websearch_to_tsquery('english', $1)) AS score
FROM papers
WHERE to_tsvector('english', title || ' ' || abstract)
	@@ websearch_to_tsquery('english', $1)
ORDER BY score DESC, id
LIMIT $2
`

// SearchVector returns the nearest papers by cosine similarity,
// computed as 1 minus the cosine distance. Rows without an embedding
// are excluded by the query itself.
func (s *Store) SearchVector(ctx context.Context, vector []float32, limit int) ([]domain.Hit, error) {
	rows, err := s.q.Query(ctx, searchVectorSQL, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, mapError(db.OpSearchVector, err)
	}
	defer rows.Close()
	return scanHits(rows, db.OpSearchVector)
}

// SearchKeyword runs full-text relevance ranking over title and
// abstract. Ties fall back to catalog insertion order.
func (s *Store) SearchKeyword(ctx context.Context, query string, limit int) ([]domain.Hit, error) {
	rows, err := s.q.Query(ctx, searchKeywordSQL, query, limit)
	if err != nil {
		return nil, mapError(db.OpSearchText, err)
	}
	defer rows.Close()
	return scanHits(rows, db.OpSearchText)
}

type hitRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanHits(rows hitRows, op string) ([]domain.Hit, error) {
	var hits []domain.Hit
	for rows.Next() {
		var h domain.Hit
		if err := rows.Scan(&h.ID, &h.Title, &h.Abstract, &h.Link, &h.Score); err != nil {
			return nil, mapError(op, err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op, err)
	}
	return hits, nil
}
