package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/trendllm/paperdex/internal/db"
	"github.com/trendllm/paperdex/internal/domain"
)

// An upsert that changes the title or abstract clears the stored
// vector: it was computed from the old text, and a NULL embedding is
// what only-missing selection keys on.
const upsertSQL = `
INSERT INTO papers (note_id, title, abstract, link)
VALUES ($1, $2, $3, $4)
ON CONFLICT (link) DO UPDATE SET
	note_id = EXCLUDED.note_id,
	title = EXCLUDED.title,
	abstract = EXCLUDED.abstract,
	embedding = CASE
		WHEN papers.title IS DISTINCT FROM EXCLUDED.title
			OR papers.abstract IS DISTINCT FROM EXCLUDED.abstract
		THEN NULL
		ELSE papers.embedding
	END
`

const storeVectorSQL = `
UPDATE papers SET embedding = $2 WHERE link = $1
`

// UpsertPapers writes paper metadata in a single transaction, keyed by
// link. An update that changes the title or abstract invalidates the
// stored embedding; an update that changes nothing leaves it in place.
func (s *Store) UpsertPapers(ctx context.Context, papers []domain.Paper) (int, error) {
	if len(papers) == 0 {
		return 0, nil
	}

	tx, err := s.q.Begin(ctx)
	if err != nil {
		return 0, mapError(db.OpUpsert, err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, p := range papers {
		batch.Queue(upsertSQL, p.ID, p.Title, p.Abstract, p.Link)
	}

	br := tx.SendBatch(ctx, batch)
	count := 0
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return count, mapError(db.OpUpsert, err)
		}
		count += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return count, mapError(db.OpUpsert, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return count, mapError(db.OpUpsert, err)
	}
	return count, nil
}

// StoreVectors attaches embeddings to existing rows, one transaction
// per call so each committed batch survives later failures.
func (s *Store) StoreVectors(ctx context.Context, updates []domain.VectorUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.q.Begin(ctx)
	if err != nil {
		return mapError(db.OpStoreVectors, err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(storeVectorSQL, u.Link, pgvector.NewVector(u.Vector))
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return mapError(db.OpStoreVectors, err)
		}
	}
	if err := br.Close(); err != nil {
		return mapError(db.OpStoreVectors, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(db.OpStoreVectors, err)
	}
	return nil
}

// LinksWithEmbedding returns the links of all papers that already
// carry a vector.
func (s *Store) LinksWithEmbedding(ctx context.Context) ([]string, error) {
	rows, err := s.q.Query(ctx, `SELECT link FROM papers WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, mapError(db.OpLinks, err)
	}
	defer rows.Close()

	var links []string
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, mapError(db.OpLinks, err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(db.OpLinks, err)
	}
	return links, nil
}

// FetchByIDs returns papers for the given record IDs in input order,
// skipping IDs that are not in the catalog.
func (s *Store) FetchByIDs(ctx context.Context, ids []string) ([]domain.Paper, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.q.Query(ctx,
		`SELECT note_id, title, abstract, link FROM papers WHERE note_id = ANY($1)`, ids)
	if err != nil {
		return nil, mapError(db.OpFetch, err)
	}
	defer rows.Close()

	byID := make(map[string]domain.Paper, len(ids))
	for rows.Next() {
		var p domain.Paper
		if err := rows.Scan(&p.ID, &p.Title, &p.Abstract, &p.Link); err != nil {
			return nil, mapError(db.OpFetch, err)
		}
		if _, ok := byID[p.ID]; !ok {
			byID[p.ID] = p
		}
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(db.OpFetch, err)
	}

	papers := make([]domain.Paper, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			papers = append(papers, p)
		}
	}
	return papers, nil
}

// CountPapers returns the catalog size.
func (s *Store) CountPapers(ctx context.Context) (int, error) {
	var n int
	if err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM papers`).Scan(&n); err != nil {
		return 0, mapError(db.OpCount, err)
	}
	return n, nil
}
