package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/trendllm/paperdex/internal/db"
	"github.com/trendllm/paperdex/internal/domain"
)

// Hash field names. has_embedding is a TAG mirror of embedding
// presence: FT.SEARCH cannot filter on a missing binary field.
const (
	fieldID           = "id"
	fieldTitle        = "title"
	fieldAbstract     = "abstract"
	fieldLink         = "link"
	fieldEmbedding    = "embedding"
	fieldHasEmbedding = "has_embedding"
)

const linksPageSize = 1000

// UpsertPapers writes paper metadata in pipelined round-trips, keyed
// by link. The stored title and abstract are read first: an upsert
// that changes either drops the embedding and resets its presence
// flag, so only-missing selection picks the paper up again. Unchanged
// papers keep their vector, with HSETNX initializing the flag on
// first insert.
func (s *Store) UpsertPapers(ctx context.Context, papers []domain.Paper) (int, error) {
	if len(papers) == 0 {
		return 0, nil
	}

	reads := make([]rueidis.Completed, len(papers))
	for i, p := range papers {
		reads[i] = s.b().Hmget().Key(s.paperKey(p.Link)).Field(fieldTitle, fieldAbstract).Build()
	}
	stale := make([]bool, len(papers))
	for i, res := range s.client.DoMulti(ctx, reads...) {
		vals, err := res.ToArray()
		if err != nil {
			return 0, &db.Error{Op: db.OpUpsert, Err: fmt.Errorf("paper %s: %w", papers[i].Link, err)}
		}
		if len(vals) != 2 {
			continue
		}
		title, terr := vals[0].ToString()
		abstract, aerr := vals[1].ToString()
		if terr != nil || aerr != nil {
			continue // no stored text: first insert, nothing can be stale
		}
		stale[i] = title != papers[i].Title || abstract != papers[i].Abstract
	}

	cmds := make([]rueidis.Completed, 0, 2*len(papers))
	owner := make([]int, 0, 2*len(papers))
	for i, p := range papers {
		key := s.paperKey(p.Link)
		cmds = append(cmds, s.b().Hset().Key(key).FieldValue().
			FieldValue(fieldID, p.ID).
			FieldValue(fieldTitle, p.Title).
			FieldValue(fieldAbstract, p.Abstract).
			FieldValue(fieldLink, p.Link).
			Build())
		owner = append(owner, i)
		if stale[i] {
			cmds = append(cmds,
				s.b().Hdel().Key(key).Field(fieldEmbedding).Build(),
				s.b().Hset().Key(key).FieldValue().FieldValue(fieldHasEmbedding, "0").Build(),
			)
			owner = append(owner, i, i)
		} else {
			cmds = append(cmds, s.b().Hsetnx().Key(key).Field(fieldHasEmbedding).Value("0").Build())
			owner = append(owner, i)
		}
	}

	for j, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return owner[j], &db.Error{Op: db.OpUpsert, Err: fmt.Errorf("paper %s: %w", papers[owner[j]].Link, err)}
		}
	}
	return len(papers), nil
}

// StoreVectors attaches embeddings in one pipelined round-trip and
// flips the presence flag.
func (s *Store) StoreVectors(ctx context.Context, updates []domain.VectorUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	cmds := make([]rueidis.Completed, len(updates))
	for i, u := range updates {
		cmds[i] = s.b().Hset().Key(s.paperKey(u.Link)).FieldValue().
			FieldValue(fieldEmbedding, vectorToBytes(u.Vector)).
			FieldValue(fieldHasEmbedding, "1").
			Build()
	}

	results := s.client.DoMulti(ctx, cmds...)
	for i, res := range results {
		if err := res.Error(); err != nil {
			return &db.Error{Op: db.OpStoreVectors, Err: fmt.Errorf("paper %s: %w", updates[i].Link, err)}
		}
	}
	return nil
}

// LinksWithEmbedding pages through the FT index collecting the links
// of papers that already carry a vector.
func (s *Store) LinksWithEmbedding(ctx context.Context) ([]string, error) {
	var links []string
	for offset := 0; ; offset += linksPageSize {
		args := []string{
			s.indexName, "@" + fieldHasEmbedding + ":{1}",
			"RETURN", "1", fieldLink,
			"LIMIT", strconv.Itoa(offset), strconv.Itoa(linksPageSize),
			"DIALECT", "2",
		}
		cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
		raw, err := s.do(ctx, cmd).ToArray()
		if err != nil {
			return nil, &db.Error{Op: db.OpLinks, Err: err}
		}

		total, docs, err := parseDocs(raw)
		if err != nil {
			return nil, &db.Error{Op: db.OpLinks, Err: err}
		}
		for _, doc := range docs {
			if link, ok := doc.fields[fieldLink]; ok {
				links = append(links, link)
			}
		}
		if len(docs) == 0 || offset+len(docs) >= total {
			return links, nil
		}
	}
}

// FetchByIDs resolves record IDs through the FT tag index, preserving
// input order and skipping unknown IDs.
func (s *Store) FetchByIDs(ctx context.Context, ids []string) ([]domain.Paper, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, len(ids))
	for i, id := range ids {
		cmds[i] = s.b().Arbitrary("FT.SEARCH").Args(
			s.indexName, fmt.Sprintf("@%s:{%s}", fieldID, escapeTag(id)),
			"RETURN", "4", fieldID, fieldTitle, fieldAbstract, fieldLink,
			"LIMIT", "0", "1",
			"DIALECT", "2",
		).Build()
	}

	results := s.client.DoMulti(ctx, cmds...)
	papers := make([]domain.Paper, 0, len(ids))
	for i, res := range results {
		raw, err := res.ToArray()
		if err != nil {
			return nil, &db.Error{Op: db.OpFetch, Err: fmt.Errorf("id %s: %w", ids[i], err)}
		}
		_, docs, err := parseDocs(raw)
		if err != nil {
			return nil, &db.Error{Op: db.OpFetch, Err: fmt.Errorf("id %s: %w", ids[i], err)}
		}
		if len(docs) > 0 {
			papers = append(papers, paperFromFields(docs[0].fields))
		}
	}
	return papers, nil
}

// CountPapers returns the catalog size via FT.SEARCH with LIMIT 0 0.
func (s *Store) CountPapers(ctx context.Context) (int, error) {
	cmd := s.b().Arbitrary("FT.SEARCH").Args(s.indexName, "*", "LIMIT", "0", "0").Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return 0, &db.Error{Op: db.OpCount, Err: err}
	}
	if len(raw) == 0 {
		return 0, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, fmt.Errorf("parse count: %w", err)
	}
	return int(total), nil
}

func paperFromFields(m map[string]string) domain.Paper {
	return domain.Paper{
		ID:       m[fieldID],
		Title:    m[fieldTitle],
		Abstract: m[fieldAbstract],
		Link:     m[fieldLink],
	}
}
