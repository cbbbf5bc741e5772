package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/trendllm/paperdex/internal/db"
	"github.com/trendllm/paperdex/internal/domain"
)

// scoreField is the name RediSearch gives the KNN distance for the
// embedding vector field.
const scoreField = "__" + fieldEmbedding + "_score"

// EnsureSchema creates the papers FT index. An existing index is left
// in place.
func (s *Store) EnsureSchema(ctx context.Context) error {
	args := []string{
		s.indexName,
		"ON", "HASH",
		"PREFIX", "1", s.keyPrefix,
		"SCHEMA",
		fieldTitle, "TEXT",
		fieldAbstract, "TEXT",
		fieldID, "TAG",
		fieldHasEmbedding, "TAG",
		fieldEmbedding, "VECTOR", "FLAT", "6",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(s.dimensions),
		"DISTANCE_METRIC", "COSINE",
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return nil
		}
		return &db.Error{Op: db.OpSchema, Err: err}
	}
	return nil
}

// SearchVector runs a KNN query over papers that carry a vector.
// RediSearch reports cosine distance; the hit score is 1 minus that
// distance, matching the postgres driver.
func (s *Store) SearchVector(ctx context.Context, vector []float32, limit int) ([]domain.Hit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	query := fmt.Sprintf("(@%s:{1})=>[KNN %d @%s $BLOB]", fieldHasEmbedding, limit, fieldEmbedding)
	args := []string{
		s.indexName, query,
		"RETURN", "5", fieldID, fieldTitle, fieldAbstract, fieldLink, scoreField,
		"SORTBY", scoreField,
		"PARAMS", "2", "BLOB", vectorToBytes(vector),
		"DIALECT", "2",
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearchVector, Err: err}
	}

	_, docs, err := parseDocs(raw)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearchVector, Err: err}
	}

	hits := make([]domain.Hit, 0, len(docs))
	for _, doc := range docs {
		hit := domain.Hit{Paper: paperFromFields(doc.fields)}
		if distStr, ok := doc.fields[scoreField]; ok {
			if dist, err := strconv.ParseFloat(distStr, 64); err == nil {
				hit.Score = 1 - dist // cosine distance → similarity
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// SearchKeyword runs a BM25 relevance query over title and abstract.
// Ties keep the order the engine returned them in.
func (s *Store) SearchKeyword(ctx context.Context, query string, limit int) ([]domain.Hit, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	queryStr := fmt.Sprintf("@%s|%s:(%s)", fieldTitle, fieldAbstract, escapeQuery(query))
	args := []string{
		s.indexName, queryStr,
		"RETURN", "4", fieldID, fieldTitle, fieldAbstract, fieldLink,
		"WITHSCORES",
		"LIMIT", "0", strconv.Itoa(limit),
		"DIALECT", "2",
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearchText, Err: err}
	}

	docs, err := parseScoredDocs(raw)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearchText, Err: err}
	}

	hits := make([]domain.Hit, 0, len(docs))
	for _, doc := range docs {
		hits = append(hits, domain.Hit{Paper: paperFromFields(doc.fields), Score: doc.score})
	}
	return hits, nil
}

// --- Result parsing ---

type docEntry struct {
	key    string
	score  float64
	fields map[string]string
}

// parseDocs parses a 2-stride FT.SEARCH reply: [total, key1, fields1, ...].
func parseDocs(raw []rueidis.RedisMessage) (int, []docEntry, error) {
	if len(raw) == 0 {
		return 0, nil, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return 0, nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return 0, nil, nil
	}

	docs := make([]docEntry, 0, len(raw)/2)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fields, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		docs = append(docs, docEntry{key: key, fields: parseFieldPairs(fields)})
	}
	return int(total), docs, nil
}

// parseScoredDocs parses a WITHSCORES 3-stride FT.SEARCH reply:
// [total, key1, score1, fields1, ...].
func parseScoredDocs(raw []rueidis.RedisMessage) ([]docEntry, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	docs := make([]docEntry, 0, len(raw)/3)
	for i := 1; i+2 < len(raw); i += 3 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		scoreStr, err := raw[i+1].ToString()
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(scoreStr, 64)
		if err != nil {
			continue
		}
		fields, err := raw[i+2].ToArray()
		if err != nil {
			continue
		}
		docs = append(docs, docEntry{key: key, score: score, fields: parseFieldPairs(fields)})
	}
	return docs, nil
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Query helpers ---

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	" ", "\\ ",
)

// escapeTag escapes a value for use inside an FT tag filter.
func escapeTag(s string) string {
	return tagEscaper.Replace(s)
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
)

// escapeQuery escapes free text for use inside an FT text query.
func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

// vectorToBytes encodes a vector as the FLOAT32 little-endian blob
// FT.SEARCH expects.
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
