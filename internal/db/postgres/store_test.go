package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/trendllm/paperdex/internal/db"
	"github.com/trendllm/paperdex/internal/domain"
)

// --- fakes over the pgx interfaces ---

type fakeQuerier struct {
	pingErr    error
	execSQL    []string
	execErr    error
	queryFn    func(sql string, args []any) (pgx.Rows, error)
	queryRowFn func(sql string, args []any) pgx.Row
	tx         *fakeTx
	beginErr   error
	begun      bool
}

func (f *fakeQuerier) Ping(context.Context) error { return f.pingErr }

func (f *fakeQuerier) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag("CREATE"), nil
}

func (f *fakeQuerier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	return f.queryFn(sql, args)
}

func (f *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	return f.queryRowFn(sql, args)
}

func (f *fakeQuerier) Begin(context.Context) (pgx.Tx, error) {
	f.begun = true
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return f.tx, nil
}

type fakeTx struct {
	pgx.Tx
	results    *fakeBatchResults
	batch      *pgx.Batch
	committed  bool
	rolledBack bool
}

func (t *fakeTx) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	t.batch = b
	t.results.remaining = b.Len()
	return t.results
}

func (t *fakeTx) Commit(context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(context.Context) error { t.rolledBack = true; return nil }

type fakeBatchResults struct {
	pgx.BatchResults
	remaining int
	calls     int
	failAt    int // 0-based call index that errors, -1 for never
	failWith  error
}

func (b *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	call := b.calls
	b.calls++
	if b.failAt >= 0 && call == b.failAt {
		return pgconn.CommandTag{}, b.failWith
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (b *fakeBatchResults) Close() error { return nil }

type fakeRows struct {
	pgx.Rows
	rows [][]any
	idx  int
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.idx-1]
	for i, d := range dest {
		switch v := d.(type) {
		case *string:
			*v = row[i].(string)
		case *float64:
			*v = row[i].(float64)
		case *int:
			*v = row[i].(int)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) Close()     {}

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

func newUpsertFixture(failAt int, failWith error) (*fakeQuerier, *fakeTx) {
	tx := &fakeTx{results: &fakeBatchResults{failAt: failAt, failWith: failWith}}
	return &fakeQuerier{tx: tx}, tx
}

// --- catalog.go tests ---

func TestUpsertPapers_BatchesAllRowsInOneTransaction(t *testing.T) {
	q, tx := newUpsertFixture(-1, nil)
	s := NewStoreForTest(q)

	papers := []domain.Paper{
		{ID: "n1", Title: "One", Abstract: "A", Link: "https://openreview.net/forum?id=n1"},
		{ID: "n2", Title: "Two", Abstract: "B", Link: "https://openreview.net/forum?id=n2"},
		{ID: "n3", Title: "Three", Abstract: "C", Link: "https://openreview.net/forum?id=n3"},
	}
	count, err := s.UpsertPapers(context.Background(), papers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if tx.batch == nil || tx.batch.Len() != 3 {
		t.Errorf("queued %d statements, want 3", tx.batch.Len())
	}
	if !tx.committed {
		t.Error("transaction was not committed")
	}
}

func TestUpsertPapers_ChangedTextClearsStoredVector(t *testing.T) {
	q, tx := newUpsertFixture(-1, nil)
	s := NewStoreForTest(q)

	_, err := s.UpsertPapers(context.Background(), []domain.Paper{
		{ID: "n1", Title: "Revised", Abstract: "A", Link: "l1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sql := tx.batch.QueuedQueries[0].SQL
	// A conflicting row whose title or abstract changed must lose its
	// embedding so only-missing selection re-embeds it; an identical
	// row must keep it.
	for _, want := range []string{
		"papers.title IS DISTINCT FROM EXCLUDED.title",
		"papers.abstract IS DISTINCT FROM EXCLUDED.abstract",
		"THEN NULL",
		"ELSE papers.embedding",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("upsert %q is missing %q", sql, want)
		}
	}
}

func TestUpsertPapers_UniqueViolationMapsToConflict(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "papers_link_key"}
	q, tx := newUpsertFixture(1, pgErr)
	s := NewStoreForTest(q)

	_, err := s.UpsertPapers(context.Background(), []domain.Paper{
		{ID: "n1", Title: "One", Abstract: "A", Link: "l1"},
		{ID: "n2", Title: "Two", Abstract: "B", Link: "l2"},
	})
	if !errors.Is(err, domain.ErrStoreConflict) {
		t.Fatalf("error = %v, want store conflict", err)
	}
	if tx.committed {
		t.Error("failed batch must not commit")
	}
	if !tx.rolledBack {
		t.Error("failed batch must roll back")
	}
}

func TestUpsertPapers_EmptyInputSkipsTransaction(t *testing.T) {
	q := &fakeQuerier{}
	s := NewStoreForTest(q)

	count, err := s.UpsertPapers(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	if q.begun {
		t.Error("empty upsert must not open a transaction")
	}
}

func TestStoreVectors_CommitsBatch(t *testing.T) {
	q, tx := newUpsertFixture(-1, nil)
	s := NewStoreForTest(q)

	updates := []domain.VectorUpdate{
		{Link: "l1", Vector: []float32{0.1, 0.2}},
		{Link: "l2", Vector: []float32{0.3, 0.4}},
	}
	if err := s.StoreVectors(context.Background(), updates); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.batch.Len() != 2 {
		t.Errorf("queued %d statements, want 2", tx.batch.Len())
	}
	if !tx.committed {
		t.Error("transaction was not committed")
	}
}

func TestLinksWithEmbedding_FiltersOnEmbedding(t *testing.T) {
	var gotSQL string
	q := &fakeQuerier{
		queryFn: func(sql string, _ []any) (pgx.Rows, error) {
			gotSQL = sql
			return &fakeRows{rows: [][]any{{"l1"}, {"l2"}}}, nil
		},
	}
	s := NewStoreForTest(q)

	links, err := s.LinksWithEmbedding(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 2 || links[0] != "l1" || links[1] != "l2" {
		t.Errorf("links = %v, want [l1 l2]", links)
	}
	if !strings.Contains(gotSQL, "embedding IS NOT NULL") {
		t.Errorf("query %q does not filter on embedding presence", gotSQL)
	}
}

func TestFetchByIDs_PreservesInputOrder(t *testing.T) {
	q := &fakeQuerier{
		queryFn: func(_ string, _ []any) (pgx.Rows, error) {
			// database returns rows in its own order
			return &fakeRows{rows: [][]any{
				{"n2", "Two", "B", "l2"},
				{"n1", "One", "A", "l1"},
			}}, nil
		},
	}
	s := NewStoreForTest(q)

	papers, err := s.FetchByIDs(context.Background(), []string{"n1", "n2", "missing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(papers) != 2 {
		t.Fatalf("got %d papers, want 2", len(papers))
	}
	if papers[0].ID != "n1" || papers[1].ID != "n2" {
		t.Errorf("order = [%s %s], want input order [n1 n2]", papers[0].ID, papers[1].ID)
	}
}

func TestFetchByIDs_EmptyInput(t *testing.T) {
	s := NewStoreForTest(&fakeQuerier{})
	papers, err := s.FetchByIDs(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if papers != nil {
		t.Errorf("papers = %v, want nil", papers)
	}
}

func TestCountPapers(t *testing.T) {
	q := &fakeQuerier{
		queryRowFn: func(_ string, _ []any) pgx.Row {
			return fakeRow{scan: func(dest ...any) error {
				*dest[0].(*int) = 42
				return nil
			}}
		},
	}
	s := NewStoreForTest(q)

	n, err := s.CountPapers(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 42 {
		t.Errorf("count = %d, want 42", n)
	}
}

// --- search.go tests ---

func TestSearchVector_MapsScoreAndExcludesNullEmbeddings(t *testing.T) {
	var gotSQL string
	var gotArgs []any
	q := &fakeQuerier{
		queryFn: func(sql string, args []any) (pgx.Rows, error) {
			gotSQL = sql
			gotArgs = args
			return &fakeRows{rows: [][]any{
				{"n1", "One", "A", "l1", 0.93},
				{"n2", "Two", "B", "l2", 0.81},
			}}, nil
		},
	}
	s := NewStoreForTest(q)

	hits, err := s.SearchVector(context.Background(), []float32{0.1, 0.2}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Score != 0.93 || hits[1].Score != 0.81 {
		t.Errorf("scores = %v %v, want 0.93 0.81", hits[0].Score, hits[1].Score)
	}
	if !strings.Contains(gotSQL, "1 - (embedding <=> $1)") {
		t.Errorf("query %q does not compute cosine similarity", gotSQL)
	}
	if !strings.Contains(gotSQL, "embedding IS NOT NULL") {
		t.Errorf("query %q does not exclude rows without embeddings", gotSQL)
	}
	if _, ok := gotArgs[0].(pgvector.Vector); !ok {
		t.Errorf("first arg is %T, want pgvector.Vector", gotArgs[0])
	}
	if gotArgs[1] != 10 {
		t.Errorf("limit arg = %v, want 10", gotArgs[1])
	}
}

func TestSearchKeyword_RanksByRelevance(t *testing.T) {
	var gotSQL string
	q := &fakeQuerier{
		queryFn: func(sql string, args []any) (pgx.Rows, error) {
			gotSQL = sql
			if args[0] != "sparse attention" {
				t.Errorf("query arg = %v, want raw query text", args[0])
			}
			return &fakeRows{rows: [][]any{
				{"n1", "One", "A", "l1", 0.4},
			}}, nil
		},
	}
	s := NewStoreForTest(q)

	hits, err := s.SearchKeyword(context.Background(), "sparse attention", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "n1" || hits[0].Score != 0.4 {
		t.Errorf("hits = %v, want single n1 with score 0.4", hits)
	}
	if !strings.Contains(gotSQL, "websearch_to_tsquery") {
		t.Errorf("query %q does not use websearch parsing", gotSQL)
	}
	if !strings.Contains(gotSQL, "ORDER BY score DESC, id") {
		t.Errorf("query %q does not break ties by row order", gotSQL)
	}
}

// --- store.go tests ---

func TestEnsureSchema_AppliesConfiguredDimension(t *testing.T) {
	q := &fakeQuerier{}
	s := NewStoreForTestWithDimensions(q, 768)

	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	joined := strings.Join(q.execSQL, "\n")
	if !strings.Contains(joined, "vector(768)") {
		t.Error("schema does not size the vector column from config")
	}
	if !strings.Contains(joined, "CREATE EXTENSION IF NOT EXISTS vector") {
		t.Error("schema does not install the pgvector extension")
	}
	if !strings.Contains(joined, "ivfflat") {
		t.Error("schema does not create the ANN index")
	}
	if !strings.Contains(joined, "UNIQUE") {
		t.Error("schema does not enforce link uniqueness")
	}
}

func TestEnsureSchema_PropagatesError(t *testing.T) {
	q := &fakeQuerier{execErr: errors.New("permission denied")}
	s := NewStoreForTest(q)

	err := s.EnsureSchema(context.Background())
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpSchema {
		t.Fatalf("error = %v, want db.Error with schema op", err)
	}
}

func TestPing_WrapsError(t *testing.T) {
	q := &fakeQuerier{pingErr: errors.New("connection refused")}
	s := NewStoreForTest(q)

	err := s.Ping(context.Background())
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpPing {
		t.Fatalf("error = %v, want db.Error with ping op", err)
	}
}
