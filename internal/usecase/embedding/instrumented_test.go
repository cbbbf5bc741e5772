package embedding

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/trendllm/paperdex/internal/domain"
)

// --- Mocks ---

type mockBatchEmbedder struct {
	batchCalls int
	batchSizes []int
	err        error
}

func (m *mockBatchEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{1}, TotalTokens: 2}, nil
}

func (m *mockBatchEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchCalls++
	m.batchSizes = append(m.batchSizes, len(texts))
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	out := domain.BatchEmbeddingResult{TotalTokens: 2 * len(texts)}
	for range texts {
		out.Embeddings = append(out.Embeddings, []float32{1})
	}
	return out, nil
}

// singleOnlyEmbedder has no native batch support.
type singleOnlyEmbedder struct {
	calls int
}

func (m *singleOnlyEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls++
	return domain.EmbeddingResult{Embedding: []float32{float32(len(text))}}, nil
}

// --- Tests ---

func TestBatchEmbed_ChunksOversizedBatch(t *testing.T) {
	inner := &mockBatchEmbedder{}
	emb := NewInstrumentedEmbedder(inner, "test-model", nil)

	texts := make([]string, MaxAPIBatchSize+10)
	for i := range texts {
		texts[i] = "t" + strconv.Itoa(i)
	}

	res, err := emb.BatchEmbed(context.Background(), texts)
	if err != nil {
		t.Fatalf("BatchEmbed failed: %v", err)
	}
	if inner.batchCalls != 2 {
		t.Errorf("expected 2 chunks, got %d", inner.batchCalls)
	}
	if inner.batchSizes[0] != MaxAPIBatchSize || inner.batchSizes[1] != 10 {
		t.Errorf("unexpected chunk sizes: %v", inner.batchSizes)
	}
	if len(res.Embeddings) != len(texts) {
		t.Errorf("expected %d vectors, got %d", len(texts), len(res.Embeddings))
	}
	if res.TotalTokens != 2*len(texts) {
		t.Errorf("token usage not aggregated: %d", res.TotalTokens)
	}
}

func TestBatchEmbed_FallsBackWithoutBatchSupport(t *testing.T) {
	inner := &singleOnlyEmbedder{}
	emb := NewInstrumentedEmbedder(inner, "test-model", nil)

	res, err := emb.BatchEmbed(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("BatchEmbed failed: %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 per-text calls, got %d", inner.calls)
	}
	if len(res.Embeddings) != 3 {
		t.Errorf("expected 3 vectors, got %d", len(res.Embeddings))
	}
}

func TestBatchEmbed_EmptyInput(t *testing.T) {
	inner := &mockBatchEmbedder{}
	emb := NewInstrumentedEmbedder(inner, "test-model", nil)

	res, err := emb.BatchEmbed(context.Background(), nil)
	if err != nil {
		t.Fatalf("BatchEmbed failed: %v", err)
	}
	if inner.batchCalls != 0 || len(res.Embeddings) != 0 {
		t.Errorf("empty input should not reach the provider")
	}
}

func TestEmbed_ErrorClassificationPreserved(t *testing.T) {
	inner := &mockBatchEmbedder{err: fmt.Errorf("boom: %w", domain.ErrTransientRemote)}
	emb := NewInstrumentedEmbedder(inner, "test-model", nil)

	_, err := emb.Embed(context.Background(), "x")
	if !errors.Is(err, domain.ErrTransientRemote) {
		t.Fatalf("wrapping lost the classification: %v", err)
	}
	_, err = emb.BatchEmbed(context.Background(), []string{"x"})
	if !errors.Is(err, domain.ErrTransientRemote) {
		t.Fatalf("batch wrapping lost the classification: %v", err)
	}
}

func TestHealthCheck_PassThrough(t *testing.T) {
	emb := NewInstrumentedEmbedder(&singleOnlyEmbedder{}, "test-model", nil)
	// Inner has no health check; decorator reports healthy.
	if err := emb.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
}
