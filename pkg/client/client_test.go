package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %q, want /search", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "sparse attention" {
			t.Errorf("q = %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("limit = %q", got)
		}
		if got := r.URL.Query().Get("mode"); got != "keyword" {
			t.Errorf("mode = %q", got)
		}
		json.NewEncoder(w).Encode(SearchResponse{
			Query: "sparse attention",
			Mode:  "keyword",
			Count: 1,
			Results: []Hit{
				{ID: "p1", Title: "Sparse Attention", Link: "https://x/p1", Score: 0.91},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	resp, err := c.Search(context.Background(), "sparse attention", 5, "keyword")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Count != 1 || len(resp.Results) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Results[0].ID != "p1" {
		t.Errorf("hit id = %q, want p1", resp.Results[0].ID)
	}
}

func TestSearchOmitsDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Has("limit") || q.Has("mode") {
			t.Errorf("expected limit and mode to be omitted, got %q", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(SearchResponse{})
	}))
	defer srv.Close()

	if _, err := New(srv.URL).Search(context.Background(), "q", 0, ""); err != nil {
		t.Fatalf("Search: %v", err)
	}
}

func TestSearchBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/search/batch" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var req struct {
			Queries []string `json:"queries"`
			Limit   int      `json:"limit"`
			Mode    string   `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Queries) != 2 || req.Mode != "vector" {
			t.Errorf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(BatchResponse{
			Count: 2,
			Results: []QueryResult{
				{Query: req.Queries[0], Hits: []Hit{{ID: "a"}}},
				{Query: req.Queries[1], Hits: []Hit{}},
			},
		})
	}))
	defer srv.Close()

	resp, err := New(srv.URL).SearchBatch(context.Background(), []string{"one", "two"}, 3, "vector")
	if err != nil {
		t.Fatalf("SearchBatch: %v", err)
	}
	if resp.Count != 2 || resp.Results[0].Query != "one" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestGetPaper(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/papers/abc123" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Paper{ID: "abc123", Title: "T"})
	}))
	defer srv.Close()

	p, err := New(srv.URL).GetPaper(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("GetPaper: %v", err)
	}
	if p.ID != "abc123" {
		t.Errorf("id = %q", p.ID)
	}
}

func TestAPIErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "not_found",
			"message": "paper not found",
		})
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetPaper(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "not_found" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}

func TestAPIErrorNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Health(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
	if apiErr.Code != "unknown" {
		t.Errorf("code = %q, want unknown fallback", apiErr.Code)
	}
}

func TestAPIKeyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(HealthReport{Status: "ok"})
	}))
	defer srv.Close()

	c := New(srv.URL, WithAPIKey("sk-test"))
	rep, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if rep.Status != "ok" {
		t.Errorf("status = %q", rep.Status)
	}
}

func TestBaseURLTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(HealthReport{Status: "ok"})
	}))
	defer srv.Close()

	if _, err := New(srv.URL + "/").Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}
