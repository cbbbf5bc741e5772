package openreview

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/trendllm/paperdex/internal/domain"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL: srv.URL,
		VenueID: "ICLR.cc/2026/Conference",
		Domain:  "ICLR.cc/2026/Conference",
	})
}

func TestListNotes_MapsWrappedContent(t *testing.T) {
	var gotQuery map[string]string
	var gotUA string

	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotQuery = map[string]string{
			"content.venueid": r.URL.Query().Get("content.venueid"),
			"domain":          r.URL.Query().Get("domain"),
			"limit":           r.URL.Query().Get("limit"),
			"offset":          r.URL.Query().Get("offset"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"notes": [
				{"id": "n1", "forum": "f1", "content": {
					"title": {"value": "Graph Neural Networks"},
					"abstract": {"value": "We study GNNs."}
				}},
				{"id": "n2", "content": {
					"title": "Plain Title",
					"abstract": {"value": "  padded  "}
				}}
			],
			"count": 250
		}`))
	})

	page, err := c.ListNotes(context.Background(), 100, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotUA != "TrendLLM-fetch/1.0" {
		t.Errorf("unexpected user agent %q", gotUA)
	}
	if gotQuery["content.venueid"] != "ICLR.cc/2026/Conference" {
		t.Errorf("venueid param = %q", gotQuery["content.venueid"])
	}
	if gotQuery["limit"] != "50" || gotQuery["offset"] != "100" {
		t.Errorf("pagination params = %v", gotQuery)
	}

	if page.Total != 250 {
		t.Errorf("Total = %d, want 250", page.Total)
	}
	if len(page.Papers) != 2 {
		t.Fatalf("expected 2 papers, got %d", len(page.Papers))
	}

	first := page.Papers[0]
	if first.ID != "f1" {
		t.Errorf("expected forum id as natural id, got %q", first.ID)
	}
	if first.Title != "Graph Neural Networks" || first.Abstract != "We study GNNs." {
		t.Errorf("unexpected content mapping: %+v", first)
	}
	if first.Link != "https://openreview.net/forum?id=f1" {
		t.Errorf("unexpected link %q", first.Link)
	}

	second := page.Papers[1]
	if second.ID != "n2" {
		t.Errorf("expected note-id fallback, got %q", second.ID)
	}
	if second.Title != "Plain Title" {
		t.Errorf("plain-string content not tolerated: %q", second.Title)
	}
	if second.Abstract != "padded" {
		t.Errorf("abstract not normalized: %q", second.Abstract)
	}
}

func TestListNotes_RateLimitedWithRetryAfterSeconds(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.ListNotes(context.Background(), 0, 100)
	if err == nil {
		t.Fatal("expected error")
	}
	if !domain.IsTransient(err) {
		t.Errorf("429 should classify transient: %v", err)
	}
	hint, ok := domain.RetryAfterHint(err)
	if !ok || hint != 7*time.Second {
		t.Errorf("expected 7s hint, got %v ok=%v", hint, ok)
	}
}

func TestListNotes_RateLimitedWithHTTPDate(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", time.Now().Add(30*time.Second).UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.ListNotes(context.Background(), 0, 100)
	if err == nil {
		t.Fatal("expected error")
	}
	hint, ok := domain.RetryAfterHint(err)
	if !ok {
		t.Fatal("expected a Retry-After hint from HTTP-date header")
	}
	if hint <= 0 || hint > 31*time.Second {
		t.Errorf("hint out of range: %v", hint)
	}
}

func TestListNotes_ServerErrorIsTransient(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.ListNotes(context.Background(), 0, 100)
	if !domain.IsTransient(err) {
		t.Errorf("5xx should classify transient: %v", err)
	}
	if _, ok := domain.RetryAfterHint(err); ok {
		t.Error("5xx should carry no Retry-After hint")
	}
}

func TestListNotes_ClientErrorIsPermanent(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := c.ListNotes(context.Background(), 0, 100)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, domain.ErrPermanentRemote) {
		t.Errorf("403 should classify permanent: %v", err)
	}
}

func TestListNotes_MalformedBodyIsPermanent(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"notes": [`))
	})

	_, err := c.ListNotes(context.Background(), 0, 100)
	if !errors.Is(err, domain.ErrPermanentRemote) {
		t.Errorf("truncated body should classify permanent: %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"5", 5 * time.Second},
		{" 12 ", 12 * time.Second},
		{"0", 0},
		{"-3", 0},
		{"garbage", 0},
	}

	for _, tc := range tests {
		if got := parseRetryAfter(tc.in); got != tc.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(past); got != 0 {
		t.Errorf("stale HTTP-date should yield 0, got %v", got)
	}
}
