// Package openreview talks to the OpenReview notes API, the source
// catalog for paper submissions.
package openreview

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/trendllm/paperdex/internal/domain"
	"github.com/trendllm/paperdex/internal/ratelimit"
)

const (
	userAgent = "TrendLLM-fetch/1.0"
	forumBase = "https://openreview.net/forum?id="

	defaultTimeout = 30 * time.Second
)

// Config holds the catalog client settings.
type Config struct {
	BaseURL string
	VenueID string
	Domain  string
	RPS     float64 // catalog request budget; <=0 disables throttling
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client lists venue submissions page by page. Every request, retries
// included, first acquires the shared rate limiter.
type Client struct {
	http    *http.Client
	limiter *ratelimit.Limiter
	baseURL string
	venueID string
	domain  string
	logger  *zap.Logger
}

// NewClient creates a rate-limited catalog client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		limiter: ratelimit.New(cfg.RPS),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		venueID: cfg.VenueID,
		domain:  cfg.Domain,
		logger:  log,
	}
}

// note is the wire shape of a single submission. Content fields arrive
// wrapped as {"value": ...} objects.
type note struct {
	ID      string                     `json:"id"`
	Forum   string                     `json:"forum"`
	Content map[string]json.RawMessage `json:"content"`
}

type notesResponse struct {
	Notes []note `json:"notes"`
	Count int    `json:"count"`
}

// ListNotes fetches one page of the venue listing. Errors carry the
// taxonomy classification: 429 and 5xx are transient (429 with the
// server's Retry-After hint when parseable), other failures permanent.
func (c *Client) ListNotes(ctx context.Context, offset, limit int) (domain.FetchPage, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return domain.FetchPage{}, fmt.Errorf("catalog throttle: %w", err)
	}

	q := url.Values{}
	q.Set("content.venueid", c.venueID)
	q.Set("domain", c.domain)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	reqURL := c.baseURL + "/notes?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return domain.FetchPage{}, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		// Connection faults and timeouts are transient by taxonomy.
		return domain.FetchPage{}, fmt.Errorf("catalog request offset=%d: %v: %w",
			offset, err, domain.ErrTransientRemote)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		hint := parseRetryAfter(resp.Header.Get("Retry-After"))
		return domain.FetchPage{}, fmt.Errorf("catalog offset=%d: %w",
			offset, &domain.RateLimitError{RetryAfter: hint})
	}
	if err := domain.ClassifyHTTPStatus(resp.StatusCode); err != nil {
		return domain.FetchPage{}, fmt.Errorf("catalog offset=%d: %w", offset, err)
	}

	var body notesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.FetchPage{}, fmt.Errorf("decode catalog page offset=%d: %v: %w",
			offset, err, domain.ErrPermanentRemote)
	}

	papers := make([]domain.Paper, 0, len(body.Notes))
	for _, n := range body.Notes {
		papers = append(papers, mapNote(n))
	}

	c.logger.Debug("catalog page fetched",
		zap.Int("offset", offset),
		zap.Int("records", len(papers)),
		zap.Int("count", body.Count),
		zap.Duration("duration", time.Since(start)))

	return domain.FetchPage{Papers: papers, Total: body.Count}, nil
}

// mapNote converts a wire note into a corpus record. The forum id is the
// natural identifier, falling back to the note id; the link is derived
// deterministically from it.
func mapNote(n note) domain.Paper {
	id := n.Forum
	if id == "" {
		id = n.ID
	}
	p := domain.Paper{
		ID:       id,
		Title:    contentValue(n.Content, "title"),
		Abstract: contentValue(n.Content, "abstract"),
		Link:     forumBase + id,
	}
	p.Normalize()
	return p
}

// contentValue unwraps a {"value": ...} content field, tolerating plain
// string fields from older API versions.
func contentValue(content map[string]json.RawMessage, field string) string {
	raw, ok := content[field]
	if !ok {
		return ""
	}
	var wrapped struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Value != "" {
		return wrapped.Value
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}
	return ""
}

// parseRetryAfter accepts both Retry-After forms: integer seconds and
// HTTP-date. Unparseable or stale values yield zero (no hint).
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
