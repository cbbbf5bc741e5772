// Package client is a typed Go client for the paperdex HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Hit is one ranked search result.
type Hit struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Abstract string  `json:"abstract"`
	Link     string  `json:"link"`
	Score    float64 `json:"score"`
}

// Paper is a corpus record.
type Paper struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	Link     string `json:"link"`
}

// SearchResponse is the reply to a single-query search.
type SearchResponse struct {
	Query   string `json:"query"`
	Mode    string `json:"mode"`
	Count   int    `json:"count"`
	Results []Hit  `json:"results"`
}

// QueryResult groups the hits for one query of a batch.
type QueryResult struct {
	Query string `json:"query"`
	Hits  []Hit  `json:"hits"`
}

// BatchResponse is the reply to a batch search.
type BatchResponse struct {
	Count   int           `json:"count"`
	Results []QueryResult `json:"results"`
}

// HealthReport is the reply to a health probe.
type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// APIError is a non-2xx reply decoded from the service's error body.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paperdex: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAPIKey sends a bearer token with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// Client talks to a paperdex server.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Search runs one query. Zero limit and empty mode use the server's
// defaults.
func (c *Client) Search(ctx context.Context, query string, limit int, mode string) (SearchResponse, error) {
	q := url.Values{}
	q.Set("q", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if mode != "" {
		q.Set("mode", mode)
	}

	var out SearchResponse
	err := c.do(ctx, http.MethodGet, "/search?"+q.Encode(), nil, &out)
	return out, err
}

// SearchBatch runs several queries under one mode.
func (c *Client) SearchBatch(ctx context.Context, queries []string, limit int, mode string) (BatchResponse, error) {
	body := map[string]any{"queries": queries}
	if limit > 0 {
		body["limit"] = limit
	}
	if mode != "" {
		body["mode"] = mode
	}

	var out BatchResponse
	err := c.do(ctx, http.MethodPost, "/search/batch", body, &out)
	return out, err
}

// GetPaper fetches one paper by its record id.
func (c *Client) GetPaper(ctx context.Context, id string) (Paper, error) {
	var out Paper
	err := c.do(ctx, http.MethodGet, "/papers/"+url.PathEscape(id), nil, &out)
	return out, err
}

// Health probes the service. A degraded service returns the report and
// an *APIError with status 503.
func (c *Client) Health(ctx context.Context) (HealthReport, error) {
	var out HealthReport
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("paperdex: encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("paperdex: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("paperdex: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: "unknown"}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("paperdex: decode response: %w", err)
		}
	}
	return nil
}
