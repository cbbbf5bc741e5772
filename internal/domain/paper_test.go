package domain

import (
	"errors"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		paper   Paper
		wantErr bool
	}{
		{
			name: "valid",
			paper: Paper{
				Title:    "Attention Is All You Need",
				Abstract: "We propose the Transformer.",
				Link:     "https://openreview.net/forum?id=abc",
			},
		},
		{
			name:    "missing title",
			paper:   Paper{Abstract: "text", Link: "https://example.com"},
			wantErr: true,
		},
		{
			name:    "missing abstract",
			paper:   Paper{Title: "t", Link: "https://example.com"},
			wantErr: true,
		},
		{
			name:    "missing link",
			paper:   Paper{Title: "t", Abstract: "a"},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.paper.Validate()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !errors.Is(err, ErrDataValidation) {
					t.Errorf("expected ErrDataValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestNormalize_TrimsFields(t *testing.T) {
	p := Paper{ID: " x1 ", Title: "  A Title\n", Abstract: "\tbody ", Link: " https://e.com "}
	p.Normalize()

	if p.ID != "x1" || p.Title != "A Title" || p.Abstract != "body" || p.Link != "https://e.com" {
		t.Errorf("fields not trimmed: %+v", p)
	}
}

func TestEmbedInput_TemplateAndNewlines(t *testing.T) {
	got := EmbedInput("Graph\nNetworks", "Line one.\nLine two.")
	want := "Title: Graph Networks  Abstract: Line one. Line two."
	if got != want {
		t.Errorf("unexpected embed input:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestNormalizeQuery_FlattensNewlines(t *testing.T) {
	if got := NormalizeQuery("graph\nneural\nnetworks"); got != "graph neural networks" {
		t.Errorf("unexpected normalization: %q", got)
	}
	if got := NormalizeQuery("no newlines"); got != "no newlines" {
		t.Errorf("expected passthrough, got %q", got)
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
		permanent bool
	}{
		{200, false, false},
		{204, false, false},
		{429, true, false},
		{500, true, false},
		{503, true, false},
		{400, false, true},
		{404, false, true},
		{403, false, true},
	}

	for _, tc := range tests {
		err := ClassifyHTTPStatus(tc.status)
		if !tc.transient && !tc.permanent {
			if err != nil {
				t.Errorf("status %d: expected nil, got %v", tc.status, err)
			}
			continue
		}
		if err == nil {
			t.Errorf("status %d: expected error", tc.status)
			continue
		}
		if errors.Is(err, ErrTransientRemote) != tc.transient {
			t.Errorf("status %d: transient classification wrong: %v", tc.status, err)
		}
		if errors.Is(err, ErrPermanentRemote) != tc.permanent {
			t.Errorf("status %d: permanent classification wrong: %v", tc.status, err)
		}
	}
}

func TestRetryAfterHint(t *testing.T) {
	err := &RateLimitError{RetryAfter: 3 * time.Second}
	if !IsTransient(err) {
		t.Error("RateLimitError should be transient")
	}
	d, ok := RetryAfterHint(err)
	if !ok || d != 3*time.Second {
		t.Errorf("expected 3s hint, got %v ok=%v", d, ok)
	}

	if _, ok := RetryAfterHint(ErrTransientRemote); ok {
		t.Error("bare transient error should carry no hint")
	}
	if _, ok := RetryAfterHint(&RateLimitError{}); ok {
		t.Error("zero RetryAfter should report no hint")
	}
}
