package search

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/felixgeelhaar/scribe/internal/provider"
	"github.com/felixgeelhaar/scribe/internal/retry"
)

// Mock returns two canned hits for any query.
type Mock struct{}

func (Mock) Name() string { return "mock" }

func (Mock) Search(_ context.Context, query string) (*Result, error) {
	return &Result{
		Query: query,
		Hits: []Hit{
			{Title: "Quantum advances 2024", Snippet: "New technique stabilizes qubits."},
			{Title: "AI and quantum", Snippet: "Researchers explore hybrid models."},
		},
		Source: "mock",
	}, nil
}

const (
	maxHits        = 5
	hitTitleLength = 80
)

// ModelBackend asks a language model for search-style results and parses one
// hit per non-blank line of its answer.
type ModelBackend struct {
	provider provider.Provider
	exec     *retry.Executor
}

func NewModelBackend(p provider.Provider, exec *retry.Executor) *ModelBackend {
	return &ModelBackend{provider: p, exec: exec}
}

func (b *ModelBackend) Name() string { return "model:" + b.provider.Name() }

func (b *ModelBackend) Search(ctx context.Context, query string) (*Result, error) {
	req := provider.Request{
		Prompt: fmt.Sprintf("Search the web for up-to-date findings about: %s\n"+
			"Return up to %d concise search-style results: short title and one-line snippet per result.", query, maxHits),
		MaxTokens: 512,
	}

	resp, err := retry.Do(ctx, b.exec, func(ctx context.Context) (*provider.Response, error) {
		return b.provider.Generate(ctx, req)
	})
	if err != nil {
		return &Result{Query: query, Source: "model_error", Error: err.Error()}, nil
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return &Result{Query: query, Source: "model_empty", Error: "empty_response"}, nil
	}

	var hits []Hit
	for _, ln := range strings.Split(text, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		hits = append(hits, Hit{Title: clip(ln, hitTitleLength), Snippet: ln})
		if len(hits) == maxHits {
			break
		}
	}
	return &Result{Query: query, Hits: hits, Source: "model_search", Raw: text}, nil
}

// CSEBackend queries the Google Custom Search JSON API.
type CSEBackend struct {
	svc  *customsearch.Service
	cx   string
	exec *retry.Executor
}

// NewCSEBackend creates a Custom Search client for engine cx. Extra client
// options (such as an endpoint override) are passed through.
func NewCSEBackend(ctx context.Context, apiKey, cx string, exec *retry.Executor, opts ...option.ClientOption) (*CSEBackend, error) {
	if apiKey == "" || cx == "" {
		return nil, fmt.Errorf("custom search needs both an API key and an engine id")
	}
	svc, err := customsearch.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create custom search client: %w", err)
	}
	return &CSEBackend{svc: svc, cx: cx, exec: exec}, nil
}

func (b *CSEBackend) Name() string { return "google_cse" }

func (b *CSEBackend) Search(ctx context.Context, query string) (*Result, error) {
	out, err := retry.Do(ctx, b.exec, func(ctx context.Context) (*customsearch.Search, error) {
		return b.svc.Cse.List().Cx(b.cx).Q(query).Num(maxHits).Context(ctx).Do()
	})
	if err != nil {
		return &Result{Query: query, Source: "error_fallback", Error: err.Error()}, nil
	}

	hits := make([]Hit, 0, len(out.Items))
	for _, item := range out.Items {
		hits = append(hits, Hit{Title: item.Title, Link: item.Link, Snippet: item.Snippet})
		if len(hits) == maxHits {
			break
		}
	}
	return &Result{Query: query, Hits: hits, Source: "google_cse"}, nil
}
