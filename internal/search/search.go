// Package search implements the research stage's web search tool as an
// ordered chain of backends that falls back to canned results instead of
// failing.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/scribe/internal/observe"
	"github.com/felixgeelhaar/scribe/internal/runtime"
)

// ToolName is the registry name of the search tool.
const ToolName = "search"

// Hit is a single search result.
type Hit struct {
	Title   string `json:"title"`
	Link    string `json:"link,omitempty"`
	Snippet string `json:"snippet"`
}

// Result is what a backend produced for one query. A backend that ran but
// found nothing returns a Result with no Hits, optionally with Raw text or an
// Error describing why.
type Result struct {
	Query  string `json:"query"`
	Hits   []Hit  `json:"hits"`
	Source string `json:"source"`
	Raw    string `json:"raw,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Lines renders hits as "title - snippet" lines.
func (r *Result) Lines() []string {
	out := make([]string, 0, len(r.Hits))
	for _, h := range r.Hits {
		out = append(out, h.Title+" - "+h.Snippet)
	}
	return out
}

// Backend is one search provider in the chain.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string) (*Result, error)
}

const rawSnippetLimit = 400

// Chain tries backends in order and never fails: the first result with hits
// wins, a result carrying only raw model text is turned into a single hit, and
// when every backend comes up empty the mock result is returned.
type Chain struct {
	backends []Backend
	fallback Backend
	obs      *observe.Observer
}

// NewChain creates a chain over backends with Mock as the final fallback.
func NewChain(obs *observe.Observer, backends ...Backend) *Chain {
	return &Chain{
		backends: backends,
		fallback: Mock{},
		obs:      observe.OrNop(obs),
	}
}

// Search runs query through the chain.
func (c *Chain) Search(ctx context.Context, query string) *Result {
	log := c.obs.Log().With().Str("component", "search").Logger()
	log.Info().Str("query", query).Msg("search called")

	for _, b := range c.backends {
		res, err := b.Search(ctx, query)
		if err != nil {
			log.Warn().Str("backend", b.Name()).Err(err).Msg("search backend failed")
			continue
		}
		if res == nil {
			continue
		}
		log.Info().
			Str("backend", b.Name()).
			Str("source", res.Source).
			Int("hits", len(res.Hits)).
			Str("error", res.Error).
			Msg("search backend returned")

		if len(res.Hits) > 0 {
			return res
		}
		if res.Raw != "" {
			return &Result{
				Query:  query,
				Hits:   []Hit{{Title: "Model overview", Snippet: clip(res.Raw, rawSnippetLimit)}},
				Source: res.Source,
				Raw:    res.Raw,
			}
		}
	}

	log.Info().Str("query", query).Msg("returning mock search results")
	res, _ := c.fallback.Search(ctx, query)
	return res
}

// Register adds the chain to reg as the search tool. The tool's result is the
// *Result itself; a result with no hits but an error is reported as a tool
// error so callers can tell an outage from an empty answer.
func (c *Chain) Register(reg *runtime.ToolRegistry) error {
	return reg.Register(runtime.ToolDefinition{
		Name:        ToolName,
		Description: "Search the web for recent findings about a topic",
		Parameters: map[string]interface{}{
			"type":        "string",
			"description": "The search query",
		},
	}, func(ctx context.Context, input string) (any, error) {
		query := strings.TrimSpace(input)
		if query == "" {
			return nil, fmt.Errorf("empty search query")
		}
		res := c.Search(ctx, query)
		if len(res.Hits) == 0 && res.Error != "" {
			return nil, fmt.Errorf("search failed: %s", res.Error)
		}
		return res, nil
	})
}

// clip keeps the first n characters of s.
func clip(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
