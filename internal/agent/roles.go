package agent

import (
	"context"
	"strings"

	"github.com/felixgeelhaar/scribe/internal/search"
)

// Offline answers.
var (
	CannedFindings = []string{
		"Found paper: Quantum Supremacy 2024 - improved qubit stability technique.",
		"News: Qubit coherence improvement announced by University X.",
	}
	CannedCritique = "Critique: Verify claims and add citations for key statements."
	EmptySummary   = "No findings to summarize."
)

const draftInputLimit = 2000

// Researcher gathers findings for the query: the search tool first, then
// the model, then canned findings.
type Researcher struct {
	BaseAgent
}

func NewResearcher(deps Deps) *Researcher {
	return &Researcher{BaseAgent: NewBaseAgent("ResearchAgent", RoleResearch, deps)}
}

func (r *Researcher) Act(ctx context.Context, input string) (string, error) {
	log := r.deps.Observer.Log().With().Str("agent", r.name).Logger()
	log.Info().Str("query", input).Msg("research started")

	if r.deps.Tools != nil && r.deps.Tools.HasTool(search.ToolName) {
		res := r.deps.Tools.Call(ctx, search.ToolName, input)
		log.Info().Str("status", res.Status).Msg("search tool returned")
		if res.OK() {
			if hits, ok := res.Result.(*search.Result); ok {
				if lines := hits.Lines(); len(lines) > 0 {
					return strings.Join(lines, "\n"), nil
				}
			}
		} else if res.Error != "" {
			return "[search-error] " + res.Error, nil
		}
	}

	prompt := "Retrieve concise findings for: " + input + "\nProvide 3 bullet points (title - snippet)."
	if text, ok := r.generate(ctx, "You are a research assistant.", prompt); ok {
		return text, nil
	}
	return strings.Join(CannedFindings, "\n"), nil
}

// Summarizer condenses findings.
type Summarizer struct {
	BaseAgent
}

func NewSummarizer(deps Deps) *Summarizer {
	return &Summarizer{BaseAgent: NewBaseAgent("SummarizerAgent", RoleSummarize, deps)}
}

func (s *Summarizer) Act(ctx context.Context, input string) (string, error) {
	prompt := "Summarize the following findings in 3 clear bullets:\n\n" + input
	if text, ok := s.generate(ctx, "You are a precise technical summarizer.", prompt); ok {
		return text, nil
	}
	return OfflineSummary(input), nil
}

// OfflineSummary joins up to three non-empty lines of text.
func OfflineSummary(text string) string {
	var bullets []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			bullets = append(bullets, line)
			if len(bullets) == 3 {
				break
			}
		}
	}
	if len(bullets) == 0 {
		bullets = []string{EmptySummary}
	}
	return "Summary: " + strings.Join(bullets, " | ")
}

// Critic reviews the summary for factuality and gaps.
type Critic struct {
	BaseAgent
}

func NewCritic(deps Deps) *Critic {
	return &Critic{BaseAgent: NewBaseAgent("CriticAgent", RoleCritique, deps)}
}

func (c *Critic) Act(ctx context.Context, input string) (string, error) {
	prompt := "Critically evaluate for factuality and gaps:\n\n" + input
	if text, ok := c.generate(ctx, "You are a skeptical reviewer.", prompt); ok {
		return text, nil
	}
	return CannedCritique, nil
}

// Writer produces the final brief from the composed stage outputs.
type Writer struct {
	BaseAgent
}

func NewWriter(deps Deps) *Writer {
	return &Writer{BaseAgent: NewBaseAgent("WriterAgent", RoleWrite, deps)}
}

func (w *Writer) Act(ctx context.Context, input string) (string, error) {
	prompt := "Write a concise technical brief using the following input:\n\n" + input
	if text, ok := w.generate(ctx, "You are a technical writer.", prompt); ok {
		return text, nil
	}
	return OfflineDraft(input), nil
}

// OfflineDraft prefixes the first 2000 characters of input, marking
// truncation.
func OfflineDraft(input string) string {
	if head, cut := truncateRunes(input, draftInputLimit); cut {
		return "Draft Brief:\n\n" + head + "..."
	}
	return "Draft Brief:\n\n" + input
}

// truncateRunes returns the first n characters of s and whether anything
// was cut.
func truncateRunes(s string, n int) (string, bool) {
	count := 0
	for i := range s {
		if count == n {
			return s[:i], true
		}
		count++
	}
	return s, false
}
