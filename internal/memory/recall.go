package memory

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// Recall indexes completed runs for lookup by query similarity.
type Recall interface {
	// Add indexes one run.
	Add(ctx context.Context, item Item) error

	// Retrieve returns up to limit runs ordered by similarity to query.
	Retrieve(ctx context.Context, query string, limit int) ([]Item, error)
}

// Item is one indexed run.
type Item struct {
	SessionID  string
	RunID      string
	Content    string
	Similarity float32 // set by Retrieve
}

// Query returns the first line of the content, which holds the run's query.
func (it Item) Query() string {
	q, _, _ := strings.Cut(it.Content, "\n")
	return q
}

// NewItem builds the indexed form of a run: its query, then its summary.
func NewItem(sessionID, runID, query, summary string) Item {
	return Item{
		SessionID: sessionID,
		RunID:     runID,
		Content:   strings.TrimSpace(query) + "\n" + strings.TrimSpace(summary),
	}
}

// EmbedDims is the length of vectors returned by Embed.
const EmbedDims = 256

// Embed maps text to a term-count vector by hashing lowercased words into
// EmbedDims buckets. Text without words yields the zero vector.
func Embed(text string) []float32 {
	vec := make([]float32, EmbedDims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%EmbedDims]++
	}
	return vec
}
