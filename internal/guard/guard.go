package guard

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
)

// Policy defines the limits applied to pipeline input.
type Policy struct {
	MaxQueryChars      int      `json:"max_query_chars"`
	AllowedMemoryGlobs []string `json:"allowed_memory_globs"`
}

// DefaultPolicy provides safe defaults.
var DefaultPolicy = Policy{
	MaxQueryChars:      4000,
	AllowedMemoryGlobs: []string{"**"},
}

// Violation represents a specific breach of policy.
type Violation struct {
	Rule    string
	Message string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Rule, v.Message)
}

// Guard enforces the policy.
type Guard struct {
	policy Policy
}

func New(p Policy) *Guard {
	return &Guard{policy: p}
}

// Policy returns the guard's current policy configuration.
func (g *Guard) Policy() Policy {
	return g.policy
}

// CheckQuery rejects blank queries and queries longer than MaxQueryChars
// runes. A zero limit disables the length check.
func (g *Guard) CheckQuery(query string) *Violation {
	if strings.TrimSpace(query) == "" {
		return &Violation{Rule: "empty_query", Message: "query must not be empty"}
	}
	if n := utf8.RuneCountInString(query); g.policy.MaxQueryChars > 0 && n > g.policy.MaxQueryChars {
		return &Violation{
			Rule:    "max_query_chars",
			Message: fmt.Sprintf("query has %d characters, limit is %d", n, g.policy.MaxQueryChars),
		}
	}
	return nil
}

// CheckMemoryPath verifies that the memory store path matches one of the
// allowed globs. An empty glob list allows everything.
func (g *Guard) CheckMemoryPath(path string) *Violation {
	if len(g.policy.AllowedMemoryGlobs) == 0 {
		return nil
	}

	clean := filepath.ToSlash(filepath.Clean(path))
	for _, pattern := range g.policy.AllowedMemoryGlobs {
		match, err := doublestar.Match(pattern, clean)
		if err == nil && match {
			return nil
		}
		// "**" does not match a leading slash on absolute paths
		if strings.HasPrefix(clean, "/") {
			if match, err := doublestar.Match(pattern, strings.TrimPrefix(clean, "/")); err == nil && match {
				return nil
			}
		}
	}
	return &Violation{Rule: "allowed_memory_globs", Message: "memory path not allowed: " + path}
}
