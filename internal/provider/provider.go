// Package provider adapts hosted and local language models to a single
// single-turn generation interface used by the pipeline agents.
package provider

import (
	"context"
)

// DefaultMaxTokens caps a completion when the request leaves MaxTokens unset.
const DefaultMaxTokens = 1024

// Request is one single-turn generation call.
type Request struct {
	System    string `json:"system,omitempty"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

func (r Request) maxTokens() int {
	if r.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return r.MaxTokens
}

// Response represents the output from the model.
type Response struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Provider defines the interface for AI model interactions.
//
// Errors are wrapped with %w and keep the upstream message intact, since
// retry decisions are made from the message text.
type Provider interface {
	// Generate runs one completion.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider identifier (e.g., "stub", "openai").
	Name() string
}
