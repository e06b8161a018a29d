package provider

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StubProvider replays scripted responses and errors. It backs the offline
// demo mode and tests that need a model to fail on cue.
type StubProvider struct {
	mu sync.Mutex

	// Responses are returned in order; when exhausted the prompt is echoed.
	Responses []string
	// Errors are consumed before Responses, one per call. A nil entry lets
	// that call succeed.
	Errors []error
	// Delay simulates model latency.
	Delay time.Duration

	calls    int
	requests []Request
}

func NewStubProvider(responses ...string) *StubProvider {
	return &StubProvider{Responses: responses}
}

func (m *StubProvider) Name() string {
	return "stub"
}

func (m *StubProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Delay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.requests = append(m.requests, req)

	if len(m.Errors) > 0 {
		err := m.Errors[0]
		m.Errors = m.Errors[1:]
		if err != nil {
			return nil, err
		}
	}

	content := fmt.Sprintf("stub response to: %s", truncate(req.Prompt, 120))
	if len(m.Responses) > 0 {
		content = m.Responses[0]
		m.Responses = m.Responses[1:]
	}
	return &Response{
		Content: content,
		Usage:   Usage{PromptTokens: len(req.Prompt) / 4, CompletionTokens: len(content) / 4, TotalTokens: (len(req.Prompt) + len(content)) / 4},
	}, nil
}

// Calls returns how many times Generate was invoked.
func (m *StubProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns a copy of every request received.
func (m *StubProvider) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
