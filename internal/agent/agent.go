// Package agent implements the four pipeline roles. Each agent asks its model
// provider for an answer through the shared retry executor and falls back to
// a deterministic offline answer when no provider is configured or the call
// fails.
package agent

import (
	"context"
	"strings"

	"github.com/felixgeelhaar/scribe/internal/observe"
	"github.com/felixgeelhaar/scribe/internal/provider"
	"github.com/felixgeelhaar/scribe/internal/retry"
	"github.com/felixgeelhaar/scribe/internal/runtime"
)

// Role identifies a pipeline stage.
type Role string

const (
	RoleResearch  Role = "research"
	RoleSummarize Role = "summarize"
	RoleCritique  Role = "critique"
	RoleWrite     Role = "write"
)

// Roles lists the stages in pipeline order.
var Roles = []Role{RoleResearch, RoleSummarize, RoleCritique, RoleWrite}

// Agent performs one pipeline stage.
type Agent interface {
	Name() string
	Role() Role
	Act(ctx context.Context, input string) (string, error)
}

// Deps are the collaborators shared by the team. Provider may be nil, which
// puts every agent into offline mode.
type Deps struct {
	Provider provider.Provider
	Executor *retry.Executor
	Tools    *runtime.ToolRegistry
	Observer *observe.Observer
}

// BaseAgent carries identity and the model call shared by all roles. Embed
// it and supply Act.
type BaseAgent struct {
	name string
	role Role
	deps Deps
}

func NewBaseAgent(name string, role Role, deps Deps) BaseAgent {
	deps.Observer = observe.OrNop(deps.Observer)
	if deps.Executor == nil {
		deps.Executor = retry.New(nil, retry.WithObserver(deps.Observer))
	}
	return BaseAgent{name: name, role: role, deps: deps}
}

func (b *BaseAgent) Name() string { return b.name }
func (b *BaseAgent) Role() Role   { return b.role }

// generate asks the provider for an answer. ok is false when there is no
// provider, the call failed after retries, or the answer was blank.
func (b *BaseAgent) generate(ctx context.Context, system, prompt string) (string, bool) {
	if b.deps.Provider == nil {
		return "", false
	}
	log := b.deps.Observer.Log().With().Str("agent", b.name).Logger()

	resp, err := retry.Do(ctx, b.deps.Executor, func(ctx context.Context) (*provider.Response, error) {
		return b.deps.Provider.Generate(ctx, provider.Request{System: system, Prompt: prompt})
	})
	if err != nil {
		log.Warn().Str("provider", b.deps.Provider.Name()).Err(err).Msg("model call failed, using offline answer")
		return "", false
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		log.Warn().Str("provider", b.deps.Provider.Name()).Msg("model returned an empty answer, using offline answer")
		return "", false
	}
	return text, true
}

// DefaultTeam builds one agent per role.
func DefaultTeam(deps Deps) []Agent {
	return []Agent{
		NewResearcher(deps),
		NewSummarizer(deps),
		NewCritic(deps),
		NewWriter(deps),
	}
}
