package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/scribe/internal/agent"
	"github.com/felixgeelhaar/scribe/internal/config"
	"github.com/felixgeelhaar/scribe/internal/guard"
	"github.com/felixgeelhaar/scribe/internal/memory"
	"github.com/felixgeelhaar/scribe/internal/observe"
	"github.com/felixgeelhaar/scribe/internal/orchestrate"
	"github.com/felixgeelhaar/scribe/internal/plugin"
	"github.com/felixgeelhaar/scribe/internal/provider"
	"github.com/felixgeelhaar/scribe/internal/ratelimit"
	"github.com/felixgeelhaar/scribe/internal/retry"
	"github.com/felixgeelhaar/scribe/internal/runtime"
	"github.com/felixgeelhaar/scribe/internal/search"
	"github.com/felixgeelhaar/scribe/internal/store"
	"github.com/felixgeelhaar/scribe/internal/ui"
)

// Runner assembles the pipeline from configuration and runs queries.
type Runner struct {
	Observer *observe.Observer
	Config   *config.Config
	Store    store.Storage
	Provider provider.Provider
	UI       ui.UI

	// Google Custom Search credentials; the backend is skipped when either
	// is empty.
	SearchAPIKey string
	SearchCX     string

	// Recall indexes completed runs; nil disables indexing.
	Recall memory.Recall

	guard    *guard.Guard
	memory   *memory.Store
	tools    *runtime.ToolRegistry
	sessions *runtime.SessionTracker
	pipeline *orchestrate.Orchestrator
	plugins  []*plugin.Loaded
}

func NewRunner(obs *observe.Observer, cfg *config.Config, s store.Storage, p provider.Provider, u ui.UI) *Runner {
	if u == nil {
		u = ui.SilentUI{}
	}
	if cfg == nil {
		cfg = config.Default()
	}
	r := &Runner{
		Observer: observe.OrNop(obs),
		Config:   cfg,
		Store:    s,
		Provider: p,
		UI:       u,
	}
	if ss, ok := s.(*store.SQLiteStore); ok {
		r.Recall = ss.Recall()
	}
	return r
}

// Build wires memory, rate limiting, retries, search and the agent team.
// It is called once; later calls are no-ops.
func (r *Runner) Build(ctx context.Context) error {
	if r.pipeline != nil {
		return nil
	}
	log := r.Observer.Log()
	cfg := r.Config

	r.guard = guard.New(guard.Policy{
		MaxQueryChars:      cfg.Guard.MaxQueryChars,
		AllowedMemoryGlobs: cfg.Guard.AllowedMemoryGlobs,
	})
	if v := r.guard.CheckMemoryPath(cfg.Memory.Path); v != nil {
		return v
	}

	mem, err := memory.Open(cfg.Memory.Path)
	if err != nil {
		return fmt.Errorf("open memory: %w", err)
	}
	if n := mem.Skipped(); n > 0 {
		log.Warn().Str("path", mem.Path()).Int("skipped", n).Msg("memory store has unreadable lines; run 'scribe repair' to normalize it")
	}
	r.memory = mem

	bus := runtime.NewEventBus()
	ui.Attach(bus, r.UI)

	limiter := ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.Window())
	exec := retry.New(limiter,
		retry.WithPolicy(retry.Policy{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff(),
			MaxBackoff:     cfg.Retry.MaxBackoff(),
		}),
		retry.WithObserver(r.Observer),
		retry.OnRetry(func(a retry.Attempt) {
			bus.PublishWithData(runtime.EventRetry, "", map[string]interface{}{
				runtime.DataAttempt: a.Index,
				runtime.DataDelay:   a.Delay.String(),
				runtime.DataSource:  string(a.Source),
			})
		}),
	)

	r.tools = runtime.NewToolRegistry()
	if r.Provider != nil && cfg.Search.Enabled {
		var backends []search.Backend
		if r.SearchAPIKey != "" && r.SearchCX != "" {
			cse, err := search.NewCSEBackend(ctx, r.SearchAPIKey, r.SearchCX, exec)
			if err != nil {
				log.Warn().Err(err).Msg("custom search unavailable")
			} else {
				backends = append(backends, cse)
			}
		}
		backends = append(backends, search.NewModelBackend(r.Provider, exec))
		if err := search.NewChain(r.Observer, backends...).Register(r.tools); err != nil {
			return err
		}
	}

	r.sessions = runtime.NewSessionTracker(r.Store)

	// plugin agents come first so they win over the built-in role
	var team []agent.Agent
	for _, pc := range cfg.Plugins {
		loaded, err := plugin.Load(pc.Path, pc.Args, agent.Role(pc.Stage), nil)
		if err != nil {
			r.Close()
			return err
		}
		log.Info().Str("stage", pc.Stage).Str("plugin", loaded.Agent.Name()).Msg("loaded agent plugin")
		r.plugins = append(r.plugins, loaded)
		team = append(team, loaded.Agent)
	}
	team = append(team, agent.DefaultTeam(agent.Deps{
		Provider: r.Provider,
		Executor: exec,
		Tools:    r.tools,
		Observer: r.Observer,
	})...)

	opts := []orchestrate.Option{
		orchestrate.WithMemory(mem),
		orchestrate.WithSessions(r.sessions),
		orchestrate.WithEventBus(bus),
		orchestrate.WithObserver(r.Observer),
	}
	if r.Store != nil {
		opts = append(opts, orchestrate.WithArtifacts(r.Store))
	}
	r.pipeline = orchestrate.New(team, opts...)
	return nil
}

// Run checks query and runs the pipeline under sessionID, generating one
// when empty. The session is marked completed or failed afterwards.
func (r *Runner) Run(ctx context.Context, sessionID, query string) (*orchestrate.Result, error) {
	if err := r.Build(ctx); err != nil {
		return nil, err
	}
	if v := r.guard.CheckQuery(query); v != nil {
		return nil, v
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	providerName := "offline"
	if r.Provider != nil {
		providerName = r.Provider.Name()
	}
	if _, err := r.sessions.Ensure(sessionID, map[string]string{"provider": providerName}); err != nil {
		r.Observer.Log().Warn().Str("session_id", sessionID).Err(err).Msg("session tracking unavailable")
	}

	res, err := r.pipeline.Run(ctx, sessionID, query)
	status := store.StatusCompleted
	if err != nil {
		status = store.StatusFailed
	}
	if serr := r.sessions.SetStatus(sessionID, status); serr != nil {
		r.Observer.Log().Warn().Str("session_id", sessionID).Err(serr).Msg("failed to update session status")
	}
	if err == nil && r.Recall != nil {
		item := memory.NewItem(sessionID, res.RunID, query, res.Summary)
		if rerr := r.Recall.Add(ctx, item); rerr != nil {
			r.Observer.Log().Warn().Str("session_id", sessionID).Err(rerr).Msg("failed to index run for recall")
		}
	}
	return res, err
}

// Close stops any plugin processes.
func (r *Runner) Close() {
	for _, p := range r.plugins {
		p.Close()
	}
	r.plugins = nil
}

// Memory returns the memory store once Build has run.
func (r *Runner) Memory() *memory.Store { return r.memory }

// Tools returns the tool registry once Build has run.
func (r *Runner) Tools() *runtime.ToolRegistry { return r.tools }

// Pipeline returns the orchestrator once Build has run.
func (r *Runner) Pipeline() *orchestrate.Orchestrator { return r.pipeline }

// Guard returns the input guard once Build has run.
func (r *Runner) Guard() *guard.Guard { return r.guard }
