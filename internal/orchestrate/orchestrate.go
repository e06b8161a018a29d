// Package orchestrate runs the research, summarize, critique and write
// stages in sequence and records each completed run.
package orchestrate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/codes"

	"github.com/felixgeelhaar/scribe/internal/agent"
	"github.com/felixgeelhaar/scribe/internal/memory"
	"github.com/felixgeelhaar/scribe/internal/observe"
	"github.com/felixgeelhaar/scribe/internal/runtime"
	"github.com/felixgeelhaar/scribe/internal/store"
)

// Result holds the outputs of every stage.
type Result struct {
	RunID      string `json:"-"`
	SessionID  string `json:"-"`
	DraftPath  string `json:"-"`
	Findings   string `json:"findings"`
	Summary    string `json:"summary"`
	Critique   string `json:"critique"`
	FinalDraft string `json:"final_draft"`
}

// Recorder persists completed runs. *memory.Store implements it.
type Recorder interface {
	Append(rec memory.Record) error
}

// ArtifactSaver stores the final draft of each run. *store.SQLiteStore
// implements it.
type ArtifactSaver interface {
	SaveArtifact(artifact *store.Artifact, content []byte) error
}

// Orchestrator wires agents into the fixed four stage pipeline.
type Orchestrator struct {
	agents   map[agent.Role]agent.Agent
	memory   Recorder
	drafts   ArtifactSaver
	sessions *runtime.SessionTracker
	bus      *runtime.EventBus
	obs      *observe.Observer
	now      func() time.Time
}

type Option func(*Orchestrator)

// WithMemory appends one record per completed run to r.
func WithMemory(r Recorder) Option {
	return func(o *Orchestrator) { o.memory = r }
}

// WithArtifacts saves each final draft as a "draft" artifact.
func WithArtifacts(a ArtifactSaver) Option {
	return func(o *Orchestrator) { o.drafts = a }
}

// WithSessions records the query and the final draft as session turns.
func WithSessions(st *runtime.SessionTracker) Option {
	return func(o *Orchestrator) { o.sessions = st }
}

func WithEventBus(bus *runtime.EventBus) Option {
	return func(o *Orchestrator) { o.bus = bus }
}

func WithObserver(obs *observe.Observer) Option {
	return func(o *Orchestrator) { o.obs = obs }
}

// New resolves the role map once. When several agents share a role the
// first one wins.
func New(agents []agent.Agent, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		agents: make(map[agent.Role]agent.Agent, len(agents)),
		now:    time.Now,
	}
	for _, a := range agents {
		if a == nil {
			continue
		}
		if _, taken := o.agents[a.Role()]; !taken {
			o.agents[a.Role()] = a
		}
	}
	for _, opt := range opts {
		opt(o)
	}
	o.obs = observe.OrNop(o.obs)
	return o
}

// Run executes the pipeline for query. An empty sessionID is replaced with a
// new UUID. A missing role yields empty text for its stage; an agent error
// aborts the run. Failing to persist the run record is logged and does not
// fail the run.
func (o *Orchestrator) Run(ctx context.Context, sessionID, query string) (*Result, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	runID := ulid.Make().String()
	log := o.obs.Log().With().Str("session_id", sessionID).Str("run_id", runID).Logger()

	ctx, span := o.obs.StartSpan(ctx, "pipeline.run", "session_id", sessionID, "run_id", runID)
	defer span.End()

	o.bus.PublishWithData(runtime.EventRunStart, sessionID, map[string]interface{}{
		runtime.DataRunID: runID,
		runtime.DataQuery: query,
	})
	o.addTurn(sessionID, runtime.RoleUser, query)

	res := &Result{RunID: runID, SessionID: sessionID}
	stages := []struct {
		role  agent.Role
		input func() string
		out   *string
	}{
		{agent.RoleResearch, func() string { return query }, &res.Findings},
		{agent.RoleSummarize, func() string { return res.Findings }, &res.Summary},
		{agent.RoleCritique, func() string { return res.Summary }, &res.Critique},
		{agent.RoleWrite, func() string { return ComposeDraftInput(res.Findings, res.Summary, res.Critique) }, &res.FinalDraft},
	}

	for i, st := range stages {
		out, err := o.runStage(ctx, sessionID, i, len(stages), st.role, st.input())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Error().Str("stage", string(st.role)).Err(err).Msg("pipeline stage failed")
			return nil, err
		}
		*st.out = out
	}

	o.addTurn(sessionID, runtime.RoleAgent, res.FinalDraft)
	o.persist(sessionID, runID, query, res)
	o.saveDraft(res)

	o.bus.PublishWithData(runtime.EventRunComplete, sessionID, map[string]interface{}{
		runtime.DataRunID: runID,
	})
	log.Info().Msg("pipeline run complete")
	return res, nil
}

func (o *Orchestrator) runStage(ctx context.Context, sessionID string, index, total int, role agent.Role, input string) (string, error) {
	a, ok := o.agents[role]
	if !ok {
		o.obs.Log().Warn().Str("stage", string(role)).Msg("no agent for stage, using empty output")
		return "", nil
	}

	ctx, span := o.obs.StartSpan(ctx, "pipeline.stage", "stage", string(role), "agent", a.Name())
	defer span.End()

	o.bus.PublishWithData(runtime.EventStageStart, sessionID, map[string]interface{}{
		runtime.DataStage: string(role),
		runtime.DataAgent: a.Name(),
		runtime.DataIndex: index,
		runtime.DataTotal: total,
	})

	start := o.now()
	out, err := a.Act(ctx, input)
	if err != nil {
		span.RecordError(err)
		o.bus.PublishWithData(runtime.EventStageError, sessionID, map[string]interface{}{
			runtime.DataStage: string(role),
			runtime.DataError: err.Error(),
		})
		return "", fmt.Errorf("%s stage: %w", role, err)
	}

	o.bus.PublishWithData(runtime.EventStageEnd, sessionID, map[string]interface{}{
		runtime.DataStage:    string(role),
		runtime.DataAgent:    a.Name(),
		runtime.DataIndex:    index,
		runtime.DataTotal:    total,
		runtime.DataDuration: o.now().Sub(start).String(),
	})
	return out, nil
}

func (o *Orchestrator) addTurn(sessionID, role, text string) {
	if o.sessions == nil {
		return
	}
	if _, err := o.sessions.Ensure(sessionID, nil); err != nil {
		o.obs.Log().Warn().Str("session_id", sessionID).Err(err).Msg("session unavailable")
		return
	}
	if _, err := o.sessions.AddTurn(sessionID, role, text); err != nil {
		o.obs.Log().Warn().Str("session_id", sessionID).Err(err).Msg("failed to record turn")
	}
}

func (o *Orchestrator) persist(sessionID, runID, query string, res *Result) {
	if o.memory == nil {
		return
	}
	rec := memory.Record{
		memory.KeySessionID: sessionID,
		memory.KeyTimestamp: o.now().Unix(),
		memory.KeyQuery:     query,
		memory.KeyFindings:  res.Findings,
		memory.KeySummary:   res.Summary,
		memory.KeyCritique:  res.Critique,
		memory.KeyDraft:     res.FinalDraft,
		memory.KeyRunID:     runID,
	}
	if err := o.memory.Append(rec); err != nil {
		o.obs.Log().Error().Str("session_id", sessionID).Err(err).Msg("failed to persist run to memory")
		o.bus.PublishWithData(runtime.EventMemoryPersistFailed, sessionID, map[string]interface{}{
			runtime.DataRunID: runID,
			runtime.DataError: err.Error(),
		})
	}
}

func (o *Orchestrator) saveDraft(res *Result) {
	if o.drafts == nil {
		return
	}
	art := &store.Artifact{
		ID:        "draft-" + res.RunID,
		SessionID: res.SessionID,
		Path:      "drafts/" + res.RunID + ".md",
		Type:      ArtifactTypeDraft,
		CreatedAt: o.now(),
	}
	if err := o.drafts.SaveArtifact(art, []byte(res.FinalDraft)); err != nil {
		o.obs.Log().Warn().Str("session_id", res.SessionID).Err(err).Msg("failed to save draft artifact")
		return
	}
	res.DraftPath = art.Path
}

// ArtifactTypeDraft is the artifact type of saved drafts.
const ArtifactTypeDraft = "draft"

// ComposeDraftInput builds the writer's input from the earlier stages.
func ComposeDraftInput(findings, summary, critique string) string {
	return "\n\nFindings:\n" + findings + "\n\nSummary:\n" + summary + "\n\nCritique:\n" + critique
}
