// Package engine drives the nine-phase research reasoning pipeline. Each
// stage reads the graph and research context left by the previous stage,
// issues guarded external calls through the task queue, and extends both
// before handing back a complete StageResult.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SaptaDey/asr-nexus-explorer-sub010/api/schemas"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/config"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/graph"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/taskqueue"
)

// Reasoner is the completion-service dependency.
type Reasoner interface {
	Complete(ctx context.Context, req schemas.CompletionRequest) (*schemas.CompletionResponse, error)
}

// Searcher is the search/evidence-service dependency.
type Searcher interface {
	Search(ctx context.Context, req schemas.SearchRequest) (*schemas.SearchResponse, error)
}

// Admission is the cost-guardrail dependency. CanMakeCall must be consulted,
// and return true, before every external call.
type Admission interface {
	CanMakeCall(service string, estimatedTokens int) bool
	RecordUsage(service string, tokensConsumed int)
	InFallbackMode() bool
}

// TaskQueue is the bounded-concurrency executor dependency.
type TaskQueue interface {
	Submit(fn taskqueue.TaskFunc, priority schemas.TaskPriority) (string, error)
	Poll(taskID string, timeout time.Duration) (any, error)
}

// Deps bundles the collaborators injected at construction. Credentials are
// held in memory only and never logged.
type Deps struct {
	Graph       *graph.Graph
	Guardrail   Admission
	Queue       TaskQueue
	Reasoner    Reasoner
	Searcher    Searcher
	Parser      ResponseParser
	Credentials schemas.Credentials
	Logger      *zap.Logger
}

// Engine is the stage orchestrator. Stages execute sequentially; a single
// Engine instance assumes single-writer semantics over its graph and
// guardrail.
type Engine struct {
	cfg    config.EngineConfig
	graph  *graph.Graph
	guard  Admission
	queue  TaskQueue
	llm    Reasoner
	search Searcher
	parser ResponseParser
	creds  schemas.Credentials
	logger *zap.Logger

	mu        sync.Mutex
	rc        *schemas.ResearchContext
	results   map[int]*schemas.StageResult
	completed map[int]bool
	query     string
}

// New constructs an Engine.
func New(cfg config.EngineConfig, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := deps.Parser
	if parser == nil {
		parser = NewLineParser()
	}
	g := deps.Graph
	if g == nil {
		g = graph.New(logger)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.RetryTokenMultiplier < 1 {
		cfg.RetryTokenMultiplier = 1.5
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 90 * time.Second
	}
	if cfg.MaxEvidencePerHypothesis <= 0 {
		cfg.MaxEvidencePerHypothesis = 2
	}
	return &Engine{
		cfg:       cfg,
		graph:     g,
		guard:     deps.Guardrail,
		queue:     deps.Queue,
		llm:       deps.Reasoner,
		search:    deps.Searcher,
		parser:    parser,
		creds:     deps.Credentials,
		logger:    logger.Named("engine"),
		rc:        &schemas.ResearchContext{},
		results:   make(map[int]*schemas.StageResult),
		completed: make(map[int]bool),
	}
}

// stageFn is the signature every stage implementation shares.
type stageFn func(ctx context.Context, st *stageState) error

// ExecuteStage runs one pipeline stage. It returns either a complete
// StageResult or a typed error; never a partial result. Re-executing a
// completed stage first removes that stage's own artifacts; artifacts from
// other stages are left intact.
func (e *Engine) ExecuteStage(ctx context.Context, stage int, query string) (*schemas.StageResult, error) {
	if stage < schemas.MinStage || stage > schemas.MaxStage {
		return nil, &schemas.ValidationError{Field: "stage", Reason: fmt.Sprintf("must be between %d and %d, got %d", schemas.MinStage, schemas.MaxStage, stage)}
	}
	if strings.TrimSpace(query) == "" {
		return nil, &schemas.ValidationError{Field: "query", Reason: "cannot be empty or whitespace"}
	}
	if err := e.checkCredentials(stage); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if stage > schemas.MinStage && !e.completed[stage-1] {
		e.mu.Unlock()
		return nil, &schemas.ValidationError{Field: "stage", Reason: fmt.Sprintf("stage %d has not completed", stage-1)}
	}
	rerun := e.completed[stage]
	e.query = query
	e.mu.Unlock()

	if rerun {
		e.logger.Info("Re-executing stage, removing its previous artifacts", zap.Int("stage", stage))
		e.graph.RemoveStageArtifacts(stage)
	}

	st := &stageState{
		stage:   stage,
		query:   query,
		rc:      e.snapshotContext(),
		started: time.Now(),
		counts:  make(map[string]int),
	}

	fns := map[int]stageFn{
		1: e.stageInitialization,
		2: e.stageDecomposition,
		3: e.stageHypothesis,
		4: e.stageEvidence,
		5: e.stagePruneMerge,
		6: e.stageSubgraph,
		7: e.stageComposition,
		8: e.stageReflection,
		9: e.stageFinalAnalysis,
	}

	e.logger.Info("Executing stage", zap.Int("stage", stage), zap.String("name", schemas.StageNames[stage]))
	if err := fns[stage](ctx, st); err != nil {
		e.logger.Warn("Stage failed", zap.Int("stage", stage), zap.Error(err))
		return nil, err
	}

	if rerun {
		// The rebuild recreated its nodes under the same deterministic ids;
		// cross-stage edges whose endpoints did come back are re-indexed and
		// genuinely orphaned references are dropped.
		e.graph.ReconcileReferences()
	}

	result := st.finish()
	e.mu.Lock()
	e.rc.Merge(st.rc)
	e.results[stage] = result
	e.completed[stage] = true
	e.mu.Unlock()
	e.graph.SetCurrentStage(stage)

	e.logger.Info("Stage completed",
		zap.Int("stage", stage),
		zap.Int64("duration_ms", result.Metadata.DurationMS),
		zap.Int("tokens_used", result.Metadata.TokensUsed),
		zap.Bool("fallback", result.Metadata.Fallback))
	return result, nil
}

// ExecuteAll runs stages 1 through 9 sequentially, stopping at the first
// failure.
func (e *Engine) ExecuteAll(ctx context.Context, query string) ([]*schemas.StageResult, error) {
	results := make([]*schemas.StageResult, 0, schemas.MaxStage)
	for stage := schemas.MinStage; stage <= schemas.MaxStage; stage++ {
		result, err := e.ExecuteStage(ctx, stage, query)
		if err != nil {
			return results, fmt.Errorf("stage %d (%s): %w", stage, schemas.StageNames[stage], err)
		}
		results = append(results, result)
	}
	return results, nil
}

// checkCredentials verifies that the services a stage calls have keys.
// Stages 5 and 6 are purely local and need none.
func (e *Engine) checkCredentials(stage int) error {
	switch stage {
	case 5, 6:
		return nil
	case 4:
		if e.creds.SearchAPIKey == "" {
			return &schemas.CredentialError{Service: schemas.ServiceSearch}
		}
		return nil
	default:
		if e.creds.ReasoningAPIKey == "" {
			return &schemas.CredentialError{Service: schemas.ServiceReasoning}
		}
		return nil
	}
}

// -- Snapshot accessors for the persistence collaborator --

// GetGraphData exports the full graph.
func (e *Engine) GetGraphData() schemas.GraphExport {
	return e.graph.Export()
}

// GetResearchContext returns a copy of the accumulated research context.
func (e *Engine) GetResearchContext() *schemas.ResearchContext {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rc.Clone()
}

// GetStageContexts returns the completed stage results in stage order.
func (e *Engine) GetStageContexts() []*schemas.StageResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*schemas.StageResult, 0, len(e.results))
	for stage := schemas.MinStage; stage <= schemas.MaxStage; stage++ {
		if result, ok := e.results[stage]; ok {
			out = append(out, result)
		}
	}
	return out
}

func (e *Engine) snapshotContext() *schemas.ResearchContext {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rc.Clone()
}

// -- External call plumbing --

// callOutcome is what a guarded external call hands back to stage logic.
type callOutcome struct {
	text     string
	sources  []schemas.SourceRef
	tokens   int
	fallback bool
	notices  []string
}

// reason routes one completion call: admission check, queue submit,
// synchronous poll, single truncation retry. A guardrail denial is not an
// error; the outcome comes back flagged for fallback substitution.
func (e *Engine) reason(ctx context.Context, st *stageState, system, prompt string) (*callOutcome, error) {
	estimated := estimateTokens(prompt) + e.cfg.MaxTokens
	if !e.guard.CanMakeCall(schemas.ServiceReasoning, estimated) {
		e.logger.Warn("Reasoning call denied by guardrail, using fallback", zap.Int("stage", st.stage))
		return &callOutcome{fallback: true}, nil
	}

	resp, err := e.complete(ctx, system, prompt, e.cfg.MaxTokens)
	if err != nil {
		return nil, err
	}
	e.guard.RecordUsage(schemas.ServiceReasoning, resp.TokensUsed)
	tokens := resp.TokensUsed

	if resp.Truncated() {
		retryBudget := int(float64(e.cfg.MaxTokens) * e.cfg.RetryTokenMultiplier)
		if e.guard.CanMakeCall(schemas.ServiceReasoning, estimateTokens(prompt)+retryBudget) {
			retried, err := e.complete(ctx, system, prompt, retryBudget)
			if err != nil {
				return nil, err
			}
			e.guard.RecordUsage(schemas.ServiceReasoning, retried.TokensUsed)
			tokens += retried.TokensUsed
			resp = retried
		}
	}

	outcome := &callOutcome{text: StripMarkup(resp.Text), tokens: tokens}
	if resp.Truncated() {
		outcome.notices = append(outcome.notices, (&schemas.ResponseTruncatedError{TokensUsed: resp.TokensUsed}).Error())
	}
	return outcome, nil
}

// complete submits one completion task and polls it synchronously.
func (e *Engine) complete(ctx context.Context, system, prompt string, maxTokens int) (*schemas.CompletionResponse, error) {
	req := schemas.CompletionRequest{
		System:  system,
		Prompt:  prompt,
		Mode:    schemas.ModePowerful,
		Options: schemas.CompletionOptions{MaxTokens: maxTokens},
	}
	result, err := e.await(ctx, schemas.PriorityHigh, func(taskCtx context.Context) (any, error) {
		return e.llm.Complete(taskCtx, req)
	})
	if err != nil {
		return nil, err
	}
	resp, ok := result.(*schemas.CompletionResponse)
	if !ok || resp == nil {
		return nil, &schemas.ExternalAPIError{Service: schemas.ServiceReasoning, Reason: "empty completion result"}
	}
	return resp, nil
}

// searchEvidence routes one search call through the same guarded path.
func (e *Engine) searchEvidence(ctx context.Context, st *stageState, req schemas.SearchRequest) (*callOutcome, error) {
	estimated := estimateTokens(req.Query)
	if !e.guard.CanMakeCall(schemas.ServiceSearch, estimated) {
		e.logger.Warn("Search call denied by guardrail, using fallback", zap.Int("stage", st.stage))
		return &callOutcome{fallback: true}, nil
	}

	result, err := e.await(ctx, schemas.PriorityMedium, func(taskCtx context.Context) (any, error) {
		return e.search.Search(taskCtx, req)
	})
	if err != nil {
		return nil, err
	}
	resp, ok := result.(*schemas.SearchResponse)
	if !ok || resp == nil {
		return nil, &schemas.ExternalAPIError{Service: schemas.ServiceSearch, Reason: "empty search result"}
	}
	tokens := estimateTokens(resp.Text)
	e.guard.RecordUsage(schemas.ServiceSearch, tokens)
	return &callOutcome{text: StripMarkup(resp.Text), sources: resp.Sources, tokens: tokens}, nil
}

// await submits to the queue and blocks on Poll. A TaskFailedError is
// unwrapped to its typed cause so stage callers see the real failure.
func (e *Engine) await(ctx context.Context, priority schemas.TaskPriority, fn taskqueue.TaskFunc) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	taskID, err := e.queue.Submit(fn, priority)
	if err != nil {
		return nil, err
	}
	result, err := e.queue.Poll(taskID, e.cfg.CallTimeout)
	if err != nil {
		var failed *schemas.TaskFailedError
		if errors.As(err, &failed) && failed.Err != nil {
			return nil, failed.Err
		}
		return nil, err
	}
	return result, nil
}

// estimateTokens approximates token usage from text length; four characters
// per token is close enough for admission checks.
func estimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}
