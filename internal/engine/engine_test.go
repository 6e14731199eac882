package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/SaptaDey/asr-nexus-explorer-sub010/api/schemas"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/config"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/graph"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/guardrail"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/mocks"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/taskqueue"
)

const testQuery = "How does the gut microbiome influence cognition?"

func openBudget() config.GuardrailConfig {
	return config.GuardrailConfig{
		WarningThreshold: 0.8,
		ResetInterval:    24 * time.Hour,
		Services: map[string]config.ServiceBudget{
			schemas.ServiceReasoning: {
				DailyCostUSD:    100,
				DailyCalls:      1000,
				DailyTokens:     1_000_000,
				CostPer1KTokens: 0.01,
				CostPerCall:     0.002,
			},
			schemas.ServiceSearch: {
				DailyCostUSD: 100,
				DailyCalls:   1000,
				DailyTokens:  1_000_000,
				CostPerCall:  0.01,
			},
		},
	}
}

func exhaustedBudget() config.GuardrailConfig {
	cfg := openBudget()
	for name, budget := range cfg.Services {
		budget.DailyCostUSD = 0
		cfg.Services[name] = budget
	}
	return cfg
}

type fixture struct {
	engine   *Engine
	reasoner *mocks.MockReasoner
	searcher *mocks.MockSearcher
	guard    *guardrail.Guardrail
	graph    *graph.Graph
}

func newFixture(t *testing.T, guardCfg config.GuardrailConfig) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	q := taskqueue.New(config.QueueConfig{
		Workers:         2,
		MaxPending:      32,
		TaskTimeout:     5 * time.Second,
		ResultRetention: time.Minute,
	}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	t.Cleanup(func() {
		cancel()
		q.Stop()
	})

	f := &fixture{
		reasoner: &mocks.MockReasoner{},
		searcher: &mocks.MockSearcher{},
		guard:    guardrail.New(guardCfg, logger),
		graph:    graph.New(logger),
	}
	f.engine = New(config.EngineConfig{
		CallTimeout:              5 * time.Second,
		MaxTokens:                256,
		RetryTokenMultiplier:     1.5,
		PruneThreshold:           0.25,
		MergeSimilarity:          0.9,
		SubgraphThreshold:        0.2,
		MaxEvidencePerHypothesis: 2,
	}, Deps{
		Graph:     f.graph,
		Guardrail: f.guard,
		Queue:     q,
		Reasoner:  f.reasoner,
		Searcher:  f.searcher,
		Credentials: schemas.Credentials{
			ReasoningAPIKey: "reasoning-key",
			SearchAPIKey:    "search-key",
		},
		Logger: logger,
	})
	return f
}

// stubStage answers completion calls whose prompt contains the given marker.
func (f *fixture) stubStage(promptMarker, text string) {
	f.reasoner.On("Complete", mock.Anything, mock.MatchedBy(func(req schemas.CompletionRequest) bool {
		return strings.Contains(req.Prompt, promptMarker)
	})).Return(&schemas.CompletionResponse{
		Text:         text,
		FinishReason: schemas.FinishStop,
		TokensUsed:   50,
	}, nil)
}

func (f *fixture) stubAllStages() {
	f.stubStage("Analyze this research question",
		"Field: Neuroscience\nTopic: Gut-brain axis signaling\nObjectives:\n- Map signaling mechanisms\n- Identify candidate biomarkers")
	f.stubStage("For each dimension",
		"scope: adult human cohorts\nobjectives: measurable cognitive outcomes\nconstraints: observational data only\nbias-risk: publication bias in microbiome studies\nknowledge-gaps: causal mechanisms unclear")
	f.stubStage("falsifiable hypotheses",
		"- Microbial diversity predicts memory performance\n- Vagal signaling mediates behavioral effects\n- Dietary fiber intake modulates neuroinflammation")
	f.stubStage("research narrative",
		"The assembled evidence indicates converging support [1] with partial replication [2].")
	f.stubStage("Audit the following",
		"- selection bias in evidence retrieval\n- results appear internally consistent")
	f.stubStage("final research report",
		"The pipeline supports a moderated link between microbiome composition and cognition.\nRecommendations:\n- Run longitudinal cohort studies\n- Standardize sequencing protocols")
	f.searcher.On("Search", mock.Anything, mock.Anything).Return(&schemas.SearchResponse{
		Text: "Higher microbial diversity is associated with improved cognitive scores in two cohorts.",
		Sources: []schemas.SourceRef{
			{Title: "Cohort study A", URL: "https://doi.org/10.1000/a", Snippet: "diversity and cognition"},
			{Title: "Cohort study B", URL: "https://pubmed.ncbi.nlm.nih.gov/b", Snippet: "replication cohort"},
		},
	}, nil)
}

func (f *fixture) runStages(t *testing.T, through int) []*schemas.StageResult {
	t.Helper()
	results := make([]*schemas.StageResult, 0, through)
	for stage := 1; stage <= through; stage++ {
		result, err := f.engine.ExecuteStage(context.Background(), stage, testQuery)
		require.NoError(t, err, "stage %d", stage)
		results = append(results, result)
	}
	return results
}

func TestExecuteStageValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, openBudget())

	tests := []struct {
		name      string
		stage     int
		query     string
		wantField string
	}{
		{"stage below range", 0, testQuery, "stage"},
		{"stage above range", 10, testQuery, "stage"},
		{"empty query", 1, "", "query"},
		{"whitespace query", 1, "   \n\t", "query"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.ExecuteStage(context.Background(), tt.stage, tt.query)
			var validationErr *schemas.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.wantField, validationErr.Field)
		})
	}
	f.reasoner.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestExecuteStageMissingCredentials(t *testing.T) {
	t.Parallel()
	logger := zaptest.NewLogger(t)
	eng := New(config.EngineConfig{}, Deps{
		Guardrail: guardrail.New(openBudget(), logger),
		Logger:    logger,
	})

	_, err := eng.ExecuteStage(context.Background(), 1, testQuery)
	var credErr *schemas.CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, schemas.ServiceReasoning, credErr.Service)

	// Stage 4 needs the search key instead.
	_, err = eng.ExecuteStage(context.Background(), 4, testQuery)
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, schemas.ServiceSearch, credErr.Service)
}

func TestStageOrderingEnforced(t *testing.T) {
	t.Parallel()
	f := newFixture(t, openBudget())

	_, err := f.engine.ExecuteStage(context.Background(), 2, testQuery)
	var validationErr *schemas.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Reason, "stage 1 has not completed")
}

func TestStageInitialization(t *testing.T) {
	t.Parallel()
	f := newFixture(t, openBudget())
	f.stubAllStages()

	result, err := f.engine.ExecuteStage(context.Background(), 1, testQuery)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Stage)
	assert.Equal(t, schemas.StageCompleted, result.Status)
	assert.Contains(t, result.NodeIDs, schemas.RootNodeID)
	assert.False(t, result.Metadata.Fallback)
	assert.Equal(t, 2, result.Metadata.Counts["objectives"])
	assert.Positive(t, result.Metadata.TokensUsed)

	root, err := f.graph.Node(schemas.RootNodeID)
	require.NoError(t, err)
	assert.Equal(t, schemas.NodeTypeRoot, root.Type)
	assert.Equal(t, "Gut-brain axis signaling", root.Label)

	rc := f.engine.GetResearchContext()
	assert.Equal(t, "Neuroscience", rc.Field)
	assert.Len(t, rc.Objectives, 2)
}

func TestPipelineThroughEvidence(t *testing.T) {
	t.Parallel()
	f := newFixture(t, openBudget())
	f.stubAllStages()

	results := f.runStages(t, 4)

	assert.Equal(t, 5, results[1].Metadata.Counts["dimensions"])
	assert.Equal(t, 3, results[2].Metadata.Counts["hypotheses"])
	assert.Equal(t, 6, results[3].Metadata.Counts["evidence"])
	assert.Equal(t, 3, results[3].Metadata.Counts["hyperedges"])

	export := f.engine.GetGraphData()
	assert.Equal(t, 15, export.Metadata.TotalNodes)
	assert.Equal(t, 14, export.Metadata.TotalEdges)
	assert.Equal(t, 3, export.Metadata.TotalHyperedges)

	// Evidence integration must move every hypothesis off its seed prior.
	for _, hyp := range f.graph.NodesByType(schemas.NodeTypeHypothesis) {
		assert.NotEqual(t, hypothesisSeed, hyp.Confidence, "hypothesis %s", hyp.ID)
	}

	// Every reported artifact resolves, and every edge endpoint exists.
	ids := make(map[string]bool, len(export.Nodes))
	for _, node := range export.Nodes {
		ids[node.ID] = true
	}
	for _, result := range results {
		for _, id := range result.NodeIDs {
			assert.True(t, ids[id], "unknown node %s in stage %d result", id, result.Stage)
		}
	}
	for _, edge := range export.Edges {
		assert.True(t, ids[edge.SourceID])
		assert.True(t, ids[edge.TargetID])
	}
}

func TestGuardrailDenialProducesFallback(t *testing.T) {
	t.Parallel()
	f := newFixture(t, exhaustedBudget())

	result, err := f.engine.ExecuteStage(context.Background(), 1, testQuery)
	require.NoError(t, err)

	assert.True(t, result.Metadata.Fallback)
	assert.Contains(t, result.Content, "[heuristic]")
	assert.Equal(t, schemas.StageCompleted, result.Status)
	assert.True(t, f.guard.InFallbackMode())

	root, err := f.graph.Node(schemas.RootNodeID)
	require.NoError(t, err)
	assert.True(t, root.Metadata.Fallback)

	f.reasoner.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestTruncationRetriesOnceWithLargerBudget(t *testing.T) {
	t.Parallel()
	f := newFixture(t, openBudget())

	var budgets []int
	record := func(args mock.Arguments) {
		req := args.Get(1).(schemas.CompletionRequest)
		budgets = append(budgets, req.Options.MaxTokens)
	}
	f.reasoner.On("Complete", mock.Anything, mock.Anything).Run(record).Return(&schemas.CompletionResponse{
		Text:         "Field: Physics\nTopic: truncated mid",
		FinishReason: schemas.FinishLength,
		TokensUsed:   256,
	}, nil).Once()
	f.reasoner.On("Complete", mock.Anything, mock.Anything).Run(record).Return(&schemas.CompletionResponse{
		Text:         "Field: Physics\nTopic: Quantum sensing limits",
		FinishReason: schemas.FinishStop,
		TokensUsed:   300,
	}, nil).Once()

	result, err := f.engine.ExecuteStage(context.Background(), 1, testQuery)
	require.NoError(t, err)

	require.Equal(t, []int{256, 384}, budgets)
	assert.Contains(t, result.Content, "Quantum sensing limits")
	assert.Equal(t, 556, result.Metadata.TokensUsed)
	assert.Empty(t, result.Metadata.Notices)
	f.reasoner.AssertExpectations(t)
}

func TestTruncationNoticeWhenRetryStillTruncated(t *testing.T) {
	t.Parallel()
	f := newFixture(t, openBudget())

	f.reasoner.On("Complete", mock.Anything, mock.Anything).Return(&schemas.CompletionResponse{
		Text:         "Field: Physics\nTopic: still cut off",
		FinishReason: schemas.FinishLength,
		TokensUsed:   256,
	}, nil)

	result, err := f.engine.ExecuteStage(context.Background(), 1, testQuery)
	require.NoError(t, err)
	require.NotEmpty(t, result.Metadata.Notices)
	assert.Contains(t, result.Metadata.Notices[0], "truncated")
}

func TestTypedErrorSurfacesThroughQueue(t *testing.T) {
	t.Parallel()
	f := newFixture(t, openBudget())

	f.reasoner.On("Complete", mock.Anything, mock.Anything).Return(nil,
		&schemas.RateLimitError{Service: schemas.ServiceReasoning, RetryAfter: 30 * time.Second})

	_, err := f.engine.ExecuteStage(context.Background(), 1, testQuery)
	var rateErr *schemas.RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, 30*time.Second, rateErr.RetryAfter)
}

func TestPruneMergeNeverIncreasesActiveCount(t *testing.T) {
	t.Parallel()
	f := newFixture(t, openBudget())
	f.stubAllStages()
	f.runStages(t, 4)

	before := f.graph.ActiveNodeCount()
	result, err := f.engine.ExecuteStage(context.Background(), 5, testQuery)
	require.NoError(t, err)

	assert.LessOrEqual(t, f.graph.ActiveNodeCount(), before)
	assert.Contains(t, result.Metadata.Counts, "pruned")
	assert.Contains(t, result.Metadata.Counts, "merged")
	// Pruning deactivates, never deletes.
	assert.Equal(t, 15, f.graph.Metadata().TotalNodes)
}

func TestExecuteAllRunsNineStages(t *testing.T) {
	t.Parallel()
	f := newFixture(t, openBudget())
	f.stubAllStages()

	results, err := f.engine.ExecuteAll(context.Background(), testQuery)
	require.NoError(t, err)
	require.Len(t, results, 9)
	for i, result := range results {
		assert.Equal(t, i+1, result.Stage)
		assert.Equal(t, schemas.StageCompleted, result.Status)
	}

	final := results[8]
	meta := f.graph.Metadata()
	assert.Equal(t, meta.TotalNodes, final.Metadata.Counts["total_nodes"])
	assert.Equal(t, meta.ActiveNodes, final.Metadata.Counts["active_nodes"])
	assert.Equal(t, 2, final.Metadata.Counts["recommendations"])
	assert.Contains(t, final.Content, "Summary statistics:")

	// The composition stage counted its inline citations.
	assert.Equal(t, 2, results[6].Metadata.Counts["citations"])

	contexts := f.engine.GetStageContexts()
	require.Len(t, contexts, 9)
	for i, result := range contexts {
		assert.Equal(t, i+1, result.Stage)
	}

	rc := f.engine.GetResearchContext()
	assert.Equal(t, "Gut-brain axis signaling", rc.Topic)
	assert.NotEmpty(t, rc.Hypotheses)
	assert.NotEmpty(t, rc.BiasFlags)
}

func TestReExecutionReplacesStageArtifacts(t *testing.T) {
	t.Parallel()
	f := newFixture(t, openBudget())
	f.stubAllStages()
	f.runStages(t, 3)

	require.Len(t, f.graph.NodesByType(schemas.NodeTypeHypothesis), 3)

	result, err := f.engine.ExecuteStage(context.Background(), 3, testQuery)
	require.NoError(t, err)

	// Re-running replaces stage-3 artifacts instead of piling on.
	assert.Len(t, f.graph.NodesByType(schemas.NodeTypeHypothesis), 3)
	assert.Equal(t, 3, result.Metadata.Counts["hypotheses"])
	assert.Len(t, f.engine.GetResearchContext().Hypotheses, 3)

	// Stage 1 and 2 artifacts survive untouched.
	_, err = f.graph.Node(schemas.RootNodeID)
	assert.NoError(t, err)
	assert.Len(t, f.graph.NodesByType(schemas.NodeTypeDimension), 5)
}

func TestReExecutionKeepsDownstreamContributions(t *testing.T) {
	t.Parallel()
	f := newFixture(t, openBudget())
	f.stubAllStages()
	f.runStages(t, 4)

	before := f.engine.GetGraphData()
	require.Equal(t, 15, before.Metadata.TotalNodes)
	require.Equal(t, 14, before.Metadata.TotalEdges)

	// Re-running the first stage recreates the root under its stable id;
	// every downstream contribution, including the decomposition edges that
	// point at the root, must survive.
	_, err := f.engine.ExecuteStage(context.Background(), 1, testQuery)
	require.NoError(t, err)

	after := f.engine.GetGraphData()
	assert.Equal(t, 15, after.Metadata.TotalNodes)
	assert.Equal(t, 14, after.Metadata.TotalEdges)
	assert.Equal(t, 3, after.Metadata.TotalHyperedges)

	rootEdges := 0
	for _, edge := range after.Edges {
		if edge.SourceID == schemas.RootNodeID {
			rootEdges++
		}
	}
	assert.Equal(t, 5, rootEdges, "each dimension stays linked to the recreated root")
}

func TestStageEvidenceRequiresHypotheses(t *testing.T) {
	t.Parallel()
	f := newFixture(t, openBudget())
	f.stubAllStages()

	// Run stages 1-3 with a parser output that yields hypotheses, then drop
	// them behind the engine's back to trip the consistency check.
	f.runStages(t, 3)
	for _, hyp := range f.graph.NodesByType(schemas.NodeTypeHypothesis) {
		require.NoError(t, f.graph.PruneNode(hyp.ID, "test setup"))
	}

	_, err := f.engine.ExecuteStage(context.Background(), 4, testQuery)
	var consistencyErr *schemas.GraphConsistencyError
	require.ErrorAs(t, err, &consistencyErr)
}
