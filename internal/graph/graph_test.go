package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/SaptaDey/asr-nexus-explorer-sub010/api/schemas"
)

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	return New(zaptest.NewLogger(t))
}

func addNode(t *testing.T, g *Graph, id string, nodeType schemas.NodeType, stage int) *schemas.Node {
	t.Helper()
	node, err := g.AddNode(schemas.Node{
		ID:         id,
		Label:      "label " + id,
		Type:       nodeType,
		Stage:      stage,
		Confidence: schemas.ConfidenceVector{0.5, 0.5, 0.5, 0.5},
	})
	require.NoError(t, err)
	return node
}

func TestAddNodeUpsertAndClamping(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)

	node, err := g.AddNode(schemas.Node{
		ID:         "n1",
		Type:       schemas.NodeTypeHypothesis,
		Confidence: schemas.ConfidenceVector{-1, 2, 0.5, 0.5},
	})
	require.NoError(t, err)
	assert.Equal(t, schemas.ConfidenceVector{0, 1, 0.5, 0.5}, node.Confidence)

	// Upsert keeps identity but refreshes the label.
	updated, err := g.AddNode(schemas.Node{ID: "n1", Label: "new", Type: schemas.NodeTypeHypothesis})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Label)
	assert.Equal(t, 1, g.Metadata().TotalNodes)

	// Changing the type of an existing node is rejected.
	_, err = g.AddNode(schemas.Node{ID: "n1", Type: schemas.NodeTypeEvidence})
	assert.Error(t, err)

	_, err = g.AddNode(schemas.Node{})
	assert.Error(t, err)
}

func TestAddEdgeRejectsDanglingEndpoints(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)
	addNode(t, g, "a", schemas.NodeTypeRoot, 1)

	_, err := g.AddEdge(schemas.Edge{SourceID: "a", TargetID: "missing", Type: schemas.EdgeTypeSupportive})
	var consistencyErr *schemas.GraphConsistencyError
	require.ErrorAs(t, err, &consistencyErr)

	addNode(t, g, "b", schemas.NodeTypeDimension, 2)
	edge, err := g.AddEdge(schemas.Edge{SourceID: "a", TargetID: "b", Type: schemas.EdgeTypeSupportive, Confidence: 0.7})
	require.NoError(t, err)
	assert.NotEmpty(t, edge.ID)
	assert.Equal(t, 1, g.Metadata().TotalEdges)
}

func TestAddHyperedgeValidation(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)
	addNode(t, g, "a", schemas.NodeTypeHypothesis, 3)
	addNode(t, g, "b", schemas.NodeTypeEvidence, 4)

	_, err := g.AddHyperedge(schemas.Hyperedge{ID: "h1", NodeIDs: []string{"a"}})
	var consistencyErr *schemas.GraphConsistencyError
	require.ErrorAs(t, err, &consistencyErr)

	_, err = g.AddHyperedge(schemas.Hyperedge{ID: "h1", NodeIDs: []string{"a", "missing"}})
	require.ErrorAs(t, err, &consistencyErr)

	he, err := g.AddHyperedge(schemas.Hyperedge{ID: "h1", NodeIDs: []string{"a", "b"}, Weight: 2})
	require.NoError(t, err)
	assert.Equal(t, 1.0, he.Weight)
}

func TestPruneNodeKeepsTotalsExact(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)
	addNode(t, g, "a", schemas.NodeTypeHypothesis, 3)
	addNode(t, g, "b", schemas.NodeTypeHypothesis, 3)

	require.NoError(t, g.PruneNode("a", "low confidence"))
	assert.Equal(t, 1, g.ActiveNodeCount())
	assert.Equal(t, 2, g.Metadata().TotalNodes)

	node, err := g.Node("a")
	require.NoError(t, err)
	assert.True(t, node.Pruned)
	assert.Equal(t, "low confidence", node.Metadata.PruneReason)

	assert.ErrorIs(t, g.PruneNode("missing", ""), schemas.ErrNotFound)
}

func TestMergeNodesReroutesEdges(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)
	keep := addNode(t, g, "keep", schemas.NodeTypeHypothesis, 3)
	addNode(t, g, "drop", schemas.NodeTypeHypothesis, 3)
	addNode(t, g, "ev", schemas.NodeTypeEvidence, 4)

	_, err := g.AddEdge(schemas.Edge{SourceID: "ev", TargetID: "drop", Type: schemas.EdgeTypeSupportive, Confidence: 0.6, Stage: 4})
	require.NoError(t, err)

	require.NoError(t, g.MergeNodes("keep", "drop"))

	merged, err := g.Node("keep")
	require.NoError(t, err)
	assert.Contains(t, merged.Metadata.MergedFrom, "drop")
	assert.False(t, merged.Pruned)

	dropped, err := g.Node("drop")
	require.NoError(t, err)
	assert.True(t, dropped.Pruned)

	// The evidence edge now points at the kept node.
	evidence, edges := g.SupportingEvidence("keep")
	require.Len(t, evidence, 1)
	require.Len(t, edges, 1)
	assert.Equal(t, "ev", evidence[0].ID)
	assert.Equal(t, "keep", edges[0].TargetID)

	_ = keep
	assert.Error(t, g.MergeNodes("keep", "keep"))
	assert.ErrorIs(t, g.MergeNodes("keep", "missing"), schemas.ErrNotFound)
}

func TestRemoveStageArtifacts(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)
	addNode(t, g, "root", schemas.NodeTypeRoot, 1)
	addNode(t, g, "hyp", schemas.NodeTypeHypothesis, 3)
	addNode(t, g, "ev", schemas.NodeTypeEvidence, 4)
	_, err := g.AddEdge(schemas.Edge{SourceID: "ev", TargetID: "hyp", Type: schemas.EdgeTypeSupportive, Stage: 4})
	require.NoError(t, err)
	_, err = g.AddHyperedge(schemas.Hyperedge{ID: "h", NodeIDs: []string{"hyp", "ev"}, Stage: 4})
	require.NoError(t, err)

	g.RemoveStageArtifacts(4)

	_, err = g.Node("ev")
	assert.ErrorIs(t, err, schemas.ErrNotFound)
	meta := g.Metadata()
	assert.Equal(t, 2, meta.TotalNodes)
	assert.Equal(t, 0, meta.TotalEdges)
	assert.Equal(t, 0, meta.TotalHyperedges)

	// Stage 1 and 3 artifacts survive.
	_, err = g.Node("root")
	assert.NoError(t, err)
	_, err = g.Node("hyp")
	assert.NoError(t, err)
}

func TestRemoveStageArtifactsKeepsCrossStageEdges(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)
	addNode(t, g, "root", schemas.NodeTypeRoot, 1)
	addNode(t, g, "dim", schemas.NodeTypeDimension, 2)
	// Edge created by stage 3 but touching a stage-2 node.
	_, err := g.AddEdge(schemas.Edge{SourceID: "root", TargetID: "dim", Type: schemas.EdgeTypePrerequisite, Stage: 3})
	require.NoError(t, err)

	g.RemoveStageArtifacts(2)

	// The cross-stage edge waits for the dimension to come back under the
	// same deterministic id.
	assert.Equal(t, 1, g.Metadata().TotalEdges)
	_, err = g.Node("root")
	assert.NoError(t, err)

	addNode(t, g, "dim", schemas.NodeTypeDimension, 2)
	g.ReconcileReferences()

	assert.Equal(t, 1, g.Metadata().TotalEdges)
	// The recreated dimension is indexed on both sides of the kept edge.
	assert.Equal(t, 1, g.inbound["dim"].Size())
	assert.Equal(t, 1, g.outbound["root"].Size())
}

func TestReconcileReferencesDropsOrphans(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)
	addNode(t, g, "root", schemas.NodeTypeRoot, 1)
	addNode(t, g, "dim", schemas.NodeTypeDimension, 2)
	addNode(t, g, "hyp", schemas.NodeTypeHypothesis, 3)
	_, err := g.AddEdge(schemas.Edge{SourceID: "root", TargetID: "dim", Type: schemas.EdgeTypePrerequisite, Stage: 3})
	require.NoError(t, err)
	_, err = g.AddHyperedge(schemas.Hyperedge{ID: "h", NodeIDs: []string{"dim", "hyp"}, Stage: 3})
	require.NoError(t, err)

	// The dimension never comes back; its edge and hyperedge are orphans.
	g.RemoveStageArtifacts(2)
	g.ReconcileReferences()

	meta := g.Metadata()
	assert.Equal(t, 0, meta.TotalEdges)
	assert.Equal(t, 0, meta.TotalHyperedges)
	_, err = g.Node("root")
	assert.NoError(t, err)
	_, err = g.Node("hyp")
	assert.NoError(t, err)
}

func TestNodesByTypeExcludesPruned(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)
	addNode(t, g, "b", schemas.NodeTypeHypothesis, 3)
	addNode(t, g, "a", schemas.NodeTypeHypothesis, 3)
	require.NoError(t, g.PruneNode("b", "test"))

	nodes := g.NodesByType(schemas.NodeTypeHypothesis)
	require.Len(t, nodes, 1)
	assert.Equal(t, "a", nodes[0].ID)
}

func TestExportTotalsMatchCollections(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)
	addNode(t, g, "a", schemas.NodeTypeRoot, 1)
	addNode(t, g, "b", schemas.NodeTypeDimension, 2)
	_, err := g.AddEdge(schemas.Edge{SourceID: "a", TargetID: "b", Type: schemas.EdgeTypePrerequisite, Stage: 2})
	require.NoError(t, err)

	export := g.Export()
	assert.Len(t, export.Nodes, export.Metadata.TotalNodes)
	assert.Len(t, export.Edges, export.Metadata.TotalEdges)
	assert.InDelta(t, 0.5, export.Metadata.Density, 1e-9)

	// Mutating the export does not touch the graph.
	export.Nodes[0].Label = "tampered"
	node, err := g.Node(export.Nodes[0].ID)
	require.NoError(t, err)
	assert.NotEqual(t, "tampered", node.Label)
}

func TestLabelSimilarity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, LabelSimilarity("immune response", "Immune Response"))
	assert.Equal(t, 0.0, LabelSimilarity("alpha beta", "gamma delta"))
	assert.InDelta(t, 0.5, LabelSimilarity("alpha beta", "alpha gamma"), 1e-9)
	assert.Equal(t, 0.0, LabelSimilarity("", "anything"))
}

func TestExtractSubgraph(t *testing.T) {
	t.Parallel()
	g := newTestGraph(t)
	addNode(t, g, "root", schemas.NodeTypeRoot, 1)

	strong, err := g.AddNode(schemas.Node{
		ID: "hyp:1", Type: schemas.NodeTypeHypothesis, Stage: 3,
		Confidence: schemas.ConfidenceVector{0.8, 0.8, 0.8, 0.8},
	})
	require.NoError(t, err)
	_, err = g.AddNode(schemas.Node{
		ID: "hyp:2", Type: schemas.NodeTypeHypothesis, Stage: 3,
		Confidence: schemas.ConfidenceVector{0.1, 0.1, 0.1, 0.1},
	})
	require.NoError(t, err)
	addNode(t, g, "ev:1", schemas.NodeTypeEvidence, 4)
	_, err = g.AddEdge(schemas.Edge{SourceID: "ev:1", TargetID: "hyp:1", Type: schemas.EdgeTypeSupportive, Stage: 4})
	require.NoError(t, err)

	export, pathways := g.ExtractSubgraph(0.5)

	require.Len(t, pathways, 1)
	assert.Equal(t, "hyp:1", pathways[0].HypothesisID)
	assert.Equal(t, []string{"ev:1"}, pathways[0].EvidenceIDs)
	assert.InDelta(t, strong.Confidence.Mean(), pathways[0].Confidence, 1e-9)

	ids := make(map[string]bool)
	for _, node := range export.Nodes {
		ids[node.ID] = true
	}
	assert.True(t, ids["root"])
	assert.True(t, ids["hyp:1"])
	assert.True(t, ids["ev:1"])
	assert.False(t, ids["hyp:2"], "below-threshold hypothesis must be excluded")

	// Every included edge has both endpoints in the node set.
	for _, edge := range export.Edges {
		assert.True(t, ids[edge.SourceID])
		assert.True(t, ids[edge.TargetID])
	}
}
