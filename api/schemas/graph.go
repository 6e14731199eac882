package schemas

import (
	"math"
	"time"
)

// SchemaVersion identifies the on-the-wire shape of graph exports.
const SchemaVersion = "1.0"

// RootNodeID is the fixed identifier of the node seeded by stage 1.
const RootNodeID = "root"

// NodeType defines the categories of nodes in the reasoning graph.
type NodeType string

const (
	NodeTypeRoot       NodeType = "root"
	NodeTypeDimension  NodeType = "dimension"
	NodeTypeHypothesis NodeType = "hypothesis"
	NodeTypeEvidence   NodeType = "evidence"
	NodeTypeBridge     NodeType = "bridge"
	NodeTypeGap        NodeType = "gap"
	NodeTypeSynthesis  NodeType = "synthesis"
	NodeTypeReflection NodeType = "reflection"
)

// EdgeType defines the nature of the relation between two nodes.
type EdgeType string

const (
	EdgeTypeSupportive           EdgeType = "supportive"
	EdgeTypeContradictory        EdgeType = "contradictory"
	EdgeTypeCorrelative          EdgeType = "correlative"
	EdgeTypeCausalDirect         EdgeType = "causal_direct"
	EdgeTypeCausalCounterfactual EdgeType = "causal_counterfactual"
	EdgeTypeCausalConfounded     EdgeType = "causal_confounded"
	EdgeTypeTemporalPrecedence   EdgeType = "temporal_precedence"
	EdgeTypeTemporalCyclic       EdgeType = "temporal_cyclic"
	EdgeTypePrerequisite         EdgeType = "prerequisite"
)

// Confidence dimension indexes into a ConfidenceVector.
const (
	DimEmpirical = iota
	DimTheoretical
	DimMethodological
	DimConsensus
)

// ConfidenceVector is the 4-dimensional confidence score attached to every
// node: [empirical support, theoretical basis, methodological rigor,
// consensus alignment]. Each entry stays within [0,1].
type ConfidenceVector [4]float64

// Clamped returns a copy with every dimension forced into [0,1].
func (v ConfidenceVector) Clamped() ConfidenceVector {
	for i, d := range v {
		v[i] = math.Max(0, math.Min(1, d))
	}
	return v
}

// Mean returns the scalar aggregate of the vector.
func (v ConfidenceVector) Mean() float64 {
	return (v[0] + v[1] + v[2] + v[3]) / 4
}

// WeightedAverage combines two vectors by the given weights, used when
// merging near-duplicate nodes. Zero total weight degrades to a plain mean.
func WeightedAverage(a, b ConfidenceVector, wa, wb float64) ConfidenceVector {
	total := wa + wb
	if total <= 0 {
		wa, wb = 1, 1
		total = 2
	}
	var out ConfidenceVector
	for i := range out {
		out[i] = (a[i]*wa + b[i]*wb) / total
	}
	return out.Clamped()
}

// QualityTier grades the methodological quality of a piece of evidence.
type QualityTier string

const (
	QualityHigh   QualityTier = "high"
	QualityMedium QualityTier = "medium"
	QualityLow    QualityTier = "low"
)

// SourceRef points at an external document backing a piece of evidence.
type SourceRef struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// NodeMetadata carries the type-specific attributes of a node. Fields are
// optional; which ones are populated depends on the node type (evidence
// nodes carry the study-quality fields, dimension nodes the dimension tag,
// merged nodes the provenance list, and so on).
type NodeMetadata struct {
	QualityTier      QualityTier `json:"quality_tier,omitempty"`
	StatisticalPower float64     `json:"statistical_power,omitempty"`
	SampleSize       int         `json:"sample_size,omitempty"`
	ReplicationCount int         `json:"replication_count,omitempty"`
	PeerReviewed     bool        `json:"peer_reviewed,omitempty"`
	CitationCount    int         `json:"citation_count,omitempty"`
	JournalRank      float64     `json:"journal_rank,omitempty"`
	BiasFlags        []string    `json:"bias_flags,omitempty"`
	Contradicting    bool        `json:"contradicting,omitempty"`
	Sources          []SourceRef `json:"sources,omitempty"`
	ImpactScore      float64     `json:"impact_score,omitempty"`
	Dimension        string      `json:"dimension,omitempty"`
	MergedFrom       []string    `json:"merged_from,omitempty"`
	PruneReason      string      `json:"prune_reason,omitempty"`
	Fallback         bool        `json:"fallback,omitempty"`
}

// Node is the atomic unit of the reasoning graph.
type Node struct {
	ID         string           `json:"id"`
	Label      string           `json:"label"`
	Type       NodeType         `json:"type"`
	Confidence ConfidenceVector `json:"confidence"`
	Stage      int              `json:"stage"`
	Pruned     bool             `json:"pruned,omitempty"`
	Metadata   NodeMetadata     `json:"metadata"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Clone creates a deep copy of a Node so callers never share mutable state
// with the graph's internal storage.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := *n
	out.Metadata.BiasFlags = append([]string(nil), n.Metadata.BiasFlags...)
	out.Metadata.Sources = append([]SourceRef(nil), n.Metadata.Sources...)
	out.Metadata.MergedFrom = append([]string(nil), n.Metadata.MergedFrom...)
	return &out
}

// Edge is a directed, typed, weighted relation between two nodes.
type Edge struct {
	ID         string    `json:"id"`
	SourceID   string    `json:"source_id"`
	TargetID   string    `json:"target_id"`
	Type       EdgeType  `json:"type"`
	Confidence float64   `json:"confidence"`
	Stage      int       `json:"stage"`
	CreatedAt  time.Time `json:"created_at"`
}

// Clone creates a copy of an Edge.
func (e *Edge) Clone() *Edge {
	if e == nil {
		return nil
	}
	out := *e
	return &out
}

// Hyperedge relates more than two nodes, used for multi-factor
// interdependencies that a pairwise edge cannot express.
type Hyperedge struct {
	ID      string   `json:"id"`
	NodeIDs []string `json:"node_ids"`
	Type    EdgeType `json:"type"`
	Weight  float64  `json:"weight"`
	Stage   int      `json:"stage"`
}

// Clone creates a copy of a Hyperedge.
func (h *Hyperedge) Clone() *Hyperedge {
	if h == nil {
		return nil
	}
	out := *h
	out.NodeIDs = append([]string(nil), h.NodeIDs...)
	return &out
}

// GraphMetadata is the aggregate state of the graph, recomputed on every
// mutation so the totals always match the actual collection sizes.
type GraphMetadata struct {
	SchemaVersion   string    `json:"schema_version"`
	CurrentStage    int       `json:"current_stage"`
	TotalNodes      int       `json:"total_nodes"`
	TotalEdges      int       `json:"total_edges"`
	TotalHyperedges int       `json:"total_hyperedges"`
	ActiveNodes     int       `json:"active_nodes"`
	Density         float64   `json:"density"`
	Complexity      float64   `json:"complexity"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// GraphExport is a point-in-time snapshot of the whole graph or a subgraph.
type GraphExport struct {
	Nodes      []*Node       `json:"nodes"`
	Edges      []*Edge       `json:"edges"`
	Hyperedges []*Hyperedge  `json:"hyperedges"`
	Metadata   GraphMetadata `json:"metadata"`
}
