package schemas

import "time"

// Stage numbering bounds for the pipeline.
const (
	MinStage = 1
	MaxStage = 9
)

// StageNames maps stage numbers to their human-readable names.
var StageNames = map[int]string{
	1: "Initialization",
	2: "Decomposition",
	3: "Hypothesis Planning",
	4: "Evidence Integration",
	5: "Pruning and Merging",
	6: "Subgraph Extraction",
	7: "Composition",
	8: "Reflection",
	9: "Final Analysis",
}

// StageStatus records how a stage execution ended.
type StageStatus string

const (
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
)

// StageMetadata captures execution statistics for one stage run.
type StageMetadata struct {
	DurationMS int64          `json:"duration_ms"`
	TokensUsed int            `json:"tokens_used"`
	Confidence float64        `json:"confidence"`
	Counts     map[string]int `json:"counts,omitempty"`
	Notices    []string       `json:"notices,omitempty"`
	Fallback   bool           `json:"fallback,omitempty"`
}

// StageResult is the complete outcome of one ExecuteStage call.
type StageResult struct {
	Stage        int           `json:"stage"`
	Name         string        `json:"name"`
	Content      string        `json:"content"`
	NodeIDs      []string      `json:"node_ids"`
	EdgeIDs      []string      `json:"edge_ids"`
	HyperedgeIDs []string      `json:"hyperedge_ids,omitempty"`
	Status       StageStatus   `json:"status"`
	Timestamp    time.Time     `json:"timestamp"`
	Metadata     StageMetadata `json:"metadata"`
}

// ResearchContext accumulates what the pipeline has learned about the
// question so far. It only ever grows; stages append, never remove.
type ResearchContext struct {
	Field         string   `json:"field"`
	Topic         string   `json:"topic"`
	Objectives    []string `json:"objectives"`
	Hypotheses    []string `json:"hypotheses"`
	Constraints   []string `json:"constraints"`
	BiasFlags     []string `json:"bias_flags"`
	KnowledgeGaps []string `json:"knowledge_gaps"`
}

// Clone returns an independent copy of the context.
func (rc *ResearchContext) Clone() *ResearchContext {
	if rc == nil {
		return nil
	}
	out := *rc
	out.Objectives = append([]string(nil), rc.Objectives...)
	out.Hypotheses = append([]string(nil), rc.Hypotheses...)
	out.Constraints = append([]string(nil), rc.Constraints...)
	out.BiasFlags = append([]string(nil), rc.BiasFlags...)
	out.KnowledgeGaps = append([]string(nil), rc.KnowledgeGaps...)
	return &out
}

// Merge folds another context into this one, deduplicating list entries so
// repeated stage executions do not bloat the accumulated state.
func (rc *ResearchContext) Merge(other *ResearchContext) {
	if other == nil {
		return
	}
	if other.Field != "" {
		rc.Field = other.Field
	}
	if other.Topic != "" {
		rc.Topic = other.Topic
	}
	rc.Objectives = appendUnique(rc.Objectives, other.Objectives...)
	rc.Hypotheses = appendUnique(rc.Hypotheses, other.Hypotheses...)
	rc.Constraints = appendUnique(rc.Constraints, other.Constraints...)
	rc.BiasFlags = appendUnique(rc.BiasFlags, other.BiasFlags...)
	rc.KnowledgeGaps = appendUnique(rc.KnowledgeGaps, other.KnowledgeGaps...)
}

func appendUnique(dst []string, items ...string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, s := range dst {
		seen[s] = struct{}{}
	}
	for _, s := range items {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		dst = append(dst, s)
	}
	return dst
}
