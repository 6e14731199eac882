// Package confidence computes the 4-dimensional confidence score of a graph
// node from its supporting evidence and incident edges. Compute is a pure
// function: deterministic for a given input set, no side effects.
package confidence

import (
	"math"

	"github.com/SaptaDey/asr-nexus-explorer-sub010/api/schemas"
)

// Result is the full output of one confidence computation.
type Result struct {
	// Vector is the updated 4-dimensional confidence.
	Vector schemas.ConfidenceVector
	// Aggregated is the scalar mean of Vector.
	Aggregated float64
	// Delta is Aggregated minus the prior mean.
	Delta float64
	// QualityScore grades the evidence set itself, 0-1.
	QualityScore float64
	// Uncertainty is the half-width of the confidence interval around
	// Aggregated; it shrinks as 1/sqrt(evidence count) and with quality.
	Uncertainty float64
	// EvidenceCount is the number of evidence nodes considered.
	EvidenceCount int
}

// Evidence signal weights. Contributions are summed per evidence node, then
// scaled by the edge-type weights below and clamped after every step.
const (
	weightTierHigh    = 0.30
	weightTierMedium  = 0.18
	weightTierLow     = 0.08
	weightPower       = 0.15
	weightPeerReview  = 0.10
	weightJournalRank = 0.05
	weightReplication = 0.05
	capReplication    = 0.15
	capSampleSize     = 0.10
	capCitations      = 0.10

	baseUncertainty = 0.35
	minUncertainty  = 0.02
	maxUncertainty  = 0.50
)

// edgeWeights maps an edge type onto per-dimension multipliers. Supportive
// links build empirical and theoretical standing, causal links add
// methodological weight, contradictory links subtract from empirical support
// and consensus.
func edgeWeights(t schemas.EdgeType) [4]float64 {
	switch t {
	case schemas.EdgeTypeSupportive:
		return [4]float64{1.0, 0.5, 0, 0.2}
	case schemas.EdgeTypeCausalDirect, schemas.EdgeTypeCausalCounterfactual:
		return [4]float64{1.0, 0, 0.7, 0}
	case schemas.EdgeTypeCausalConfounded:
		return [4]float64{0.5, 0, 0.35, 0}
	case schemas.EdgeTypeContradictory:
		return [4]float64{-1.0, 0, 0, -0.5}
	case schemas.EdgeTypeCorrelative:
		return [4]float64{0.4, 0, 0, 0}
	case schemas.EdgeTypeTemporalPrecedence, schemas.EdgeTypeTemporalCyclic, schemas.EdgeTypePrerequisite:
		return [4]float64{0, 0.3, 0, 0}
	default:
		return [4]float64{0.2, 0, 0, 0}
	}
}

// Compute derives an updated confidence for node given its linked evidence
// and the edges connecting them. A nil node yields a zero Result.
func Compute(node *schemas.Node, evidence []*schemas.Node, edges []*schemas.Edge) Result {
	if node == nil {
		return Result{}
	}

	prior := node.Confidence.Clamped()
	vector := prior

	byEvidence := make(map[string]*schemas.Node, len(evidence))
	for _, ev := range evidence {
		if ev != nil {
			byEvidence[ev.ID] = ev
		}
	}

	for _, edge := range edges {
		if edge == nil {
			continue
		}
		ev := byEvidence[edge.SourceID]
		if ev == nil {
			ev = byEvidence[edge.TargetID]
		}
		if ev == nil {
			continue
		}
		signal := evidenceSignal(&ev.Metadata)
		weights := edgeWeights(edge.Type)
		scale := edge.Confidence
		if scale <= 0 {
			scale = 0.5
		}
		for dim := range vector {
			vector[dim] += signal * weights[dim] * scale
		}
		// Clamp after every contribution, not just at the end, so a burst
		// of strong evidence cannot overflow and then mask contradictions.
		vector = vector.Clamped()
	}

	quality := qualityScore(evidence)
	aggregated := vector.Mean()
	return Result{
		Vector:        vector,
		Aggregated:    aggregated,
		Delta:         aggregated - prior.Mean(),
		QualityScore:  quality,
		Uncertainty:   uncertainty(len(byEvidence), quality),
		EvidenceCount: len(byEvidence),
	}
}

// evidenceSignal converts one evidence node's metadata into a scalar
// contribution. Contradicting or biased evidence contributes negatively.
func evidenceSignal(m *schemas.NodeMetadata) float64 {
	signal := 0.0
	switch m.QualityTier {
	case schemas.QualityHigh:
		signal += weightTierHigh
	case schemas.QualityMedium:
		signal += weightTierMedium
	default:
		signal += weightTierLow
	}
	signal += weightPower * clamp01(m.StatisticalPower)
	if m.SampleSize > 0 {
		signal += math.Min(capSampleSize, math.Log10(float64(m.SampleSize))/40)
	}
	signal += math.Min(capReplication, float64(m.ReplicationCount)*weightReplication)
	if m.PeerReviewed {
		signal += weightPeerReview
	}
	if m.CitationCount > 0 {
		signal += math.Min(capCitations, math.Log10(float64(m.CitationCount)+1)/30)
	}
	signal += weightJournalRank * clamp01(m.JournalRank)

	if m.Contradicting {
		signal = -signal
	}
	// Each detected bias halves (and eventually inverts) the contribution.
	if n := len(m.BiasFlags); n > 0 {
		signal *= math.Max(-0.5, 1-0.5*float64(n))
	}
	return signal
}

// qualityScore grades the evidence set on the same metadata used for the
// per-dimension signals, normalized to 0-1.
func qualityScore(evidence []*schemas.Node) float64 {
	if len(evidence) == 0 {
		return 0
	}
	total := 0.0
	count := 0
	for _, ev := range evidence {
		if ev == nil {
			continue
		}
		m := ev.Metadata
		score := 0.0
		switch m.QualityTier {
		case schemas.QualityHigh:
			score += 0.4
		case schemas.QualityMedium:
			score += 0.25
		default:
			score += 0.1
		}
		score += 0.2 * clamp01(m.StatisticalPower)
		if m.PeerReviewed {
			score += 0.15
		}
		score += math.Min(0.15, float64(m.ReplicationCount)*0.05)
		score += 0.1 * clamp01(m.JournalRank)
		if len(m.BiasFlags) > 0 {
			score *= 0.6
		}
		total += clamp01(score)
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// uncertainty shrinks with evidence count and, further, with quality.
func uncertainty(evidenceCount int, quality float64) float64 {
	if evidenceCount == 0 {
		return maxUncertainty
	}
	half := baseUncertainty / math.Sqrt(float64(evidenceCount))
	half *= 1 - 0.5*quality
	return math.Max(minUncertainty, math.Min(maxUncertainty, half))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
