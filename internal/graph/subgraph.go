package graph

import (
	"sort"

	"github.com/SaptaDey/asr-nexus-explorer-sub010/api/schemas"
)

// Pathway is one root->hypothesis->evidence chain that survived the
// confidence threshold.
type Pathway struct {
	HypothesisID string
	EvidenceIDs  []string
	Confidence   float64
}

// ExtractSubgraph selects the root->hypothesis->evidence chains whose
// hypothesis mean confidence clears the threshold, together with every edge
// and hyperedge fully contained in the selection. Used by stage 6 to bound
// the context handed to composition.
func (g *Graph) ExtractSubgraph(threshold float64) (schemas.GraphExport, []Pathway) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	included := make(Set)
	pathways := make([]Pathway, 0)

	// Walk down from the root through dimensions to hypotheses.
	for id := range g.byType[schemas.NodeTypeRoot] {
		if node := g.nodes[id]; node != nil && !node.Pruned {
			included.Add(id)
		}
	}
	for id := range g.byType[schemas.NodeTypeDimension] {
		if node := g.nodes[id]; node != nil && !node.Pruned {
			included.Add(id)
		}
	}

	hypIDs := make([]string, 0, g.byType[schemas.NodeTypeHypothesis].Size())
	for id := range g.byType[schemas.NodeTypeHypothesis] {
		hypIDs = append(hypIDs, id)
	}
	sort.Strings(hypIDs)

	for _, hypID := range hypIDs {
		hyp := g.nodes[hypID]
		if hyp == nil || hyp.Pruned || hyp.Confidence.Mean() < threshold {
			continue
		}
		pathway := Pathway{HypothesisID: hypID, Confidence: hyp.Confidence.Mean()}
		for edgeID := range g.inbound[hypID] {
			src := g.nodes[g.edges[edgeID].SourceID]
			if src != nil && !src.Pruned && src.Type == schemas.NodeTypeEvidence {
				pathway.EvidenceIDs = append(pathway.EvidenceIDs, src.ID)
			}
		}
		for edgeID := range g.outbound[hypID] {
			dst := g.nodes[g.edges[edgeID].TargetID]
			if dst != nil && !dst.Pruned && dst.Type == schemas.NodeTypeEvidence {
				pathway.EvidenceIDs = append(pathway.EvidenceIDs, dst.ID)
			}
		}
		if len(pathway.EvidenceIDs) == 0 {
			continue
		}
		sort.Strings(pathway.EvidenceIDs)
		included.Add(hypID)
		for _, evID := range pathway.EvidenceIDs {
			included.Add(evID)
		}
		pathways = append(pathways, pathway)
	}

	export := schemas.GraphExport{
		Nodes:      make([]*schemas.Node, 0, included.Size()),
		Edges:      make([]*schemas.Edge, 0),
		Hyperedges: make([]*schemas.Hyperedge, 0),
		Metadata:   g.meta,
	}
	for id := range included {
		export.Nodes = append(export.Nodes, g.nodes[id].Clone())
	}
	for _, edge := range g.edges {
		if included.Contains(edge.SourceID) && included.Contains(edge.TargetID) {
			export.Edges = append(export.Edges, edge.Clone())
		}
	}
	for _, he := range g.hyperedges {
		all := true
		for _, id := range he.NodeIDs {
			if !included.Contains(id) {
				all = false
				break
			}
		}
		if all {
			export.Hyperedges = append(export.Hyperedges, he.Clone())
		}
	}
	sort.Slice(export.Nodes, func(i, j int) bool { return export.Nodes[i].ID < export.Nodes[j].ID })
	sort.Slice(export.Edges, func(i, j int) bool { return export.Edges[i].ID < export.Edges[j].ID })
	return export, pathways
}
