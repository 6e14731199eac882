// Package graph holds the in-memory research reasoning graph mutated by
// every pipeline stage. All reads return clones so callers never share
// mutable state with the graph's internal storage.
package graph

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SaptaDey/asr-nexus-explorer-sub010/api/schemas"
)

// Set is a simple way to store unique ids.
type Set map[string]struct{}

func (s Set) Add(item string)           { s[item] = struct{}{} }
func (s Set) Remove(item string)        { delete(s, item) }
func (s Set) Contains(item string) bool { _, ok := s[item]; return ok }
func (s Set) Size() int                 { return len(s) }

// Graph is the thread-safe in-memory reasoning graph.
type Graph struct {
	mu         sync.RWMutex
	nodes      map[string]*schemas.Node
	edges      map[string]*schemas.Edge
	hyperedges map[string]*schemas.Hyperedge
	outbound   map[string]Set // node id -> edge ids
	inbound    map[string]Set
	byType     map[schemas.NodeType]Set
	meta       schemas.GraphMetadata
	logger     *zap.Logger
}

// New initializes an empty Graph.
func New(logger *zap.Logger) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Graph{
		nodes:      make(map[string]*schemas.Node),
		edges:      make(map[string]*schemas.Edge),
		hyperedges: make(map[string]*schemas.Hyperedge),
		outbound:   make(map[string]Set),
		inbound:    make(map[string]Set),
		byType:     make(map[schemas.NodeType]Set),
		meta: schemas.GraphMetadata{
			SchemaVersion: schemas.SchemaVersion,
		},
		logger: logger.Named("graph"),
	}
	return g
}

// -- Write operations --

// AddNode adds or updates a node (upsert). The confidence vector is clamped
// on the way in so the [0,1] invariant holds no matter what stage logic
// produced.
func (g *Graph) AddNode(input schemas.Node) (*schemas.Node, error) {
	if input.ID == "" {
		return nil, fmt.Errorf("node ID cannot be empty")
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	node, err := g.addNodeLocked(input)
	if err != nil {
		return nil, err
	}
	g.refreshMetadataLocked()
	return node.Clone(), nil
}

func (g *Graph) addNodeLocked(input schemas.Node) (*schemas.Node, error) {
	now := time.Now().UTC()
	input.Confidence = input.Confidence.Clamped()

	if existing, ok := g.nodes[input.ID]; ok {
		if input.Type != "" && existing.Type != input.Type {
			return nil, fmt.Errorf("cannot change type of existing node %q from %q to %q", input.ID, existing.Type, input.Type)
		}
		existing.Label = input.Label
		existing.Confidence = input.Confidence
		existing.Metadata = input.Metadata
		existing.UpdatedAt = now
		g.logger.Debug("Updated node", zap.String("id", input.ID))
		return existing, nil
	}

	node := input.Clone()
	node.CreatedAt = now
	node.UpdatedAt = now
	g.nodes[node.ID] = node
	g.outbound[node.ID] = make(Set)
	g.inbound[node.ID] = make(Set)
	if _, ok := g.byType[node.Type]; !ok {
		g.byType[node.Type] = make(Set)
	}
	g.byType[node.Type].Add(node.ID)
	g.logger.Debug("Added node", zap.String("id", node.ID), zap.String("type", string(node.Type)))
	return node, nil
}

// AddEdge adds an edge between two existing nodes. A dangling endpoint is a
// GraphConsistencyError: stage logic must create nodes before linking them.
func (g *Graph) AddEdge(input schemas.Edge) (*schemas.Edge, error) {
	if input.ID == "" {
		input.ID = fmt.Sprintf("%s|%s|%s", input.SourceID, input.Type, input.TargetID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	edge, err := g.addEdgeLocked(input)
	if err != nil {
		return nil, err
	}
	g.refreshMetadataLocked()
	return edge.Clone(), nil
}

func (g *Graph) addEdgeLocked(input schemas.Edge) (*schemas.Edge, error) {
	if _, ok := g.nodes[input.SourceID]; !ok {
		return nil, &schemas.GraphConsistencyError{Reason: fmt.Sprintf("edge %s references missing source node %s", input.ID, input.SourceID)}
	}
	if _, ok := g.nodes[input.TargetID]; !ok {
		return nil, &schemas.GraphConsistencyError{Reason: fmt.Sprintf("edge %s references missing target node %s", input.ID, input.TargetID)}
	}
	input.Confidence = math.Max(0, math.Min(1, input.Confidence))
	input.CreatedAt = time.Now().UTC()

	edge := input.Clone()
	g.edges[edge.ID] = edge
	g.outbound[edge.SourceID].Add(edge.ID)
	g.inbound[edge.TargetID].Add(edge.ID)
	g.logger.Debug("Added edge",
		zap.String("source", edge.SourceID),
		zap.String("type", string(edge.Type)),
		zap.String("target", edge.TargetID))
	return edge, nil
}

// AddHyperedge links three or more nodes through a single typed relation.
func (g *Graph) AddHyperedge(input schemas.Hyperedge) (*schemas.Hyperedge, error) {
	if len(input.NodeIDs) < 2 {
		return nil, &schemas.GraphConsistencyError{Reason: fmt.Sprintf("hyperedge %s references %d nodes, need at least 2", input.ID, len(input.NodeIDs))}
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range input.NodeIDs {
		if _, ok := g.nodes[id]; !ok {
			return nil, &schemas.GraphConsistencyError{Reason: fmt.Sprintf("hyperedge %s references missing node %s", input.ID, id)}
		}
	}
	input.Weight = math.Max(0, math.Min(1, input.Weight))
	he := input.Clone()
	g.hyperedges[he.ID] = he
	g.refreshMetadataLocked()
	return he.Clone(), nil
}

// UpdateConfidence replaces a node's confidence vector, clamped.
func (g *Graph) UpdateConfidence(id string, v schemas.ConfidenceVector) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[id]
	if !ok {
		return schemas.ErrNotFound
	}
	node.Confidence = v.Clamped()
	node.UpdatedAt = time.Now().UTC()
	return nil
}

// PruneNode marks a node inactive rather than deleting it, preserving
// provenance for later reflection stages.
func (g *Graph) PruneNode(id, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[id]
	if !ok {
		return schemas.ErrNotFound
	}
	node.Pruned = true
	node.Metadata.PruneReason = reason
	node.UpdatedAt = time.Now().UTC()
	g.refreshMetadataLocked()
	g.logger.Debug("Pruned node", zap.String("id", id), zap.String("reason", reason))
	return nil
}

// MergeNodes folds dropID into keepID: the kept node gets a quality-weighted
// average confidence vector, records its provenance, and inherits the
// dropped node's edges. The dropped node is pruned, not deleted.
func (g *Graph) MergeNodes(keepID, dropID string) error {
	if keepID == dropID {
		return fmt.Errorf("cannot merge node %q with itself", keepID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	keep, ok := g.nodes[keepID]
	if !ok {
		return schemas.ErrNotFound
	}
	drop, ok := g.nodes[dropID]
	if !ok {
		return schemas.ErrNotFound
	}

	wKeep := qualityWeight(keep)
	wDrop := qualityWeight(drop)
	keep.Confidence = schemas.WeightedAverage(keep.Confidence, drop.Confidence, wKeep, wDrop)
	keep.Metadata.MergedFrom = append(keep.Metadata.MergedFrom, dropID)
	keep.UpdatedAt = time.Now().UTC()

	// Reroute the dropped node's edges onto the kept node, skipping edges
	// that would become self-loops.
	for edgeID := range g.outbound[dropID] {
		edge := g.edges[edgeID]
		g.outbound[dropID].Remove(edgeID)
		if edge.TargetID == keepID {
			g.inbound[keepID].Remove(edgeID)
			delete(g.edges, edgeID)
			continue
		}
		edge.SourceID = keepID
		g.outbound[keepID].Add(edgeID)
	}
	for edgeID := range g.inbound[dropID] {
		edge := g.edges[edgeID]
		g.inbound[dropID].Remove(edgeID)
		if edge.SourceID == keepID {
			g.outbound[keepID].Remove(edgeID)
			delete(g.edges, edgeID)
			continue
		}
		edge.TargetID = keepID
		g.inbound[keepID].Add(edgeID)
	}
	for _, he := range g.hyperedges {
		for i, id := range he.NodeIDs {
			if id == dropID {
				he.NodeIDs[i] = keepID
			}
		}
	}

	drop.Pruned = true
	drop.Metadata.PruneReason = "merged into " + keepID
	drop.UpdatedAt = keep.UpdatedAt
	g.refreshMetadataLocked()
	g.logger.Debug("Merged nodes", zap.String("keep", keepID), zap.String("drop", dropID))
	return nil
}

// qualityWeight derives the merge weight from evidence-quality metadata so
// better-supported nodes dominate the averaged vector.
func qualityWeight(n *schemas.Node) float64 {
	w := 1.0
	switch n.Metadata.QualityTier {
	case schemas.QualityHigh:
		w += 1.0
	case schemas.QualityMedium:
		w += 0.5
	}
	if n.Metadata.PeerReviewed {
		w += 0.25
	}
	w += math.Min(0.5, float64(n.Metadata.ReplicationCount)*0.1)
	return w
}

// RemoveStageArtifacts deletes every node, edge and hyperedge created by the
// given stage, supporting stage re-execution. Edges and hyperedges from other
// stages are kept even when an endpoint was just removed: stage node ids are
// deterministic, so the re-run recreates the endpoint under the same id and
// the cross-stage link stays valid. ReconcileReferences must run after the
// rebuild to drop whatever was genuinely orphaned.
func (g *Graph) RemoveStageArtifacts(stage int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := make(Set)
	for id, node := range g.nodes {
		if node.Stage == stage {
			removed.Add(id)
		}
	}
	for id := range removed {
		node := g.nodes[id]
		g.byType[node.Type].Remove(id)
		delete(g.nodes, id)
		delete(g.outbound, id)
		delete(g.inbound, id)
	}
	for id, edge := range g.edges {
		if edge.Stage == stage {
			if out, ok := g.outbound[edge.SourceID]; ok {
				out.Remove(id)
			}
			if in, ok := g.inbound[edge.TargetID]; ok {
				in.Remove(id)
			}
			delete(g.edges, id)
		}
	}
	for id, he := range g.hyperedges {
		if he.Stage == stage {
			delete(g.hyperedges, id)
		}
	}
	g.refreshMetadataLocked()
	g.logger.Debug("Removed stage artifacts", zap.Int("stage", stage), zap.Int("nodes", removed.Size()))
}

// ReconcileReferences restores edge indexes for endpoints recreated during a
// stage re-run and drops edges and hyperedges whose endpoints no longer
// exist. It is the second half of the re-execution contract established by
// RemoveStageArtifacts.
func (g *Graph) ReconcileReferences() {
	g.mu.Lock()
	defer g.mu.Unlock()

	droppedEdges, droppedHyper := 0, 0
	for id, edge := range g.edges {
		_, srcOK := g.nodes[edge.SourceID]
		_, dstOK := g.nodes[edge.TargetID]
		if !srcOK || !dstOK {
			if out, ok := g.outbound[edge.SourceID]; ok {
				out.Remove(id)
			}
			if in, ok := g.inbound[edge.TargetID]; ok {
				in.Remove(id)
			}
			delete(g.edges, id)
			droppedEdges++
			continue
		}
		// Recreated endpoints start with empty index sets; re-register the
		// surviving edge on both sides.
		g.outbound[edge.SourceID].Add(id)
		g.inbound[edge.TargetID].Add(id)
	}
	for id, he := range g.hyperedges {
		for _, nodeID := range he.NodeIDs {
			if _, ok := g.nodes[nodeID]; !ok {
				delete(g.hyperedges, id)
				droppedHyper++
				break
			}
		}
	}
	g.refreshMetadataLocked()
	if droppedEdges > 0 || droppedHyper > 0 {
		g.logger.Debug("Dropped orphaned references",
			zap.Int("edges", droppedEdges),
			zap.Int("hyperedges", droppedHyper))
	}
}

// SetCurrentStage records pipeline progress in the graph metadata. The
// current stage only moves forward; re-running an earlier stage does not
// rewind it.
func (g *Graph) SetCurrentStage(stage int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if stage > g.meta.CurrentStage {
		g.meta.CurrentStage = stage
	}
}

// -- Read operations --

// Node retrieves a node by id.
func (g *Graph) Node(id string) (*schemas.Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.nodes[id]
	if !ok {
		return nil, schemas.ErrNotFound
	}
	return node.Clone(), nil
}

// NodesByType returns active (unpruned) nodes of the given type, sorted by
// id for deterministic iteration.
func (g *Graph) NodesByType(t schemas.NodeType) []*schemas.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*schemas.Node, 0)
	for id := range g.byType[t] {
		if node := g.nodes[id]; node != nil && !node.Pruned {
			out = append(out, node.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NodesByStage returns every node created by the given stage, pruned or not.
func (g *Graph) NodesByStage(stage int) []*schemas.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*schemas.Node, 0)
	for _, node := range g.nodes {
		if node.Stage == stage {
			out = append(out, node.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SupportingEvidence returns the active evidence nodes linked to the given
// node together with the incident edges, the inputs the confidence
// calculator needs.
func (g *Graph) SupportingEvidence(id string) ([]*schemas.Node, []*schemas.Edge) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	evidence := make([]*schemas.Node, 0)
	edges := make([]*schemas.Edge, 0)
	seen := make(Set)

	collect := func(edgeID, otherID string) {
		other, ok := g.nodes[otherID]
		if !ok || other.Pruned || other.Type != schemas.NodeTypeEvidence {
			return
		}
		edges = append(edges, g.edges[edgeID].Clone())
		if !seen.Contains(otherID) {
			seen.Add(otherID)
			evidence = append(evidence, other.Clone())
		}
	}
	for edgeID := range g.inbound[id] {
		collect(edgeID, g.edges[edgeID].SourceID)
	}
	for edgeID := range g.outbound[id] {
		collect(edgeID, g.edges[edgeID].TargetID)
	}
	sort.Slice(evidence, func(i, j int) bool { return evidence[i].ID < evidence[j].ID })
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return evidence, edges
}

// ActiveNodeCount reports how many nodes are not pruned.
func (g *Graph) ActiveNodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.activeCountLocked()
}

func (g *Graph) activeCountLocked() int {
	count := 0
	for _, node := range g.nodes {
		if !node.Pruned {
			count++
		}
	}
	return count
}

// Metadata returns the current aggregate graph state.
func (g *Graph) Metadata() schemas.GraphMetadata {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.meta
}

// Export dumps the entire graph into a serializable snapshot.
func (g *Graph) Export() schemas.GraphExport {
	g.mu.RLock()
	defer g.mu.RUnlock()

	export := schemas.GraphExport{
		Nodes:      make([]*schemas.Node, 0, len(g.nodes)),
		Edges:      make([]*schemas.Edge, 0, len(g.edges)),
		Hyperedges: make([]*schemas.Hyperedge, 0, len(g.hyperedges)),
		Metadata:   g.meta,
	}
	for _, node := range g.nodes {
		export.Nodes = append(export.Nodes, node.Clone())
	}
	for _, edge := range g.edges {
		export.Edges = append(export.Edges, edge.Clone())
	}
	for _, he := range g.hyperedges {
		export.Hyperedges = append(export.Hyperedges, he.Clone())
	}
	sort.Slice(export.Nodes, func(i, j int) bool { return export.Nodes[i].ID < export.Nodes[j].ID })
	sort.Slice(export.Edges, func(i, j int) bool { return export.Edges[i].ID < export.Edges[j].ID })
	sort.Slice(export.Hyperedges, func(i, j int) bool { return export.Hyperedges[i].ID < export.Hyperedges[j].ID })
	return export
}

// -- Metadata maintenance (called with the write lock held) --

func (g *Graph) refreshMetadataLocked() {
	g.meta.TotalNodes = len(g.nodes)
	g.meta.TotalEdges = len(g.edges)
	g.meta.TotalHyperedges = len(g.hyperedges)
	g.meta.ActiveNodes = g.activeCountLocked()
	g.meta.Density = density(len(g.nodes), len(g.edges))
	g.meta.Complexity = g.complexityLocked()
	g.meta.UpdatedAt = time.Now().UTC()
}

// density is edge count over the maximum possible directed edge count.
func density(nodes, edges int) float64 {
	if nodes < 2 {
		return 0
	}
	return float64(edges) / float64(nodes*(nodes-1))
}

// complexityLocked blends graph size, hyperedge share and node-type
// diversity into a single 0-1 score used by stage 6 reporting.
func (g *Graph) complexityLocked() float64 {
	n := len(g.nodes)
	if n == 0 {
		return 0
	}
	size := math.Min(1, math.Log10(float64(n)+1)/2)
	hyperShare := 0.0
	if len(g.edges) > 0 {
		hyperShare = math.Min(1, float64(len(g.hyperedges))/float64(len(g.edges)))
	}
	types := 0
	for _, ids := range g.byType {
		if ids.Size() > 0 {
			types++
		}
	}
	diversity := float64(types) / 8
	return 0.5*size + 0.2*hyperShare + 0.3*diversity
}

// labelKey normalizes a label for duplicate detection.
func labelKey(label string) []string {
	fields := strings.Fields(strings.ToLower(label))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?()[]\"'")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// LabelSimilarity is the token-overlap ratio between two labels, used by
// stage 5 to find near-duplicate hypotheses.
func LabelSimilarity(a, b string) float64 {
	ta, tb := labelKey(a), labelKey(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(Set)
	for _, t := range ta {
		set.Add(t)
	}
	overlap := 0
	for _, t := range tb {
		if set.Contains(t) {
			overlap++
		}
	}
	return float64(overlap) / math.Max(float64(len(ta)), float64(len(tb)))
}
