package graph

import "sort"

// Statistics maintenance. Counter fields (counts by type, pattern, severity)
// are cheap to keep eagerly; the storage layer calls CountNode/CountRelationship
// on every mutation. Derived fields (MaxDepth, AvgConnectivity, unused nodes)
// need graph traversal and are recomputed lazily via RecomputeDerived.

// CountNode adjusts the incremental counters for a node being added
// (delta=+1) or removed (delta=-1).
func (s *Statistics) CountNode(n *Node, delta int) {
	s.NodeCount += delta

	if s.NodesByType == nil {
		s.NodesByType = make(map[NodeType]int)
	}
	bumpCounter(s.NodesByType, n.Type, delta)

	if bucket := complexityBucket(n.Metadata.Complexity); bucket != "" {
		if s.ComplexityBuckets == nil {
			s.ComplexityBuckets = make(map[string]int)
		}
		bumpCounter(s.ComplexityBuckets, bucket, delta)
	}

	if n.Semantics != nil && len(n.Semantics.Patterns) > 0 {
		if s.PatternFrequency == nil {
			s.PatternFrequency = make(map[string]int)
		}
		for _, p := range n.Semantics.Patterns {
			bumpCounter(s.PatternFrequency, p.Name, delta)
		}
	}

	if len(n.Errors) > 0 {
		if s.ErrorsBySeverity == nil {
			s.ErrorsBySeverity = make(map[Severity]int)
		}
		if s.ErrorsByType == nil {
			s.ErrorsByType = make(map[string]int)
		}
		for _, e := range n.Errors {
			bumpCounter(s.ErrorsBySeverity, e.Severity, delta)
			bumpCounter(s.ErrorsByType, e.Type, delta)
		}
	}
}

// CountRelationship adjusts the incremental counters for a relationship
// being added (delta=+1) or removed (delta=-1).
func (s *Statistics) CountRelationship(r *Relationship, delta int) {
	s.RelationshipCount += delta
	if s.RelationshipsByType == nil {
		s.RelationshipsByType = make(map[RelationshipType]int)
	}
	bumpCounter(s.RelationshipsByType, r.Type, delta)
}

// complexityBucket classifies a complexity score for the frequency
// distribution. Zero means the generator reported none; such nodes are not
// counted.
func complexityBucket(c float64) string {
	switch {
	case c <= 0:
		return ""
	case c <= 10:
		return "low"
	case c <= 20:
		return "moderate"
	case c <= 40:
		return "high"
	default:
		return "severe"
	}
}

func bumpCounter[K comparable](m map[K]int, key K, delta int) {
	m[key] += delta
	if m[key] <= 0 {
		delete(m, key)
	}
}

// RecomputeDerived refreshes the traversal-derived statistics from the
// current node and relationship maps: containment depth, average
// connectivity, and unused nodes. Cycle data is owned by structural analysis
// and left untouched here.
func (g *Graph) RecomputeDerived() {
	g.Statistics.MaxDepth = g.maxContainmentDepth()

	if len(g.Nodes) > 0 {
		g.Statistics.AvgConnectivity = float64(2*len(g.Relationships)) / float64(len(g.Nodes))
	} else {
		g.Statistics.AvgConnectivity = 0
	}

	g.Statistics.Dependencies.UnusedNodes = g.unusedNodes()
	g.Statistics.Dependencies.OutdatedNodes = g.outdatedNodes()
}

// maxContainmentDepth is the longest chain of contains edges starting from
// nodes that nothing contains. The containment structure a generator emits is
// a forest, so a depth-first walk with memoization suffices; a containment
// cycle (invalid input) is cut rather than recursed into.
func (g *Graph) maxContainmentDepth() int {
	children := make(map[NodeID][]NodeID)
	contained := make(map[NodeID]bool)
	for _, rel := range g.Relationships {
		if rel.Type != RelContains {
			continue
		}
		children[rel.From] = append(children[rel.From], rel.To)
		contained[rel.To] = true
	}

	depths := make(map[NodeID]int)
	onPath := make(map[NodeID]bool)

	var depth func(id NodeID) int
	depth = func(id NodeID) int {
		if d, ok := depths[id]; ok {
			return d
		}
		if onPath[id] {
			return 0
		}
		onPath[id] = true
		max := 0
		for _, child := range children[id] {
			if d := depth(child) + 1; d > max {
				max = d
			}
		}
		onPath[id] = false
		depths[id] = max
		return max
	}

	maxDepth := 0
	for id := range g.Nodes {
		if contained[id] {
			continue
		}
		if d := depth(id); d > maxDepth {
			maxDepth = d
		}
	}
	return maxDepth
}

// unusedNodes returns code-bearing nodes that no dependency edge points at.
// Directories, tests, configs, and assets are structural and never reported.
func (g *Graph) unusedNodes() []NodeID {
	depTypes := make(map[RelationshipType]bool, len(DependencyEdgeTypes))
	for _, t := range DependencyEdgeTypes {
		depTypes[t] = true
	}

	used := make(map[NodeID]bool)
	for _, rel := range g.Relationships {
		if depTypes[rel.Type] {
			used[rel.To] = true
			if rel.Bidirectional {
				used[rel.From] = true
			}
		}
	}

	var unused []NodeID
	for id, node := range g.Nodes {
		switch node.Type {
		case NodeDirectory, NodeTest, NodeConfig, NodeAsset:
			continue
		}
		if !used[id] {
			unused = append(unused, id)
		}
	}
	sort.Slice(unused, func(i, j int) bool { return unused[i] < unused[j] })
	return unused
}

// outdatedNodes returns nodes whose artifact changed after its last analysis.
// Nodes without both timestamps are skipped; a generator that reports neither
// opts out of staleness tracking.
func (g *Graph) outdatedNodes() []NodeID {
	var outdated []NodeID
	for id, node := range g.Nodes {
		if node.LastModified.IsZero() || node.LastAnalyzed.IsZero() {
			continue
		}
		if node.LastModified.After(node.LastAnalyzed) {
			outdated = append(outdated, id)
		}
	}
	sort.Slice(outdated, func(i, j int) bool { return outdated[i] < outdated[j] })
	return outdated
}

// Recompute rebuilds all counter statistics from scratch and refreshes the
// derived metrics. Used after loading a persisted graph, where indices and
// statistics are always rebuilt rather than trusted from disk.
func (g *Graph) Recompute() {
	g.Statistics = Statistics{
		Dependencies: DependencyMetrics{Cycles: g.Statistics.Dependencies.Cycles},
	}
	for _, node := range g.Nodes {
		g.Statistics.CountNode(node, 1)
	}
	for _, rel := range g.Relationships {
		g.Statistics.CountRelationship(rel, 1)
	}
	g.RecomputeDerived()
}
