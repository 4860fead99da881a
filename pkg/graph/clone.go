package graph

// Clone returns a deep copy of the node. The store hands out clones so
// callers can never mutate stored state through a returned pointer.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}

	copied := *n

	if n.Tags != nil {
		copied.Tags = make([]string, len(n.Tags))
		copy(copied.Tags, n.Tags)
	}
	copied.Metadata = n.Metadata.clone()
	copied.Semantics = n.Semantics.clone()
	if n.Errors != nil {
		copied.Errors = make([]ErrorState, len(n.Errors))
		copy(copied.Errors, n.Errors)
	}

	return &copied
}

func (m Metadata) clone() Metadata {
	copied := m
	copied.Exports = cloneStrings(m.Exports)
	copied.Imports = cloneStrings(m.Imports)
	if m.Extra != nil {
		copied.Extra = make(map[string]string, len(m.Extra))
		for k, v := range m.Extra {
			copied.Extra[k] = v
		}
	}
	return copied
}

func (s *SemanticInfo) clone() *SemanticInfo {
	if s == nil {
		return nil
	}

	copied := *s
	if s.Operations != nil {
		copied.Operations = make([]Operation, len(s.Operations))
		for i, op := range s.Operations {
			copied.Operations[i] = op
			copied.Operations[i].Inputs = cloneStrings(op.Inputs)
			copied.Operations[i].Outputs = cloneStrings(op.Outputs)
			copied.Operations[i].SideEffects = cloneStrings(op.SideEffects)
		}
	}
	copied.DataFlow = DataFlow{
		Inputs:          cloneStrings(s.DataFlow.Inputs),
		Outputs:         cloneStrings(s.DataFlow.Outputs),
		Transformations: cloneStrings(s.DataFlow.Transformations),
		Persistence:     cloneStrings(s.DataFlow.Persistence),
		Streams:         cloneStrings(s.DataFlow.Streams),
	}
	if s.Patterns != nil {
		copied.Patterns = make([]Pattern, len(s.Patterns))
		copy(copied.Patterns, s.Patterns)
	}

	return &copied
}

// Clone returns a deep copy of the relationship.
func (r *Relationship) Clone() *Relationship {
	if r == nil {
		return nil
	}

	copied := *r
	copied.Metadata.Context = cloneStrings(r.Metadata.Context)
	return &copied
}

// Clone returns a deep copy of the whole graph, including statistics.
// Used for snapshot/restore and for read isolation of long-running analysis.
func (g *Graph) Clone() *Graph {
	if g == nil {
		return nil
	}

	copied := *g
	copied.Nodes = make(map[NodeID]*Node, len(g.Nodes))
	for id, node := range g.Nodes {
		copied.Nodes[id] = node.Clone()
	}
	copied.Relationships = make(map[RelationshipID]*Relationship, len(g.Relationships))
	for id, rel := range g.Relationships {
		copied.Relationships[id] = rel.Clone()
	}
	copied.Metadata.EntryPoints = cloneStrings(g.Metadata.EntryPoints)
	copied.Statistics = g.Statistics.Clone()

	return &copied
}

// Clone returns a detached copy of the statistics, safe to retain across
// further mutations.
func (s Statistics) Clone() Statistics {
	copied := s
	if s.NodesByType != nil {
		copied.NodesByType = make(map[NodeType]int, len(s.NodesByType))
		for k, v := range s.NodesByType {
			copied.NodesByType[k] = v
		}
	}
	if s.RelationshipsByType != nil {
		copied.RelationshipsByType = make(map[RelationshipType]int, len(s.RelationshipsByType))
		for k, v := range s.RelationshipsByType {
			copied.RelationshipsByType[k] = v
		}
	}
	if s.ComplexityBuckets != nil {
		copied.ComplexityBuckets = make(map[string]int, len(s.ComplexityBuckets))
		for k, v := range s.ComplexityBuckets {
			copied.ComplexityBuckets[k] = v
		}
	}
	if s.PatternFrequency != nil {
		copied.PatternFrequency = make(map[string]int, len(s.PatternFrequency))
		for k, v := range s.PatternFrequency {
			copied.PatternFrequency[k] = v
		}
	}
	if s.ErrorsBySeverity != nil {
		copied.ErrorsBySeverity = make(map[Severity]int, len(s.ErrorsBySeverity))
		for k, v := range s.ErrorsBySeverity {
			copied.ErrorsBySeverity[k] = v
		}
	}
	if s.ErrorsByType != nil {
		copied.ErrorsByType = make(map[string]int, len(s.ErrorsByType))
		for k, v := range s.ErrorsByType {
			copied.ErrorsByType[k] = v
		}
	}
	if s.Dependencies.Cycles != nil {
		copied.Dependencies.Cycles = make([][]NodeID, len(s.Dependencies.Cycles))
		for i, cycle := range s.Dependencies.Cycles {
			copied.Dependencies.Cycles[i] = make([]NodeID, len(cycle))
			copy(copied.Dependencies.Cycles[i], cycle)
		}
	}
	if s.Dependencies.UnusedNodes != nil {
		copied.Dependencies.UnusedNodes = make([]NodeID, len(s.Dependencies.UnusedNodes))
		copy(copied.Dependencies.UnusedNodes, s.Dependencies.UnusedNodes)
	}
	if s.Dependencies.OutdatedNodes != nil {
		copied.Dependencies.OutdatedNodes = make([]NodeID, len(s.Dependencies.OutdatedNodes))
		copy(copied.Dependencies.OutdatedNodes, s.Dependencies.OutdatedNodes)
	}
	return copied
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	copied := make([]string, len(s))
	copy(copied, s)
	return copied
}
