package query

import (
	"context"
	"sort"
	"time"

	"github.com/kgraphdb/kgraph/pkg/graph"
)

// Analyze computes whole-graph structure over a snapshot: connected-component
// clusters across all relationship types, and dependency cycles over the
// depends_on/imports/calls subgraph. Detected cycles are written back to the
// store's dependency metrics so Statistics reflects the latest analysis.
//
// The snapshot keeps the pass off the store's lock; a graph mutated while
// analysis runs simply gets slightly stale cycle data until the next pass.
func (e *Engine) Analyze(ctx context.Context, graphID string) (*Report, error) {
	start := time.Now()

	store, err := e.reg.Get(graphID)
	if err != nil {
		return nil, err
	}
	snap := store.Snapshot()

	clusters, err := findClusters(ctx, snap)
	if err != nil {
		return nil, err
	}
	cycles, err := findCycles(ctx, snap)
	if err != nil {
		return nil, err
	}

	store.SetCycles(cycles)

	report := &Report{Clusters: clusters, Cycles: cycles, Took: time.Since(start)}
	e.logger.Info("graph analyzed",
		"graph", graphID,
		"clusters", len(clusters),
		"cycles", len(cycles),
		"took", report.Took)
	return report, nil
}

// findClusters groups nodes into connected components using union-find with
// path compression, treating every relationship as undirected.
func findClusters(ctx context.Context, g *graph.Graph) ([][]graph.NodeID, error) {
	parent := make(map[graph.NodeID]graph.NodeID, len(g.Nodes))
	for id := range g.Nodes {
		parent[id] = id
	}

	var find func(id graph.NodeID) graph.NodeID
	find = func(id graph.NodeID) graph.NodeID {
		if parent[id] != id {
			parent[id] = find(parent[id])
		}
		return parent[id]
	}

	for _, rel := range g.Relationships {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		parent[find(rel.From)] = find(rel.To)
	}

	groups := make(map[graph.NodeID][]graph.NodeID)
	for id := range g.Nodes {
		root := find(id)
		groups[root] = append(groups[root], id)
	}

	clusters := make([][]graph.NodeID, 0, len(groups))
	for _, members := range groups {
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		clusters = append(clusters, members)
	}
	// Largest first; equal sizes order by first member for stable output.
	sort.Slice(clusters, func(i, j int) bool {
		if len(clusters[i]) != len(clusters[j]) {
			return len(clusters[i]) > len(clusters[j])
		}
		return clusters[i][0] < clusters[j][0]
	})
	return clusters, nil
}

// findCycles detects cycles in the dependency subgraph via iterative DFS with
// an on-stack marker. Each cycle is reported once, rotated to start at its
// smallest node ID.
func findCycles(ctx context.Context, g *graph.Graph) ([][]graph.NodeID, error) {
	depTypes := make(map[graph.RelationshipType]struct{}, len(graph.DependencyEdgeTypes))
	for _, t := range graph.DependencyEdgeTypes {
		depTypes[t] = struct{}{}
	}

	adjacency := make(map[graph.NodeID][]graph.NodeID)
	for _, rel := range g.Relationships {
		if _, ok := depTypes[rel.Type]; !ok {
			continue
		}
		adjacency[rel.From] = append(adjacency[rel.From], rel.To)
	}
	for _, targets := range adjacency {
		sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })
	}

	roots := make([]graph.NodeID, 0, len(g.Nodes))
	for id := range g.Nodes {
		roots = append(roots, id)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	const (
		unvisited = 0
		onStack   = 1
		done      = 2
	)
	state := make(map[graph.NodeID]int, len(g.Nodes))

	var cycles [][]graph.NodeID
	seen := make(map[string]struct{})
	var stack []graph.NodeID

	var visit func(id graph.NodeID) error
	visit = func(id graph.NodeID) error {
		if err := ctxErr(ctx); err != nil {
			return err
		}
		state[id] = onStack
		stack = append(stack, id)

		for _, target := range adjacency[id] {
			switch state[target] {
			case unvisited:
				if err := visit(target); err != nil {
					return err
				}
			case onStack:
				// Back edge: the cycle is the stack segment from target down.
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == target {
						cycle := normalizeCycle(stack[i:])
						key := cycleKey(cycle)
						if _, dup := seen[key]; !dup {
							seen[key] = struct{}{}
							cycles = append(cycles, cycle)
						}
						break
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	for _, root := range roots {
		if state[root] == unvisited {
			if err := visit(root); err != nil {
				return nil, err
			}
		}
	}

	sort.Slice(cycles, func(i, j int) bool {
		if len(cycles[i]) != len(cycles[j]) {
			return len(cycles[i]) < len(cycles[j])
		}
		return cycles[i][0] < cycles[j][0]
	})
	return cycles, nil
}

// normalizeCycle rotates a cycle so it starts at its smallest node ID,
// giving every reporting of the same cycle one canonical form.
func normalizeCycle(cycle []graph.NodeID) []graph.NodeID {
	minAt := 0
	for i, id := range cycle {
		if id < cycle[minAt] {
			minAt = i
		}
	}
	out := make([]graph.NodeID, 0, len(cycle))
	out = append(out, cycle[minAt:]...)
	out = append(out, cycle[:minAt]...)
	return out
}

func cycleKey(cycle []graph.NodeID) string {
	key := ""
	for _, id := range cycle {
		key += string(id) + "\x00"
	}
	return key
}
