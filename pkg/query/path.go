package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/kgraphdb/kgraph/pkg/graph"
	"github.com/kgraphdb/kgraph/pkg/storage"
)

// DefaultMaxPathDepth bounds shortest-path searches when the caller passes
// zero. Deep enough for any realistic dependency chain, shallow enough to keep
// a degenerate query from walking the whole graph hop by hop.
const DefaultMaxPathDepth = 50

// PathOptions tunes FindShortestPath.
type PathOptions struct {
	// Types restricts traversal to the given relationship types. Empty means
	// all types.
	Types []graph.RelationshipType

	// MaxDepth caps the number of hops. Zero means DefaultMaxPathDepth.
	MaxDepth int
}

// hop records how BFS first reached a node, for path reconstruction.
type hop struct {
	prev graph.NodeID
	rel  graph.RelationshipID
}

// FindShortestPath runs a breadth-first search from one node to another and
// returns the hop-minimal path. Edges are followed in their stored direction;
// bidirectional edges are traversable both ways.
//
// An unreachable target is a valid outcome, not an error: the result comes
// back with Found set to false. Errors are reserved for unknown graphs,
// unknown endpoints, and cancellation.
func (e *Engine) FindShortestPath(ctx context.Context, graphID string, from, to graph.NodeID, opts PathOptions) (*Path, error) {
	store, err := e.reg.Get(graphID)
	if err != nil {
		return nil, err
	}
	if !store.HasNode(from) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNodeNotFound, from)
	}
	if !store.HasNode(to) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNodeNotFound, to)
	}

	if from == to {
		node, err := store.GetNode(from)
		if err != nil {
			return nil, err
		}
		return &Path{Found: true, Nodes: []*graph.Node{node}}, nil
	}

	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxPathDepth
	}

	visited := map[graph.NodeID]hop{from: {}}
	frontier := []graph.NodeID{from}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []graph.NodeID
		for _, current := range frontier {
			if err := ctxErr(ctx); err != nil {
				return nil, err
			}

			rels, err := store.GetRelationshipsFor(current, storage.DirectionOut, opts.Types...)
			if err != nil {
				// Node removed mid-search; its edges went with it.
				continue
			}
			// Map iteration order leaks into which of several equal-length
			// paths wins; visit neighbors in ID order to stay deterministic.
			sort.Slice(rels, func(i, j int) bool { return rels[i].ID < rels[j].ID })

			for _, rel := range rels {
				neighbor := rel.To
				if neighbor == current {
					// Bidirectional edge traversed against its stored
					// direction.
					neighbor = rel.From
				}
				if _, ok := visited[neighbor]; ok {
					continue
				}
				visited[neighbor] = hop{prev: current, rel: rel.ID}
				if neighbor == to {
					return reconstructPath(store, visited, from, to)
				}
				next = append(next, neighbor)
			}
		}
		frontier = next
	}

	return &Path{Found: false}, nil
}

func reconstructPath(store *storage.Store, visited map[graph.NodeID]hop, from, to graph.NodeID) (*Path, error) {
	var nodeIDs []graph.NodeID
	var relIDs []graph.RelationshipID
	for current := to; ; {
		nodeIDs = append(nodeIDs, current)
		if current == from {
			break
		}
		step := visited[current]
		relIDs = append(relIDs, step.rel)
		current = step.prev
	}

	// Walked back-to-front; flip both.
	for i, j := 0, len(nodeIDs)-1; i < j; i, j = i+1, j-1 {
		nodeIDs[i], nodeIDs[j] = nodeIDs[j], nodeIDs[i]
	}
	for i, j := 0, len(relIDs)-1; i < j; i, j = i+1, j-1 {
		relIDs[i], relIDs[j] = relIDs[j], relIDs[i]
	}

	path := &Path{Found: true, Length: len(relIDs)}
	for _, id := range nodeIDs {
		node, err := store.GetNode(id)
		if err != nil {
			return nil, err
		}
		path.Nodes = append(path.Nodes, node)
	}
	for _, id := range relIDs {
		rel, err := store.GetRelationship(id)
		if err != nil {
			return nil, err
		}
		path.Relationships = append(path.Relationships, rel)
	}
	return path, nil
}
