package storage

import (
	"github.com/kgraphdb/kgraph/pkg/graph"
)

// indexManager maintains the secondary indices over one graph: by-type,
// by-path, by-tag, full-text, and the typed adjacency index. Indices are kept
// live on every mutation and only ever rebuilt wholesale on load or restore.
//
// The manager has no lock of its own: it is owned by a Store and every method
// is called under the store's write lock (reads under the read lock), which
// is what makes each mutation index-atomic.
type indexManager struct {
	byType map[graph.NodeType]map[graph.NodeID]struct{}

	// byPath enforces at most one node per (path, type).
	byPath map[string]map[graph.NodeType]graph.NodeID

	byTag map[string]map[graph.NodeID]struct{}

	fulltext *fulltextIndex

	// Adjacency, partitioned by relationship type for typed traversal.
	outgoing map[graph.NodeID]map[graph.RelationshipType]map[graph.RelationshipID]struct{}
	incoming map[graph.NodeID]map[graph.RelationshipType]map[graph.RelationshipID]struct{}
}

func newIndexManager() *indexManager {
	return &indexManager{
		byType:   make(map[graph.NodeType]map[graph.NodeID]struct{}),
		byPath:   make(map[string]map[graph.NodeType]graph.NodeID),
		byTag:    make(map[string]map[graph.NodeID]struct{}),
		fulltext: newFulltextIndex(),
		outgoing: make(map[graph.NodeID]map[graph.RelationshipType]map[graph.RelationshipID]struct{}),
		incoming: make(map[graph.NodeID]map[graph.RelationshipType]map[graph.RelationshipID]struct{}),
	}
}

// rebuild reconstructs every index from the graph. Used on load and restore;
// persisted graphs never carry indices (data and index can then never diverge
// after out-of-band edits to the stored blob).
func (ix *indexManager) rebuild(g *graph.Graph) {
	*ix = *newIndexManager()
	for _, node := range g.Nodes {
		ix.indexNode(node)
	}
	for _, rel := range g.Relationships {
		ix.indexRelationship(rel)
	}
}

// pathConflict reports the node currently indexed under (path, type), if any.
func (ix *indexManager) pathConflict(path string, t graph.NodeType) (graph.NodeID, bool) {
	byType, ok := ix.byPath[path]
	if !ok {
		return "", false
	}
	id, ok := byType[t]
	return id, ok
}

func (ix *indexManager) indexNode(n *graph.Node) {
	if ix.byType[n.Type] == nil {
		ix.byType[n.Type] = make(map[graph.NodeID]struct{})
	}
	ix.byType[n.Type][n.ID] = struct{}{}

	if ix.byPath[n.Path] == nil {
		ix.byPath[n.Path] = make(map[graph.NodeType]graph.NodeID)
	}
	ix.byPath[n.Path][n.Type] = n.ID

	for _, tag := range n.Tags {
		if ix.byTag[tag] == nil {
			ix.byTag[tag] = make(map[graph.NodeID]struct{})
		}
		ix.byTag[tag][n.ID] = struct{}{}
	}

	ix.fulltext.index(n)
}

func (ix *indexManager) unindexNode(n *graph.Node) {
	if ids := ix.byType[n.Type]; ids != nil {
		delete(ids, n.ID)
		if len(ids) == 0 {
			delete(ix.byType, n.Type)
		}
	}

	if byType := ix.byPath[n.Path]; byType != nil {
		if byType[n.Type] == n.ID {
			delete(byType, n.Type)
		}
		if len(byType) == 0 {
			delete(ix.byPath, n.Path)
		}
	}

	for _, tag := range n.Tags {
		if ids := ix.byTag[tag]; ids != nil {
			delete(ids, n.ID)
			if len(ids) == 0 {
				delete(ix.byTag, tag)
			}
		}
	}

	ix.fulltext.remove(n.ID)
}

func (ix *indexManager) indexRelationship(r *graph.Relationship) {
	addAdjacency(ix.outgoing, r.From, r.Type, r.ID)
	addAdjacency(ix.incoming, r.To, r.Type, r.ID)
}

func (ix *indexManager) unindexRelationship(r *graph.Relationship) {
	removeAdjacency(ix.outgoing, r.From, r.Type, r.ID)
	removeAdjacency(ix.incoming, r.To, r.Type, r.ID)
}

func addAdjacency(
	adj map[graph.NodeID]map[graph.RelationshipType]map[graph.RelationshipID]struct{},
	node graph.NodeID, relType graph.RelationshipType, rel graph.RelationshipID,
) {
	if adj[node] == nil {
		adj[node] = make(map[graph.RelationshipType]map[graph.RelationshipID]struct{})
	}
	if adj[node][relType] == nil {
		adj[node][relType] = make(map[graph.RelationshipID]struct{})
	}
	adj[node][relType][rel] = struct{}{}
}

func removeAdjacency(
	adj map[graph.NodeID]map[graph.RelationshipType]map[graph.RelationshipID]struct{},
	node graph.NodeID, relType graph.RelationshipType, rel graph.RelationshipID,
) {
	byType, ok := adj[node]
	if !ok {
		return
	}
	if ids, ok := byType[relType]; ok {
		delete(ids, rel)
		if len(ids) == 0 {
			delete(byType, relType)
		}
	}
	if len(byType) == 0 {
		delete(adj, node)
	}
}

// adjacentIDs collects relationship IDs from one side of the adjacency index,
// optionally restricted to a set of relationship types (nil means all).
func adjacentIDs(
	adj map[graph.NodeID]map[graph.RelationshipType]map[graph.RelationshipID]struct{},
	node graph.NodeID, types []graph.RelationshipType,
) []graph.RelationshipID {
	byType, ok := adj[node]
	if !ok {
		return nil
	}

	var ids []graph.RelationshipID
	if types == nil {
		for _, rels := range byType {
			for id := range rels {
				ids = append(ids, id)
			}
		}
		return ids
	}

	for _, t := range types {
		for id := range byType[t] {
			ids = append(ids, id)
		}
	}
	return ids
}
