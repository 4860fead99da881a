// Package storage owns authoritative graph state.
//
// A Store is the sole owner of one project's knowledge graph: the node and
// relationship maps plus the secondary indices over them. All reads and
// writes pass through it. The store enforces the structural invariants —
// deterministic node identity, one node per (path, type), no dangling
// relationships — and publishes exactly one event per committed mutation,
// after the mutation and its index updates are applied, never before.
//
// Concurrency: a single RWMutex guards graph and indices together, so a
// reader can never observe a node without its index entries or vice versa.
// The expected workload is one writer (the incremental updater) and unbounded
// concurrent readers. Long-running analysis should work on Snapshot() copies
// rather than holding the read lock.
//
// Example:
//
//	store := storage.NewStore("graph-1", "/src/project", storage.Options{})
//	err := store.UpsertNode(&graph.Node{
//		Type: graph.NodeModule,
//		Name: "auth",
//		Path: "src/auth",
//	})
package storage

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/kgraphdb/kgraph/pkg/event"
	"github.com/kgraphdb/kgraph/pkg/graph"
)

// Direction selects which incident relationships to return.
type Direction string

// Directions.
const (
	DirectionIn   Direction = "in"
	DirectionOut  Direction = "out"
	DirectionBoth Direction = "both"
)

// Options configures a Store. Both fields may be zero: a nil Bus disables
// event publishing, a nil Logger falls back to slog.Default().
type Options struct {
	Bus    *event.Bus
	Logger *slog.Logger
}

// Store is the authoritative owner of one graph.
type Store struct {
	mu  sync.RWMutex
	g   *graph.Graph
	idx *indexManager

	// statsDirty marks traversal-derived statistics stale. Counter statistics
	// are maintained eagerly per mutation.
	statsDirty bool

	bus    *event.Bus
	logger *slog.Logger
}

// NewStore creates a store over an empty graph.
func NewStore(graphID, projectPath string, opts Options) *Store {
	return Open(graph.New(graphID, projectPath), opts)
}

// Open wraps an existing graph (typically loaded from persistence) in a
// store, rebuilding all indices and statistics from the node and relationship
// maps. The store takes ownership of g; the caller must not retain it.
func Open(g *graph.Graph, opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		g:      g,
		idx:    newIndexManager(),
		bus:    opts.Bus,
		logger: logger,
	}
	s.idx.rebuild(g)
	g.Recompute()
	return s
}

// GraphID returns the graph's identifier.
func (s *Store) GraphID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.g.ID
}

// ProjectPath returns the analyzed project's path.
func (s *Store) ProjectPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.g.ProjectPath
}

// Version returns the graph's monotonically increasing mutation version.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.g.Version
}

// Metadata returns the project-level metadata.
func (s *Store) Metadata() graph.GraphMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	md := s.g.Metadata
	md.EntryPoints = append([]string(nil), md.EntryPoints...)
	return md
}

// SetMetadata replaces the project-level metadata.
func (s *Store) SetMetadata(md graph.GraphMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.g.Metadata = md
	s.commitLocked()
}

// validateNode checks identity fields and the metadata bound, and fills in a
// missing ID from the identity triple. A caller-supplied ID that does not
// match the derivation is rejected: identity must stay deterministic.
func validateNode(n *graph.Node) error {
	if n == nil {
		return fmt.Errorf("%w: nil node", ErrInvalidNode)
	}
	if n.Path == "" || n.Name == "" {
		return fmt.Errorf("%w: path and name are required (path=%q name=%q)", ErrInvalidNode, n.Path, n.Name)
	}
	if !n.Type.Valid() {
		return fmt.Errorf("%w: unknown node type %q", ErrInvalidNode, n.Type)
	}
	if len(n.Metadata.Extra) > graph.MaxMetadataExtra {
		return fmt.Errorf("%w: metadata extra map exceeds %d entries", ErrInvalidNode, graph.MaxMetadataExtra)
	}

	derived := graph.NewNodeID(n.Path, n.Type, n.Name)
	if n.ID == "" {
		n.ID = derived
	} else if n.ID != derived {
		return fmt.Errorf("%w: id %q does not match identity (path=%q type=%q name=%q)",
			ErrInvalidNode, n.ID, n.Path, n.Type, n.Name)
	}
	return nil
}

// UpsertNode inserts or replaces a node by ID.
//
// Fails with ErrInvalidNode when identity fields are missing, the ID does not
// match its derivation, or another node already occupies (path, type).
func (s *Store) UpsertNode(n *graph.Node) error {
	if err := validateNode(n); err != nil {
		return err
	}

	evs, err := s.upsertNodeLocked(n)
	if err != nil {
		return err
	}
	s.publish(evs)
	return nil
}

func (s *Store) upsertNodeLocked(n *graph.Node) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if holder, ok := s.idx.pathConflict(n.Path, n.Type); ok && holder != n.ID {
		return nil, fmt.Errorf("%w: path %q already holds a %s node (%s)",
			ErrInvalidNode, n.Path, n.Type, holder)
	}

	stored := n.Clone()
	evType := event.NodeAdded
	var changes []string
	if existing, ok := s.g.Nodes[n.ID]; ok {
		evType = event.NodeUpdated
		changes = nodeChanges(existing, stored)
		s.idx.unindexNode(existing)
		s.g.Statistics.CountNode(existing, -1)
	}

	s.g.Nodes[n.ID] = stored
	s.idx.indexNode(stored)
	s.g.Statistics.CountNode(stored, 1)
	s.commitLocked()

	ev := event.NewEvent(evType, s.g.ID)
	ev.NodeID = n.ID
	ev.Changes = changes
	return []event.Event{ev}, nil
}

// RemoveNode removes a node. With cascade, every relationship referencing the
// node is removed first (each with its own event); without cascade the call
// fails with ErrDanglingRelationship if any such relationship exists.
func (s *Store) RemoveNode(id graph.NodeID, cascade bool) error {
	evs, err := s.removeNodeLocked(id, cascade)
	if err != nil {
		return err
	}
	s.publish(evs)
	return nil
}

func (s *Store) removeNodeLocked(id graph.NodeID, cascade bool) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.g.Nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	// Self-loops appear on both sides of the adjacency index; dedupe.
	incident := make(map[graph.RelationshipID]struct{})
	for _, relID := range adjacentIDs(s.idx.outgoing, id, nil) {
		incident[relID] = struct{}{}
	}
	for _, relID := range adjacentIDs(s.idx.incoming, id, nil) {
		incident[relID] = struct{}{}
	}

	if !cascade && len(incident) > 0 {
		return nil, fmt.Errorf("%w: node %s still has %d relationship(s)",
			ErrDanglingRelationship, id, len(incident))
	}

	var evs []event.Event
	for relID := range incident {
		rel := s.g.Relationships[relID]
		s.idx.unindexRelationship(rel)
		s.g.Statistics.CountRelationship(rel, -1)
		delete(s.g.Relationships, relID)

		ev := event.NewEvent(event.RelationshipRemoved, s.g.ID)
		ev.RelationshipID = relID
		evs = append(evs, ev)
	}

	s.idx.unindexNode(node)
	s.g.Statistics.CountNode(node, -1)
	delete(s.g.Nodes, id)
	s.commitLocked()

	ev := event.NewEvent(event.NodeRemoved, s.g.ID)
	ev.NodeID = id
	return append(evs, ev), nil
}

// UpsertRelationship inserts or replaces a relationship. Both endpoints must
// already exist; otherwise the call fails with ErrUnknownEndpoint. A missing
// ID is derived from (from, to, type) so re-reported edges update in place.
func (s *Store) UpsertRelationship(r *graph.Relationship) error {
	if r == nil {
		return fmt.Errorf("%w: nil relationship", ErrUnknownEndpoint)
	}
	if !r.Type.Valid() {
		return fmt.Errorf("invalid relationship type %q", r.Type)
	}
	if r.ID == "" {
		r.ID = graph.NewRelationshipID(r.From, r.To, r.Type)
	}

	evs, err := s.upsertRelationshipLocked(r)
	if err != nil {
		return err
	}
	s.publish(evs)
	return nil
}

func (s *Store) upsertRelationshipLocked(r *graph.Relationship) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.g.Nodes[r.From]; !ok {
		return nil, fmt.Errorf("%w: from node %s", ErrUnknownEndpoint, r.From)
	}
	if _, ok := s.g.Nodes[r.To]; !ok {
		return nil, fmt.Errorf("%w: to node %s", ErrUnknownEndpoint, r.To)
	}

	stored := r.Clone()
	evType := event.RelationshipAdded
	var changes []string
	if existing, ok := s.g.Relationships[r.ID]; ok {
		evType = event.RelationshipUpdated
		changes = relationshipChanges(existing, stored)
		s.idx.unindexRelationship(existing)
		s.g.Statistics.CountRelationship(existing, -1)
	}

	s.g.Relationships[r.ID] = stored
	s.idx.indexRelationship(stored)
	s.g.Statistics.CountRelationship(stored, 1)
	s.commitLocked()

	ev := event.NewEvent(evType, s.g.ID)
	ev.RelationshipID = r.ID
	ev.Changes = changes
	return []event.Event{ev}, nil
}

// RemoveRelationship removes a relationship by ID.
func (s *Store) RemoveRelationship(id graph.RelationshipID) error {
	evs, err := s.removeRelationshipLocked(id)
	if err != nil {
		return err
	}
	s.publish(evs)
	return nil
}

func (s *Store) removeRelationshipLocked(id graph.RelationshipID) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rel, ok := s.g.Relationships[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRelationshipNotFound, id)
	}

	s.idx.unindexRelationship(rel)
	s.g.Statistics.CountRelationship(rel, -1)
	delete(s.g.Relationships, id)
	s.commitLocked()

	ev := event.NewEvent(event.RelationshipRemoved, s.g.ID)
	ev.RelationshipID = id
	return []event.Event{ev}, nil
}

// GetNode returns a deep copy of the node, or ErrNodeNotFound.
func (s *Store) GetNode(id graph.NodeID) (*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.g.Nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return node.Clone(), nil
}

// HasNode reports whether a node exists, without copying it.
func (s *Store) HasNode(id graph.NodeID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.g.Nodes[id]
	return ok
}

// GetRelationship returns a deep copy of the relationship, or
// ErrRelationshipNotFound.
func (s *Store) GetRelationship(id graph.RelationshipID) (*graph.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rel, ok := s.g.Relationships[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRelationshipNotFound, id)
	}
	return rel.Clone(), nil
}

// GetRelationshipsFor returns copies of the relationships incident to a node,
// filtered by direction and (optionally) relationship types. Bidirectional
// relationships count for both directions. O(degree) via the adjacency index.
func (s *Store) GetRelationshipsFor(id graph.NodeID, dir Direction, types ...graph.RelationshipType) ([]*graph.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.g.Nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	var typeFilter []graph.RelationshipType
	if len(types) > 0 {
		typeFilter = types
	}

	seen := make(map[graph.RelationshipID]struct{})
	var out []*graph.Relationship
	collect := func(ids []graph.RelationshipID) {
		for _, relID := range ids {
			if _, dup := seen[relID]; dup {
				continue
			}
			seen[relID] = struct{}{}
			out = append(out, s.g.Relationships[relID].Clone())
		}
	}

	switch dir {
	case DirectionOut:
		collect(adjacentIDs(s.idx.outgoing, id, typeFilter))
		// Bidirectional edges pointing at this node are traversable outward.
		for _, relID := range adjacentIDs(s.idx.incoming, id, typeFilter) {
			if s.g.Relationships[relID].Bidirectional {
				collect([]graph.RelationshipID{relID})
			}
		}
	case DirectionIn:
		collect(adjacentIDs(s.idx.incoming, id, typeFilter))
		for _, relID := range adjacentIDs(s.idx.outgoing, id, typeFilter) {
			if s.g.Relationships[relID].Bidirectional {
				collect([]graph.RelationshipID{relID})
			}
		}
	default:
		collect(adjacentIDs(s.idx.outgoing, id, typeFilter))
		collect(adjacentIDs(s.idx.incoming, id, typeFilter))
	}

	return out, nil
}

// NodeIDsByType returns the IDs of all nodes with any of the given types.
// With no types, all node IDs are returned.
func (s *Store) NodeIDsByType(types ...graph.NodeType) []graph.NodeID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(types) == 0 {
		ids := make([]graph.NodeID, 0, len(s.g.Nodes))
		for id := range s.g.Nodes {
			ids = append(ids, id)
		}
		return ids
	}

	// A type listed twice must not return its nodes twice.
	seen := make(map[graph.NodeType]struct{}, len(types))
	var ids []graph.NodeID
	for _, t := range types {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		for id := range s.idx.byType[t] {
			ids = append(ids, id)
		}
	}
	return ids
}

// NodeByPath returns the node stored under (path, type), or ErrNodeNotFound.
func (s *Store) NodeByPath(path string, t graph.NodeType) (*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.idx.pathConflict(path, t)
	if !ok {
		return nil, fmt.Errorf("%w: path %q type %q", ErrNodeNotFound, path, t)
	}
	return s.g.Nodes[id].Clone(), nil
}

// NodesAtPath returns every node stored at a path, across types. Used by the
// incremental updater to remove all identities of a removed artifact.
func (s *Store) NodesAtPath(path string) []*graph.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var nodes []*graph.Node
	for _, id := range s.idx.byPath[path] {
		nodes = append(nodes, s.g.Nodes[id].Clone())
	}
	return nodes
}

// NodeIDsByTag returns the IDs of all nodes carrying the tag.
func (s *Store) NodeIDsByTag(tag string) []graph.NodeID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]graph.NodeID, 0, len(s.idx.byTag[tag]))
	for id := range s.idx.byTag[tag] {
		ids = append(ids, id)
	}
	return ids
}

// FulltextLookup scores nodes against pre-tokenized query terms using the
// inverted index. With fuzzy, index terms within a bounded edit distance also
// match, down-weighted by distance.
func (s *Store) FulltextLookup(tokens []string, fuzzy bool) map[graph.NodeID]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.fulltext.lookup(tokens, fuzzy)
}

// Tokenize exposes the index tokenizer so query strings and indexed text
// agree on token boundaries.
func Tokenize(text string) []string {
	return tokenize(text)
}

// NodeCount returns the number of nodes.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.g.Nodes)
}

// RelationshipCount returns the number of relationships.
func (s *Store) RelationshipCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.g.Relationships)
}

// Snapshot returns a deep copy of the full graph state. Used for backup, for
// transactional rollback by the incremental updater, and as an immutable
// working set for long-running analysis.
func (s *Store) Snapshot() *graph.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.g.Clone()
}

// Restore atomically replaces the graph with a snapshot, rebuilding indices
// and statistics. Publishes a single graph_restored event.
func (s *Store) Restore(snapshot *graph.Graph) {
	s.mu.Lock()
	s.g = snapshot.Clone()
	s.idx.rebuild(s.g)
	s.g.Recompute()
	s.statsDirty = false
	s.mu.Unlock()

	s.publish([]event.Event{event.NewEvent(event.GraphRestored, snapshot.ID)})
}

// Statistics returns a detached copy of the graph statistics, recomputing
// traversal-derived metrics first if any mutation landed since the last
// read. A read therefore always observes statistics at least as fresh as the
// last committed mutation.
func (s *Store) Statistics() graph.Statistics {
	s.mu.RLock()
	dirty := s.statsDirty
	s.mu.RUnlock()

	if dirty {
		s.mu.Lock()
		if s.statsDirty {
			s.g.RecomputeDerived()
			s.statsDirty = false
		}
		s.mu.Unlock()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.g.Statistics.Clone()
}

// SetCycles records cycle data produced by structural analysis into the
// cached dependency metrics.
func (s *Store) SetCycles(cycles [][]graph.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.g.Statistics.Dependencies.Cycles = cycles
}

// commitLocked advances the graph version and marks derived statistics
// stale. Caller holds the write lock.
func (s *Store) commitLocked() {
	s.g.Version++
	s.g.LastUpdated = time.Now()
	s.statsDirty = true
}

// nodeChanges lists the top-level node fields that differ between the stored
// version and its replacement. Identity fields cannot change under the same
// ID and are not compared.
func nodeChanges(prev, next *graph.Node) []string {
	var changed []string
	if prev.RelativePath != next.RelativePath {
		changed = append(changed, "relativePath")
	}
	if prev.Hash != next.Hash {
		changed = append(changed, "hash")
	}
	if prev.Size != next.Size {
		changed = append(changed, "size")
	}
	if !prev.LastModified.Equal(next.LastModified) {
		changed = append(changed, "lastModified")
	}
	if !prev.LastAnalyzed.Equal(next.LastAnalyzed) {
		changed = append(changed, "lastAnalyzed")
	}
	if !reflect.DeepEqual(prev.Tags, next.Tags) {
		changed = append(changed, "tags")
	}
	if !reflect.DeepEqual(prev.Metadata, next.Metadata) {
		changed = append(changed, "metadata")
	}
	if !reflect.DeepEqual(prev.Semantics, next.Semantics) {
		changed = append(changed, "semantics")
	}
	if !reflect.DeepEqual(prev.Errors, next.Errors) {
		changed = append(changed, "errors")
	}
	return changed
}

// relationshipChanges is nodeChanges for relationships.
func relationshipChanges(prev, next *graph.Relationship) []string {
	var changed []string
	if prev.Bidirectional != next.Bidirectional {
		changed = append(changed, "bidirectional")
	}
	if prev.Weight != next.Weight {
		changed = append(changed, "weight")
	}
	if !reflect.DeepEqual(prev.Metadata, next.Metadata) {
		changed = append(changed, "metadata")
	}
	return changed
}

func (s *Store) publish(evs []event.Event) {
	if s.bus == nil {
		return
	}
	for _, ev := range evs {
		s.bus.Publish(ev)
	}
}
