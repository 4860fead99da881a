package query

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/kgraphdb/kgraph/pkg/graph"
	"github.com/kgraphdb/kgraph/pkg/storage"
)

// FindSimilar ranks nodes by similarity to a seed node and returns the top
// limit hits, the seed excluded. A zero Weights falls back to DefaultWeights;
// a zero limit means all nodes with a non-zero score.
//
// Similarity blends three signals:
//   - structural: Jaccard overlap of neighbor sets,
//   - semantic: Jaccard overlap of tags, pattern names, and purpose tokens,
//   - relationship: cosine similarity of per-type incident edge counts.
//
// The computation runs over a snapshot, so a long ranking pass never blocks
// writers and always sees one consistent graph version.
func (e *Engine) FindSimilar(ctx context.Context, graphID string, seed graph.NodeID, w Weights, limit int) ([]Hit, error) {
	store, err := e.reg.Get(graphID)
	if err != nil {
		return nil, err
	}
	if w == (Weights{}) {
		w = DefaultWeights
	}

	snap := store.Snapshot()
	if _, ok := snap.Nodes[seed]; !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNodeNotFound, seed)
	}

	neighbors, profiles := buildProfiles(snap)
	seedNeighbors := neighbors[seed]
	seedProfile := profiles[seed]
	seedTokens := semanticTokens(snap.Nodes[seed])

	var hits []Hit
	for id, node := range snap.Nodes {
		if id == seed {
			continue
		}
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}

		score := w.Structural*jaccard(seedNeighbors, neighbors[id]) +
			w.Semantic*jaccard(seedTokens, semanticTokens(node)) +
			w.Relationship*cosine(seedProfile, profiles[id])
		if score <= 0 {
			continue
		}
		hits = append(hits, Hit{Node: node, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Node.ID < hits[j].Node.ID
	})
	if limit > 0 && limit < len(hits) {
		hits = hits[:limit]
	}
	return hits, nil
}

// buildProfiles derives, in one pass over the edges, each node's neighbor set
// and its incident-edge count per relationship type.
func buildProfiles(g *graph.Graph) (map[graph.NodeID]map[string]struct{}, map[graph.NodeID]map[graph.RelationshipType]float64) {
	neighbors := make(map[graph.NodeID]map[string]struct{})
	profiles := make(map[graph.NodeID]map[graph.RelationshipType]float64)

	add := func(id graph.NodeID, other graph.NodeID, t graph.RelationshipType) {
		if neighbors[id] == nil {
			neighbors[id] = make(map[string]struct{})
		}
		neighbors[id][string(other)] = struct{}{}
		if profiles[id] == nil {
			profiles[id] = make(map[graph.RelationshipType]float64)
		}
		profiles[id][t]++
	}

	for _, rel := range g.Relationships {
		add(rel.From, rel.To, rel.Type)
		add(rel.To, rel.From, rel.Type)
	}
	return neighbors, profiles
}

// semanticTokens collects a node's comparable semantic vocabulary: its tags,
// detected pattern names, and the tokens of its stated purpose.
func semanticTokens(n *graph.Node) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tag := range n.Tags {
		tokens[tag] = struct{}{}
	}
	if n.Semantics != nil {
		for _, p := range n.Semantics.Patterns {
			tokens[p.Name] = struct{}{}
		}
		for _, tok := range storage.Tokenize(n.Semantics.Purpose) {
			tokens[tok] = struct{}{}
		}
	}
	return tokens
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

func cosine(a, b map[graph.RelationshipType]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for t, av := range a {
		normA += av * av
		if bv, ok := b[t]; ok {
			dot += av * bv
		}
	}
	for _, bv := range b {
		normB += bv * bv
	}
	if dot == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
