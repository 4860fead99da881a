package query

import (
	"context"
	"sort"

	"github.com/kgraphdb/kgraph/pkg/graph"
	"github.com/kgraphdb/kgraph/pkg/storage"
)

// Search ranks nodes against a free-text query using the store's inverted
// index. Name hits outrank description hits through the index's field
// weighting; with Fuzzy set, near-miss tokens within a bounded edit distance
// also match, down-weighted by distance. Ties rank by node ID.
//
// An empty or all-stopword query matches nothing.
func (e *Engine) Search(ctx context.Context, graphID, text string, opts SearchOptions) ([]Hit, error) {
	store, err := e.reg.Get(graphID)
	if err != nil {
		return nil, err
	}
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	tokens := storage.Tokenize(text)
	if len(tokens) == 0 {
		return nil, nil
	}

	scores := store.FulltextLookup(tokens, opts.Fuzzy)
	hits := make([]Hit, 0, len(scores))
	for id, score := range scores {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		node, err := store.GetNode(id)
		if err != nil {
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

	if opts.Limit > 0 && opts.Limit < len(hits) {
		hits = hits[:opts.Limit]
	}
	return hits, nil
}

// SearchByTag returns the nodes carrying a tag, sorted by ID. Tag lookups are
// exact; free-text relevance does not apply.
func (e *Engine) SearchByTag(ctx context.Context, graphID, tag string) ([]*graph.Node, error) {
	store, err := e.reg.Get(graphID)
	if err != nil {
		return nil, err
	}
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	ids := store.NodeIDsByTag(tag)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	nodes := make([]*graph.Node, 0, len(ids))
	for _, id := range ids {
		node, err := store.GetNode(id)
		if err != nil {
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}
