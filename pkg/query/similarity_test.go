package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraphdb/kgraph/pkg/graph"
	"github.com/kgraphdb/kgraph/pkg/registry"
	"github.com/kgraphdb/kgraph/pkg/storage"
)

// similarityFixture builds a graph where "alpha" and "beta" are structural
// twins (same neighbors, same edge types) and "gamma" is unrelated.
func similarityFixture(t *testing.T) (*Engine, map[string]graph.NodeID) {
	t.Helper()

	store := storage.NewStore("g1", "/src/project", storage.Options{})
	ids := make(map[string]graph.NodeID)

	add := func(name string, tags []string, purpose string) {
		node := &graph.Node{
			Type: graph.NodeModule, Name: name, Path: "src/" + name,
			Tags: tags,
		}
		if purpose != "" {
			node.Semantics = &graph.SemanticInfo{Purpose: purpose}
		}
		require.NoError(t, store.UpsertNode(node))
		ids[name] = node.ID
	}

	add("alpha", []string{"storage"}, "persist records to disk")
	add("beta", []string{"storage"}, "persist blobs to disk")
	add("gamma", []string{"ui"}, "render widgets")
	add("shared", nil, "")
	add("other", nil, "")

	edges := []*graph.Relationship{
		{From: ids["alpha"], To: ids["shared"], Type: graph.RelImports},
		{From: ids["beta"], To: ids["shared"], Type: graph.RelImports},
		{From: ids["gamma"], To: ids["other"], Type: graph.RelUses},
	}
	for _, r := range edges {
		require.NoError(t, store.UpsertRelationship(r))
	}

	reg := registry.New()
	reg.Register(store)
	return NewEngine(reg, nil), ids
}

func TestEngine_FindSimilar(t *testing.T) {
	ctx := context.Background()
	engine, ids := similarityFixture(t)

	t.Run("structural and semantic twin ranks first", func(t *testing.T) {
		hits, err := engine.FindSimilar(ctx, "g1", ids["alpha"], Weights{}, 0)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, ids["beta"], hits[0].Node.ID)
	})

	t.Run("seed is excluded", func(t *testing.T) {
		hits, err := engine.FindSimilar(ctx, "g1", ids["alpha"], DefaultWeights, 0)
		require.NoError(t, err)
		for _, hit := range hits {
			assert.NotEqual(t, ids["alpha"], hit.Node.ID)
		}
	})

	t.Run("limit caps output", func(t *testing.T) {
		hits, err := engine.FindSimilar(ctx, "g1", ids["alpha"], DefaultWeights, 1)
		require.NoError(t, err)
		assert.Len(t, hits, 1)
	})

	t.Run("weights isolate components", func(t *testing.T) {
		// Pure semantic weighting: gamma shares no tags or purpose tokens
		// with alpha, so it must not appear at all.
		hits, err := engine.FindSimilar(ctx, "g1", ids["alpha"], Weights{Semantic: 1}, 0)
		require.NoError(t, err)
		for _, hit := range hits {
			assert.NotEqual(t, ids["gamma"], hit.Node.ID)
		}
	})

	t.Run("unknown seed", func(t *testing.T) {
		_, err := engine.FindSimilar(ctx, "g1", "no-such-id", DefaultWeights, 0)
		assert.ErrorIs(t, err, storage.ErrNodeNotFound)
	})

	t.Run("unknown graph", func(t *testing.T) {
		_, err := engine.FindSimilar(ctx, "no-such-graph", ids["alpha"], DefaultWeights, 0)
		assert.ErrorIs(t, err, registry.ErrGraphNotFound)
	})
}

func TestJaccard(t *testing.T) {
	set := func(items ...string) map[string]struct{} {
		m := make(map[string]struct{}, len(items))
		for _, item := range items {
			m[item] = struct{}{}
		}
		return m
	}

	assert.Equal(t, 1.0, jaccard(set("a", "b"), set("a", "b")))
	assert.Equal(t, 0.0, jaccard(set("a"), set("b")))
	assert.InDelta(t, 1.0/3.0, jaccard(set("a", "b"), set("b", "c")), 0.001)
	assert.Equal(t, 0.0, jaccard(nil, set("a")))
}

func TestCosine(t *testing.T) {
	a := map[graph.RelationshipType]float64{graph.RelImports: 2, graph.RelCalls: 1}
	same := map[graph.RelationshipType]float64{graph.RelImports: 4, graph.RelCalls: 2}
	disjoint := map[graph.RelationshipType]float64{graph.RelUses: 3}

	assert.InDelta(t, 1.0, cosine(a, same), 0.001)
	assert.Equal(t, 0.0, cosine(a, disjoint))
	assert.Equal(t, 0.0, cosine(a, nil))
}
