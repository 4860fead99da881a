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

// chainStore builds a store with module nodes a..e and the given directed
// imports edges between them, returning the node IDs by name.
func chainStore(t *testing.T, edges [][2]string) (*Engine, map[string]graph.NodeID) {
	t.Helper()

	store := storage.NewStore("g1", "/src/project", storage.Options{})
	ids := make(map[string]graph.NodeID)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		node := &graph.Node{Type: graph.NodeModule, Name: name, Path: "src/" + name}
		require.NoError(t, store.UpsertNode(node))
		ids[name] = node.ID
	}
	for _, e := range edges {
		require.NoError(t, store.UpsertRelationship(&graph.Relationship{
			From: ids[e[0]], To: ids[e[1]], Type: graph.RelImports,
		}))
	}

	reg := registry.New()
	reg.Register(store)
	return NewEngine(reg, nil), ids
}

func pathNames(p *Path) []string {
	names := make([]string, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		names = append(names, n.Name)
	}
	return names
}

func TestEngine_FindShortestPath(t *testing.T) {
	ctx := context.Background()

	t.Run("direct edge is a single hop", func(t *testing.T) {
		engine, ids := chainStore(t, [][2]string{{"a", "b"}})
		path, err := engine.FindShortestPath(ctx, "g1", ids["a"], ids["b"], PathOptions{})
		require.NoError(t, err)
		require.True(t, path.Found)
		assert.Equal(t, 1, path.Length)
		assert.Equal(t, []string{"a", "b"}, pathNames(path))
		require.Len(t, path.Relationships, 1)
		assert.Equal(t, graph.RelImports, path.Relationships[0].Type)
	})

	t.Run("picks the hop-minimal route", func(t *testing.T) {
		// a -> b -> c -> d and a shortcut a -> d.
		engine, ids := chainStore(t, [][2]string{{"a", "b"}, {"b", "c"}, {"c", "d"}, {"a", "d"}})
		path, err := engine.FindShortestPath(ctx, "g1", ids["a"], ids["d"], PathOptions{})
		require.NoError(t, err)
		require.True(t, path.Found)
		assert.Equal(t, 1, path.Length)
	})

	t.Run("no connecting path is a result, not an error", func(t *testing.T) {
		engine, ids := chainStore(t, [][2]string{{"a", "b"}})
		path, err := engine.FindShortestPath(ctx, "g1", ids["a"], ids["e"], PathOptions{})
		require.NoError(t, err)
		assert.False(t, path.Found)
		assert.Empty(t, path.Nodes)
	})

	t.Run("edges are directed", func(t *testing.T) {
		engine, ids := chainStore(t, [][2]string{{"a", "b"}})
		path, err := engine.FindShortestPath(ctx, "g1", ids["b"], ids["a"], PathOptions{})
		require.NoError(t, err)
		assert.False(t, path.Found)
	})

	t.Run("type restriction prunes the route", func(t *testing.T) {
		engine, ids := chainStore(t, [][2]string{{"a", "b"}, {"b", "c"}})
		path, err := engine.FindShortestPath(ctx, "g1", ids["a"], ids["c"], PathOptions{
			Types: []graph.RelationshipType{graph.RelCalls},
		})
		require.NoError(t, err)
		assert.False(t, path.Found)
	})

	t.Run("depth cap bounds the search", func(t *testing.T) {
		engine, ids := chainStore(t, [][2]string{{"a", "b"}, {"b", "c"}, {"c", "d"}})
		path, err := engine.FindShortestPath(ctx, "g1", ids["a"], ids["d"], PathOptions{MaxDepth: 2})
		require.NoError(t, err)
		assert.False(t, path.Found)

		path, err = engine.FindShortestPath(ctx, "g1", ids["a"], ids["d"], PathOptions{MaxDepth: 3})
		require.NoError(t, err)
		assert.True(t, path.Found)
	})

	t.Run("from equals to", func(t *testing.T) {
		engine, ids := chainStore(t, nil)
		path, err := engine.FindShortestPath(ctx, "g1", ids["a"], ids["a"], PathOptions{})
		require.NoError(t, err)
		require.True(t, path.Found)
		assert.Equal(t, 0, path.Length)
		assert.Equal(t, []string{"a"}, pathNames(path))
	})

	t.Run("unknown endpoints", func(t *testing.T) {
		engine, ids := chainStore(t, nil)
		_, err := engine.FindShortestPath(ctx, "g1", "no-such-id", ids["a"], PathOptions{})
		assert.ErrorIs(t, err, storage.ErrNodeNotFound)

		_, err = engine.FindShortestPath(ctx, "g1", ids["a"], "no-such-id", PathOptions{})
		assert.ErrorIs(t, err, storage.ErrNodeNotFound)
	})

	t.Run("bidirectional edge traverses both ways", func(t *testing.T) {
		engine, ids := chainStore(t, nil)
		store, err := engine.reg.Get("g1")
		require.NoError(t, err)
		require.NoError(t, store.UpsertRelationship(&graph.Relationship{
			From: ids["a"], To: ids["b"], Type: graph.RelSimilarTo, Bidirectional: true,
		}))

		path, err := engine.FindShortestPath(ctx, "g1", ids["b"], ids["a"], PathOptions{})
		require.NoError(t, err)
		assert.True(t, path.Found)
	})

	t.Run("cancelled context", func(t *testing.T) {
		engine, ids := chainStore(t, [][2]string{{"a", "b"}})
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := engine.FindShortestPath(cancelled, "g1", ids["a"], ids["b"], PathOptions{})
		assert.ErrorIs(t, err, ErrTimeout)
	})
}
