package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgraphdb/kgraph/pkg/event"
	"github.com/kgraphdb/kgraph/pkg/graph"
)

func testNode(path string, t graph.NodeType, name string) *graph.Node {
	return &graph.Node{
		ID:   graph.NewNodeID(path, t, name),
		Type: t,
		Name: name,
		Path: path,
	}
}

func testRel(from, to *graph.Node, t graph.RelationshipType) *graph.Relationship {
	return &graph.Relationship{
		ID:   graph.NewRelationshipID(from.ID, to.ID, t),
		From: from.ID,
		To:   to.ID,
		Type: t,
	}
}

func TestStore_UpsertNode(t *testing.T) {
	store := NewStore("g1", "/src/project", Options{})

	t.Run("round-trips through GetNode", func(t *testing.T) {
		node := testNode("src/auth", graph.NodeModule, "auth")
		node.Tags = []string{"security"}
		node.Semantics = &graph.SemanticInfo{Purpose: "authentication"}
		require.NoError(t, store.UpsertNode(node))

		got, err := store.GetNode(node.ID)
		require.NoError(t, err)
		assert.Equal(t, node, got)
	})

	t.Run("returned copy is detached", func(t *testing.T) {
		node := testNode("src/api", graph.NodeModule, "api")
		node.Tags = []string{"http"}
		require.NoError(t, store.UpsertNode(node))

		got, err := store.GetNode(node.ID)
		require.NoError(t, err)
		got.Tags[0] = "mutated"

		again, err := store.GetNode(node.ID)
		require.NoError(t, err)
		assert.Equal(t, "http", again.Tags[0])
	})

	t.Run("derives a missing ID", func(t *testing.T) {
		node := &graph.Node{Type: graph.NodeFunction, Name: "Login", Path: "src/auth/login.go"}
		require.NoError(t, store.UpsertNode(node))
		assert.Equal(t, graph.NewNodeID("src/auth/login.go", graph.NodeFunction, "Login"), node.ID)
	})

	t.Run("rejects a forged ID", func(t *testing.T) {
		node := testNode("src/db", graph.NodeModule, "db")
		node.ID = "not-the-derived-id"
		err := store.UpsertNode(node)
		assert.ErrorIs(t, err, ErrInvalidNode)
	})

	t.Run("rejects missing identity fields", func(t *testing.T) {
		err := store.UpsertNode(&graph.Node{Type: graph.NodeModule, Name: "x"})
		assert.ErrorIs(t, err, ErrInvalidNode)

		err = store.UpsertNode(&graph.Node{Type: graph.NodeModule, Path: "src/x"})
		assert.ErrorIs(t, err, ErrInvalidNode)

		err = store.UpsertNode(&graph.Node{Type: "alien", Name: "x", Path: "src/x"})
		assert.ErrorIs(t, err, ErrInvalidNode)
	})

	t.Run("rejects oversized metadata extra", func(t *testing.T) {
		node := testNode("src/big", graph.NodeModule, "big")
		node.Metadata.Extra = make(map[string]string)
		for i := 0; i <= graph.MaxMetadataExtra; i++ {
			node.Metadata.Extra[string(rune('a'+i%26))+string(rune('0'+i/26))] = "v"
		}
		err := store.UpsertNode(node)
		assert.ErrorIs(t, err, ErrInvalidNode)
	})

	t.Run("rejects a second node at the same path and type", func(t *testing.T) {
		first := testNode("src/dup", graph.NodeModule, "one")
		require.NoError(t, store.UpsertNode(first))

		second := testNode("src/dup", graph.NodeModule, "two")
		err := store.UpsertNode(second)
		assert.ErrorIs(t, err, ErrInvalidNode)

		// A different type at the same path is a distinct identity.
		dir := testNode("src/dup", graph.NodeDirectory, "dup")
		assert.NoError(t, store.UpsertNode(dir))
	})

	t.Run("update replaces in place", func(t *testing.T) {
		node := testNode("src/upd", graph.NodeModule, "upd")
		require.NoError(t, store.UpsertNode(node))
		count := store.NodeCount()

		node.Tags = []string{"v2"}
		require.NoError(t, store.UpsertNode(node))

		got, err := store.GetNode(node.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"v2"}, got.Tags)
		assert.Equal(t, count, store.NodeCount())
	})
}

func TestStore_UpsertRelationship(t *testing.T) {
	store := NewStore("g1", "/src/project", Options{})
	a := testNode("src/a", graph.NodeModule, "a")
	b := testNode("src/b", graph.NodeModule, "b")
	require.NoError(t, store.UpsertNode(a))
	require.NoError(t, store.UpsertNode(b))

	t.Run("fails with UnknownEndpoint iff an endpoint is absent", func(t *testing.T) {
		ghost := graph.NewNodeID("src/ghost", graph.NodeModule, "ghost")

		err := store.UpsertRelationship(&graph.Relationship{From: a.ID, To: ghost, Type: graph.RelImports})
		assert.ErrorIs(t, err, ErrUnknownEndpoint)

		err = store.UpsertRelationship(&graph.Relationship{From: ghost, To: b.ID, Type: graph.RelImports})
		assert.ErrorIs(t, err, ErrUnknownEndpoint)

		assert.NoError(t, store.UpsertRelationship(&graph.Relationship{From: a.ID, To: b.ID, Type: graph.RelImports}))
	})

	t.Run("derives a missing ID from the edge triple", func(t *testing.T) {
		rel := &graph.Relationship{From: a.ID, To: b.ID, Type: graph.RelCalls}
		require.NoError(t, store.UpsertRelationship(rel))
		assert.Equal(t, graph.NewRelationshipID(a.ID, b.ID, graph.RelCalls), rel.ID)

		// Re-reporting the same edge updates instead of duplicating.
		count := store.RelationshipCount()
		again := &graph.Relationship{From: a.ID, To: b.ID, Type: graph.RelCalls, Weight: 0.5}
		require.NoError(t, store.UpsertRelationship(again))
		assert.Equal(t, count, store.RelationshipCount())

		got, err := store.GetRelationship(rel.ID)
		require.NoError(t, err)
		assert.Equal(t, 0.5, got.Weight)
	})

	t.Run("rejects unknown relationship types", func(t *testing.T) {
		err := store.UpsertRelationship(&graph.Relationship{From: a.ID, To: b.ID, Type: "teleports"})
		assert.Error(t, err)
	})
}

func TestStore_RemoveNode(t *testing.T) {
	newStore := func(t *testing.T) (*Store, *graph.Node, *graph.Node) {
		store := NewStore("g1", "/src/project", Options{})
		a := testNode("src/a", graph.NodeModule, "a")
		b := testNode("src/b", graph.NodeModule, "b")
		require.NoError(t, store.UpsertNode(a))
		require.NoError(t, store.UpsertNode(b))
		require.NoError(t, store.UpsertRelationship(testRel(a, b, graph.RelImports)))
		require.NoError(t, store.UpsertRelationship(testRel(b, a, graph.RelCalls)))
		return store, a, b
	}

	t.Run("without cascade fails while relationships exist", func(t *testing.T) {
		store, a, _ := newStore(t)
		err := store.RemoveNode(a.ID, false)
		assert.ErrorIs(t, err, ErrDanglingRelationship)
		assert.True(t, store.HasNode(a.ID))
	})

	t.Run("with cascade removes every referencing relationship", func(t *testing.T) {
		store, a, b := newStore(t)
		require.NoError(t, store.RemoveNode(a.ID, true))

		assert.False(t, store.HasNode(a.ID))
		assert.Equal(t, 0, store.RelationshipCount())

		rels, err := store.GetRelationshipsFor(b.ID, DirectionBoth)
		require.NoError(t, err)
		assert.Empty(t, rels)
	})

	t.Run("unknown node", func(t *testing.T) {
		store, _, _ := newStore(t)
		err := store.RemoveNode("no-such-id", true)
		assert.ErrorIs(t, err, ErrNodeNotFound)
	})
}

func TestStore_GetRelationshipsFor(t *testing.T) {
	store := NewStore("g1", "/src/project", Options{})
	a := testNode("src/a", graph.NodeModule, "a")
	b := testNode("src/b", graph.NodeModule, "b")
	c := testNode("src/c", graph.NodeModule, "c")
	for _, n := range []*graph.Node{a, b, c} {
		require.NoError(t, store.UpsertNode(n))
	}

	ab := testRel(a, b, graph.RelImports)
	ca := testRel(c, a, graph.RelCalls)
	sim := testRel(b, a, graph.RelSimilarTo)
	sim.Bidirectional = true
	require.NoError(t, store.UpsertRelationship(ab))
	require.NoError(t, store.UpsertRelationship(ca))
	require.NoError(t, store.UpsertRelationship(sim))

	relIDs := func(rels []*graph.Relationship) []graph.RelationshipID {
		ids := make([]graph.RelationshipID, 0, len(rels))
		for _, r := range rels {
			ids = append(ids, r.ID)
		}
		return ids
	}

	t.Run("outgoing includes bidirectional incoming", func(t *testing.T) {
		rels, err := store.GetRelationshipsFor(a.ID, DirectionOut)
		require.NoError(t, err)
		assert.ElementsMatch(t, []graph.RelationshipID{ab.ID, sim.ID}, relIDs(rels))
	})

	t.Run("incoming includes bidirectional outgoing", func(t *testing.T) {
		rels, err := store.GetRelationshipsFor(a.ID, DirectionIn)
		require.NoError(t, err)
		assert.ElementsMatch(t, []graph.RelationshipID{ca.ID, sim.ID}, relIDs(rels))
	})

	t.Run("both directions deduplicates", func(t *testing.T) {
		rels, err := store.GetRelationshipsFor(a.ID, DirectionBoth)
		require.NoError(t, err)
		assert.ElementsMatch(t, []graph.RelationshipID{ab.ID, ca.ID, sim.ID}, relIDs(rels))
	})

	t.Run("type filter", func(t *testing.T) {
		rels, err := store.GetRelationshipsFor(a.ID, DirectionBoth, graph.RelImports)
		require.NoError(t, err)
		assert.ElementsMatch(t, []graph.RelationshipID{ab.ID}, relIDs(rels))
	})

	t.Run("unknown node", func(t *testing.T) {
		_, err := store.GetRelationshipsFor("no-such-id", DirectionBoth)
		assert.ErrorIs(t, err, ErrNodeNotFound)
	})
}

func TestStore_Events(t *testing.T) {
	bus := event.NewBus(nil)
	var seen []event.Type
	bus.Subscribe(func(ev event.Event) {
		seen = append(seen, ev.Type)
	})

	store := NewStore("g1", "/src/project", Options{Bus: bus})
	a := testNode("src/a", graph.NodeModule, "a")
	b := testNode("src/b", graph.NodeModule, "b")

	require.NoError(t, store.UpsertNode(a))
	require.NoError(t, store.UpsertNode(b))
	require.NoError(t, store.UpsertNode(b)) // update
	require.NoError(t, store.UpsertRelationship(testRel(a, b, graph.RelImports)))
	require.NoError(t, store.RemoveNode(a.ID, true))

	assert.Equal(t, []event.Type{
		event.NodeAdded,
		event.NodeAdded,
		event.NodeUpdated,
		event.RelationshipAdded,
		event.RelationshipRemoved, // cascade fires before the node removal
		event.NodeRemoved,
	}, seen)
}

func TestStore_UpdateEventChanges(t *testing.T) {
	bus := event.NewBus(nil)
	var events []event.Event
	bus.Subscribe(func(ev event.Event) {
		events = append(events, ev)
	})

	store := NewStore("g1", "/src/project", Options{Bus: bus})
	a := testNode("src/a", graph.NodeModule, "a")
	b := testNode("src/b", graph.NodeModule, "b")
	require.NoError(t, store.UpsertNode(a))
	require.NoError(t, store.UpsertNode(b))

	t.Run("added events carry no changes", func(t *testing.T) {
		require.Len(t, events, 2)
		assert.Empty(t, events[0].Changes)
	})

	t.Run("node update lists the changed fields", func(t *testing.T) {
		updated := a.Clone()
		updated.Tags = []string{"security"}
		updated.Metadata.Complexity = 12
		require.NoError(t, store.UpsertNode(updated))

		last := events[len(events)-1]
		assert.Equal(t, event.NodeUpdated, last.Type)
		assert.Equal(t, []string{"tags", "metadata"}, last.Changes)
	})

	t.Run("identical re-report updates with no changes", func(t *testing.T) {
		require.NoError(t, store.UpsertNode(b.Clone()))
		last := events[len(events)-1]
		assert.Equal(t, event.NodeUpdated, last.Type)
		assert.Empty(t, last.Changes)
	})

	t.Run("relationship update lists the changed fields", func(t *testing.T) {
		rel := testRel(a, b, graph.RelImports)
		require.NoError(t, store.UpsertRelationship(rel))

		rel.Weight = 0.8
		require.NoError(t, store.UpsertRelationship(rel))

		last := events[len(events)-1]
		assert.Equal(t, event.RelationshipUpdated, last.Type)
		assert.Equal(t, []string{"weight"}, last.Changes)
	})
}

func TestStore_SnapshotRestore(t *testing.T) {
	store := NewStore("g1", "/src/project", Options{})
	a := testNode("src/a", graph.NodeModule, "a")
	require.NoError(t, store.UpsertNode(a))
	store.Statistics() // settle derived statistics before capturing

	before := store.Snapshot()
	beforeBytes, err := graph.Encode(before)
	require.NoError(t, err)

	b := testNode("src/b", graph.NodeModule, "b")
	require.NoError(t, store.UpsertNode(b))
	require.NoError(t, store.UpsertRelationship(testRel(a, b, graph.RelImports)))
	assert.Equal(t, 2, store.NodeCount())

	store.Restore(before)

	assert.Equal(t, 1, store.NodeCount())
	assert.Equal(t, 0, store.RelationshipCount())

	afterBytes, err := graph.Encode(store.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, beforeBytes, afterBytes)
}

func TestStore_Statistics(t *testing.T) {
	store := NewStore("g1", "/src/project", Options{})
	a := testNode("src/a", graph.NodeModule, "a")
	b := testNode("src/b", graph.NodeFunction, "b")
	require.NoError(t, store.UpsertNode(a))
	require.NoError(t, store.UpsertNode(b))
	require.NoError(t, store.UpsertRelationship(testRel(a, b, graph.RelCalls)))

	stats := store.Statistics()
	assert.Equal(t, 2, stats.NodeCount)
	assert.Equal(t, 1, stats.RelationshipCount)
	assert.Equal(t, 1, stats.NodesByType[graph.NodeModule])
	assert.Equal(t, 1, stats.RelationshipsByType[graph.RelCalls])
	assert.InDelta(t, 1.0, stats.AvgConnectivity, 0.001)

	t.Run("derived metrics refresh after mutations", func(t *testing.T) {
		c := testNode("src/c", graph.NodeModule, "c")
		require.NoError(t, store.UpsertNode(c))

		fresh := store.Statistics()
		assert.Equal(t, 3, fresh.NodeCount)
		assert.InDelta(t, 2.0/3.0, fresh.AvgConnectivity, 0.001)
	})

	t.Run("returned statistics are detached", func(t *testing.T) {
		stats := store.Statistics()
		stats.NodesByType[graph.NodeModule] = 99
		assert.NotEqual(t, 99, store.Statistics().NodesByType[graph.NodeModule])
	})
}

func TestStore_Version(t *testing.T) {
	store := NewStore("g1", "/src/project", Options{})
	v0 := store.Version()

	require.NoError(t, store.UpsertNode(testNode("src/a", graph.NodeModule, "a")))
	assert.Equal(t, v0+1, store.Version())

	require.NoError(t, store.UpsertNode(testNode("src/b", graph.NodeModule, "b")))
	assert.Equal(t, v0+2, store.Version())
}

func TestStore_Lookups(t *testing.T) {
	store := NewStore("g1", "/src/project", Options{})
	mod := testNode("src/auth", graph.NodeModule, "auth")
	mod.Tags = []string{"security"}
	fn := testNode("src/auth/login.go", graph.NodeFunction, "Login")
	require.NoError(t, store.UpsertNode(mod))
	require.NoError(t, store.UpsertNode(fn))

	t.Run("by type", func(t *testing.T) {
		assert.ElementsMatch(t, []graph.NodeID{mod.ID}, store.NodeIDsByType(graph.NodeModule))
		assert.ElementsMatch(t, []graph.NodeID{mod.ID, fn.ID}, store.NodeIDsByType())
	})

	t.Run("repeated type yields each node once", func(t *testing.T) {
		ids := store.NodeIDsByType(graph.NodeModule, graph.NodeModule, graph.NodeFunction)
		assert.ElementsMatch(t, []graph.NodeID{mod.ID, fn.ID}, ids)
	})

	t.Run("by path and type", func(t *testing.T) {
		got, err := store.NodeByPath("src/auth", graph.NodeModule)
		require.NoError(t, err)
		assert.Equal(t, mod.ID, got.ID)

		_, err = store.NodeByPath("src/auth", graph.NodeClass)
		assert.ErrorIs(t, err, ErrNodeNotFound)
	})

	t.Run("all identities at a path", func(t *testing.T) {
		nodes := store.NodesAtPath("src/auth")
		require.Len(t, nodes, 1)
		assert.Equal(t, mod.ID, nodes[0].ID)
		assert.Empty(t, store.NodesAtPath("src/nowhere"))
	})

	t.Run("by tag", func(t *testing.T) {
		assert.ElementsMatch(t, []graph.NodeID{mod.ID}, store.NodeIDsByTag("security"))
		assert.Empty(t, store.NodeIDsByTag("no-such-tag"))
	})
}

func TestStore_Fulltext(t *testing.T) {
	store := NewStore("g1", "/src/project", Options{})

	login := testNode("src/auth/login.go", graph.NodeFunction, "Login")
	login.Semantics = &graph.SemanticInfo{Purpose: "authenticate a user against the credential store"}
	parser := testNode("src/parse.go", graph.NodeFunction, "Parse")
	parser.Metadata.Documentation = "parses configuration files"
	require.NoError(t, store.UpsertNode(login))
	require.NoError(t, store.UpsertNode(parser))

	t.Run("purpose-only token is found", func(t *testing.T) {
		scores := store.FulltextLookup(Tokenize("credential"), false)
		require.Contains(t, scores, login.ID)
		assert.NotContains(t, scores, parser.ID)
	})

	t.Run("name match outranks text match", func(t *testing.T) {
		// "login" appears in the name of one node; give the other node the
		// same token in its documentation only.
		other := testNode("src/session.go", graph.NodeFunction, "Session")
		other.Metadata.Documentation = "manages login sessions"
		require.NoError(t, store.UpsertNode(other))

		scores := store.FulltextLookup(Tokenize("login"), false)
		require.Contains(t, scores, login.ID)
		require.Contains(t, scores, other.ID)
		assert.Greater(t, scores[login.ID], scores[other.ID])
	})

	t.Run("misspelling matches only with fuzzy", func(t *testing.T) {
		exact := store.FulltextLookup(Tokenize("credentail"), false)
		assert.NotContains(t, exact, login.ID)

		fuzzy := store.FulltextLookup(Tokenize("credentail"), true)
		assert.Contains(t, fuzzy, login.ID)
	})

	t.Run("reindex drops stale tokens", func(t *testing.T) {
		login.Semantics = &graph.SemanticInfo{Purpose: "verify a session token"}
		require.NoError(t, store.UpsertNode(login))

		scores := store.FulltextLookup(Tokenize("credential"), false)
		assert.NotContains(t, scores, login.ID)
	})
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"authenticate", "user"}, tokenize("Authenticate the user!"))
	assert.Nil(t, tokenize(""))
	assert.Nil(t, tokenize("a of the"))
	assert.Equal(t, []string{"http2", "parser"}, tokenize("HTTP2-parser"))
}

func TestBoundedEditDistance(t *testing.T) {
	assert.Equal(t, 0, boundedEditDistance("token", "token", 2))
	assert.Equal(t, 1, boundedEditDistance("token", "toke", 2))
	assert.Equal(t, 2, boundedEditDistance("token", "tkoen", 2))
	assert.Equal(t, -1, boundedEditDistance("token", "completely", 2))
	assert.Equal(t, -1, boundedEditDistance("ab", "abcd", 1))
}
