package query

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kgraphdb/kgraph/pkg/graph"
	"github.com/kgraphdb/kgraph/pkg/registry"
	"github.com/kgraphdb/kgraph/pkg/storage"
)

// Engine answers queries against registered graphs. It holds no per-query
// state; a single Engine serves concurrent callers.
type Engine struct {
	reg    *registry.Registry
	logger *slog.Logger
}

// NewEngine creates an engine over a registry. A nil logger falls back to
// slog.Default().
func NewEngine(reg *registry.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{reg: reg, logger: logger}
}

// ctxErr translates a context failure into the engine's sentinel.
func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return nil
}

// Find evaluates a declarative query: type selection via the type index,
// where-conditions, multi-key ordering, then pagination. Validation happens
// before evaluation, so a malformed clause fails the whole query.
func (e *Engine) Find(ctx context.Context, graphID string, q Query) (*Result, error) {
	start := time.Now()

	store, err := e.reg.Get(graphID)
	if err != nil {
		return nil, err
	}

	for _, t := range q.Types {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: unknown node type %q", ErrInvalidQuery, t)
		}
	}
	preds, err := compileConditions(q.Where)
	if err != nil {
		return nil, err
	}
	if err := validateOrderBy(q.OrderBy); err != nil {
		return nil, err
	}
	if q.Limit < 0 || q.Offset < 0 {
		return nil, fmt.Errorf("%w: negative limit or offset", ErrInvalidQuery)
	}

	var matched []*graph.Node
	for _, id := range store.NodeIDsByType(q.Types...) {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		node, err := store.GetNode(id)
		if err != nil {
			// Concurrent removal between the ID scan and the fetch.
			continue
		}
		if evaluate(node, q.Where, preds) {
			matched = append(matched, node)
		}
	}

	// Sort even without explicit keys: compareNodes falls through to the ID
	// tie-break, so identical queries always return identical orderings.
	sort.SliceStable(matched, func(i, j int) bool {
		return compareNodes(matched[i], matched[j], q.OrderBy)
	})

	total := len(matched)
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}

	res := &Result{Nodes: matched, TotalCount: total}
	if q.IncludeRelationships {
		res.Relationships = e.incidentRelationships(store, matched)
	}
	res.Took = time.Since(start)

	e.logger.Debug("query evaluated",
		"graph", graphID,
		"matched", total,
		"returned", len(res.Nodes),
		"took", res.Took)
	return res, nil
}

// incidentRelationships collects the deduplicated relationships touching any
// returned node, sorted by ID.
func (e *Engine) incidentRelationships(store *storage.Store, nodes []*graph.Node) []*graph.Relationship {
	seen := make(map[graph.RelationshipID]*graph.Relationship)
	for _, node := range nodes {
		rels, err := store.GetRelationshipsFor(node.ID, storage.DirectionBoth)
		if err != nil {
			continue
		}
		for _, rel := range rels {
			seen[rel.ID] = rel
		}
	}

	out := make([]*graph.Relationship, 0, len(seen))
	for _, rel := range seen {
		out = append(out, rel)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
