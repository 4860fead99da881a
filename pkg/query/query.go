// Package query evaluates declarative queries and graph algorithms against a
// graph store.
//
// The Engine is stateless and read-only: every operation resolves a graph ID
// through the registry, reads through the store's index-backed accessors, and
// never mutates anything. Long-running operations (shortest path, similarity,
// structural analysis) check their context at each traversal step so callers
// can cancel or deadline-bound them.
package query

import (
	"time"

	"github.com/kgraphdb/kgraph/pkg/graph"
)

// Operator is a where-condition comparison.
type Operator string

// Operators.
const (
	OpEquals     Operator = "equals"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
	OpMatches    Operator = "matches"
	OpGreater    Operator = "greater"
	OpLess       Operator = "less"
	OpIn         Operator = "in"
	OpExists     Operator = "exists"
)

// Connector chains a condition to the one before it. The default between
// consecutive conditions is And.
type Connector string

// Connectors.
const (
	And Connector = "and"
	Or  Connector = "or"
)

// Condition is one where-clause entry. Connector applies between this
// condition and the previous one and is ignored on the first condition.
type Condition struct {
	Field     string    `json:"field"`
	Operator  Operator  `json:"operator"`
	Value     any       `json:"value,omitempty"`
	Connector Connector `json:"connector,omitempty"`
}

// OrderBy is one sort key. Keys apply in order; ties after all keys are
// broken by node ID so identical queries return identical orderings.
type OrderBy struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending,omitempty"`
}

// Query is a transient, stateless value object describing one selection.
// Construct per call; a Query is never persisted.
type Query struct {
	// Types restricts candidates via the type index. Empty means all nodes.
	Types []graph.NodeType `json:"types,omitempty"`

	Where   []Condition `json:"where,omitempty"`
	OrderBy []OrderBy   `json:"orderBy,omitempty"`

	// Limit caps returned nodes; zero means no cap. Offset skips results
	// after sorting. TotalCount in the result is always pre-limit.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// IncludeRelationships adds the relationships incident to matched nodes
	// to the result.
	IncludeRelationships bool `json:"includeRelationships,omitempty"`
}

// Result is the outcome of Engine.Find.
type Result struct {
	Nodes         []*graph.Node         `json:"nodes"`
	Relationships []*graph.Relationship `json:"relationships,omitempty"`

	// TotalCount is the match count before limit/offset.
	TotalCount int           `json:"totalCount"`
	Took       time.Duration `json:"took"`
}

// Path is the outcome of Engine.FindShortestPath. Found distinguishes the
// valid "no path exists" outcome from an error.
type Path struct {
	Found         bool                  `json:"found"`
	Nodes         []*graph.Node         `json:"nodes,omitempty"`
	Relationships []*graph.Relationship `json:"relationships,omitempty"`
	Length        int                   `json:"length"`
}

// Hit is one ranked full-text or similarity result.
type Hit struct {
	Node  *graph.Node `json:"node"`
	Score float64     `json:"score"`
}

// SearchOptions tunes full-text search.
type SearchOptions struct {
	// Fuzzy widens token matching to a bounded edit distance. When false,
	// lookups degrade gracefully to exact-token matching.
	Fuzzy bool `json:"fuzzy,omitempty"`
	Limit int  `json:"limit,omitempty"`
}

// Weights balances the similarity components. The convention is that the
// three sum to 1.0; this is documented, not enforced.
type Weights struct {
	Structural   float64 `json:"structural"`
	Semantic     float64 `json:"semantic"`
	Relationship float64 `json:"relationship"`
}

// DefaultWeights is the balance used when the caller passes a zero Weights.
var DefaultWeights = Weights{Structural: 0.4, Semantic: 0.3, Relationship: 0.3}

// Report is the outcome of Engine.Analyze: connected-component clusters and
// dependency cycles. Both are whole-graph computations meant to be invoked
// deliberately, not per query.
type Report struct {
	// Clusters are connected components over all relationship types, each a
	// sorted node-ID list, largest cluster first.
	Clusters [][]graph.NodeID `json:"clusters"`

	// Cycles are distinct dependency cycles (depends_on/imports/calls), each
	// an ordered node-ID list starting at its smallest member.
	Cycles [][]graph.NodeID `json:"cycles"`

	Took time.Duration `json:"took"`
}
