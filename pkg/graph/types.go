// Package graph defines the knowledge graph data model.
//
// A knowledge graph represents a codebase as semantic units (modules, classes,
// functions, ...) connected by typed relationships (imports, calls, extends, ...).
// Nodes carry detected semantics (purpose, operations, data flow, patterns),
// quality metadata, and analysis error states.
//
// Design principles:
//   - Deterministic identity: a node's ID is derived from (path, type, name) so
//     re-analysis of the same artifact produces the same ID (see id.go).
//   - Closed metadata: per-node metadata uses typed fields plus a bounded
//     extension map, never an open any-typed bag.
//   - Value semantics at the boundary: the store owns Node/Relationship values;
//     everything else receives deep copies or holds IDs.
//
// Example:
//
//	node := &graph.Node{
//		ID:   graph.NewNodeID("src/auth/login.go", graph.NodeFunction, "Login"),
//		Type: graph.NodeFunction,
//		Name: "Login",
//		Path: "src/auth/login.go",
//		Tags: []string{"auth"},
//		Semantics: &graph.SemanticInfo{
//			Purpose: "authenticate a user against the credential store",
//		},
//	}
package graph

import (
	"time"
)

// NodeID is a strongly-typed unique identifier for graph nodes.
// IDs are deterministic across re-analysis; see NewNodeID.
type NodeID string

// RelationshipID is a strongly-typed unique identifier for relationships.
type RelationshipID string

// NodeType enumerates the semantic unit kinds a node can represent.
type NodeType string

// Node types.
const (
	NodeModule     NodeType = "module"
	NodeClass      NodeType = "class"
	NodeInterface  NodeType = "interface"
	NodeFunction   NodeType = "function"
	NodeVariable   NodeType = "variable"
	NodeTypeDef    NodeType = "type"
	NodeComponent  NodeType = "component"
	NodeService    NodeType = "service"
	NodeController NodeType = "controller"
	NodeModel      NodeType = "model"
	NodeUtility    NodeType = "utility"
	NodeTest       NodeType = "test"
	NodeConfig     NodeType = "config"
	NodeAsset      NodeType = "asset"
	NodeDirectory  NodeType = "directory"
)

var nodeTypes = map[NodeType]struct{}{
	NodeModule: {}, NodeClass: {}, NodeInterface: {}, NodeFunction: {},
	NodeVariable: {}, NodeTypeDef: {}, NodeComponent: {}, NodeService: {},
	NodeController: {}, NodeModel: {}, NodeUtility: {}, NodeTest: {},
	NodeConfig: {}, NodeAsset: {}, NodeDirectory: {},
}

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	_, ok := nodeTypes[t]
	return ok
}

// RelationshipType enumerates the edge kinds between nodes.
type RelationshipType string

// Relationship types.
const (
	RelImports    RelationshipType = "imports"
	RelExports    RelationshipType = "exports"
	RelExtends    RelationshipType = "extends"
	RelImplements RelationshipType = "implements"
	RelCalls      RelationshipType = "calls"
	RelUses       RelationshipType = "uses"
	RelContains   RelationshipType = "contains"
	RelTests      RelationshipType = "tests"
	RelConfigures RelationshipType = "configures"
	RelDependsOn  RelationshipType = "depends_on"
	RelSimilarTo  RelationshipType = "similar_to"
	RelRelatedTo  RelationshipType = "related_to"
)

var relationshipTypes = map[RelationshipType]struct{}{
	RelImports: {}, RelExports: {}, RelExtends: {}, RelImplements: {},
	RelCalls: {}, RelUses: {}, RelContains: {}, RelTests: {},
	RelConfigures: {}, RelDependsOn: {}, RelSimilarTo: {}, RelRelatedTo: {},
}

// Valid reports whether t is a known relationship type.
func (t RelationshipType) Valid() bool {
	_, ok := relationshipTypes[t]
	return ok
}

// DependencyEdgeTypes are the relationship types considered by cycle detection
// and dependency metrics.
var DependencyEdgeTypes = []RelationshipType{RelDependsOn, RelImports, RelCalls}

// MaxMetadataExtra bounds the per-node metadata extension map. Batches carrying
// nodes above this bound are rejected at ingest time.
const MaxMetadataExtra = 32

// Metadata holds per-node analysis metadata. The typed fields form a closed
// set; Extra is a bounded escape hatch for generator-specific annotations.
type Metadata struct {
	Language        string            `json:"language,omitempty"`
	Framework       string            `json:"framework,omitempty"`
	Exports         []string          `json:"exports,omitempty"`
	Imports         []string          `json:"imports,omitempty"`
	Complexity      float64           `json:"complexity,omitempty"`
	Maintainability float64           `json:"maintainability,omitempty"`
	LinesOfCode     int               `json:"linesOfCode,omitempty"`
	Documentation   string            `json:"documentation,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// OperationType classifies a declared operation of a semantic unit.
type OperationType string

// Operation types.
const (
	OpCreate      OperationType = "create"
	OpRead        OperationType = "read"
	OpUpdate      OperationType = "update"
	OpDelete      OperationType = "delete"
	OpTransform   OperationType = "transform"
	OpValidate    OperationType = "validate"
	OpCompute     OperationType = "compute"
	OpCommunicate OperationType = "communicate"
)

// Operation describes one operation a unit performs, with declared inputs,
// outputs, and side effects.
type Operation struct {
	Name        string        `json:"name"`
	Type        OperationType `json:"type"`
	Inputs      []string      `json:"inputs,omitempty"`
	Outputs     []string      `json:"outputs,omitempty"`
	SideEffects []string      `json:"sideEffects,omitempty"`
}

// DataFlow describes how data moves through a unit.
type DataFlow struct {
	Inputs          []string `json:"inputs,omitempty"`
	Outputs         []string `json:"outputs,omitempty"`
	Transformations []string `json:"transformations,omitempty"`
	Persistence     []string `json:"persistence,omitempty"`
	Streams         []string `json:"streams,omitempty"`
}

// Pattern is a detected design or code pattern with a confidence in [0, 1].
type Pattern struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description,omitempty"`
}

// SemanticInfo is the semantic annotation a generator attaches to a node.
type SemanticInfo struct {
	Purpose    string      `json:"purpose,omitempty"`
	Operations []Operation `json:"operations,omitempty"`
	DataFlow   DataFlow    `json:"dataFlow"`
	Patterns   []Pattern   `json:"patterns,omitempty"`
}

// Severity classifies an error state.
type Severity string

// Severities.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// ErrorState is one analysis finding attached to a node.
type ErrorState struct {
	Type     string    `json:"type"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	File     string    `json:"file,omitempty"`
	Line     int       `json:"line,omitempty"`
	Column   int       `json:"column,omitempty"`
	Fixable  bool      `json:"fixable,omitempty"`
	LastSeen time.Time `json:"lastSeen"`
}

// Node is one semantic unit in the graph.
//
// Nodes are exclusively owned by the store; callers receive deep copies and
// refer to nodes by ID elsewhere. Identity fields (Path, Type, Name) determine
// the ID and must not change after creation — a changed identity is a new node.
type Node struct {
	ID           NodeID        `json:"id"`
	Type         NodeType      `json:"type"`
	Name         string        `json:"name"`
	Path         string        `json:"path"`
	RelativePath string        `json:"relativePath,omitempty"`
	Hash         string        `json:"hash,omitempty"`
	Size         int64         `json:"size,omitempty"`
	LastModified time.Time     `json:"lastModified"`
	LastAnalyzed time.Time     `json:"lastAnalyzed"`
	Tags         []string      `json:"tags,omitempty"`
	Metadata     Metadata      `json:"metadata"`
	Semantics    *SemanticInfo `json:"semantics,omitempty"`
	Errors       []ErrorState  `json:"errors,omitempty"`
}

// RelationshipMetadata carries observation metadata for an edge.
type RelationshipMetadata struct {
	Frequency    int       `json:"frequency,omitempty"`
	Confidence   float64   `json:"confidence,omitempty"`
	Context      []string  `json:"context,omitempty"`
	LastObserved time.Time `json:"lastObserved"`
}

// Relationship is a directed, typed edge between two node IDs.
// Bidirectional marks edges that should be traversed in both directions
// (e.g. similar_to); the stored direction is still From -> To.
type Relationship struct {
	ID            RelationshipID       `json:"id"`
	From          NodeID               `json:"from"`
	To            NodeID               `json:"to"`
	Type          RelationshipType     `json:"type"`
	Bidirectional bool                 `json:"bidirectional,omitempty"`
	Weight        float64              `json:"weight,omitempty"`
	Metadata      RelationshipMetadata `json:"metadata"`
}

// GraphMetadata is the project-level summary of a graph.
type GraphMetadata struct {
	Language    string   `json:"language,omitempty"`
	TotalFiles  int      `json:"totalFiles,omitempty"`
	TotalLines  int      `json:"totalLines,omitempty"`
	EntryPoints []string `json:"entryPoints,omitempty"`
	Coverage    float64  `json:"coverage,omitempty"`
}

// DependencyMetrics summarizes dependency structure. Cycles are filled in by
// structural analysis, which runs on demand; unused and outdated nodes refresh
// with the lazy derived recompute.
type DependencyMetrics struct {
	Cycles      [][]NodeID `json:"cycles,omitempty"`
	UnusedNodes []NodeID   `json:"unusedNodes,omitempty"`

	// OutdatedNodes lists nodes whose artifact changed after it was last
	// analyzed, so the graph entry no longer reflects the source.
	OutdatedNodes []NodeID `json:"outdatedNodes,omitempty"`
}

// Statistics is a derived, cached view over a graph. Counter fields are
// maintained incrementally per mutation; derived fields (MaxDepth,
// AvgConnectivity) are recomputed lazily on first read after a mutation.
type Statistics struct {
	NodeCount           int                      `json:"nodeCount"`
	RelationshipCount   int                      `json:"relationshipCount"`
	MaxDepth            int                      `json:"maxDepth"`
	AvgConnectivity     float64                  `json:"avgConnectivity"`
	NodesByType         map[NodeType]int         `json:"nodesByType,omitempty"`
	RelationshipsByType map[RelationshipType]int `json:"relationshipsByType,omitempty"`
	ComplexityBuckets   map[string]int           `json:"complexityBuckets,omitempty"`
	PatternFrequency    map[string]int           `json:"patternFrequency,omitempty"`
	ErrorsBySeverity    map[Severity]int         `json:"errorsBySeverity,omitempty"`
	ErrorsByType        map[string]int           `json:"errorsByType,omitempty"`
	Dependencies        DependencyMetrics        `json:"dependencies"`
}

// Graph is the aggregate: all nodes and relationships for one analyzed
// project, plus derived metadata and statistics.
//
// A Graph value is plain data. Concurrency control, index maintenance, and
// invariant enforcement live in the storage layer.
type Graph struct {
	ID            string                           `json:"id"`
	ProjectPath   string                           `json:"projectPath"`
	Nodes         map[NodeID]*Node                 `json:"-"`
	Relationships map[RelationshipID]*Relationship `json:"-"`
	Metadata      GraphMetadata                    `json:"metadata"`
	Statistics    Statistics                       `json:"statistics"`
	LastUpdated   time.Time                        `json:"lastUpdated"`
	Version       uint64                           `json:"version"`
}

// New creates an empty graph for a project.
func New(id, projectPath string) *Graph {
	return &Graph{
		ID:            id,
		ProjectPath:   projectPath,
		Nodes:         make(map[NodeID]*Node),
		Relationships: make(map[RelationshipID]*Relationship),
		LastUpdated:   time.Now(),
	}
}
