package graph

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Export is the stable serialized form of a graph: node and relationship
// slices in deterministic (ID-sorted) order plus graph metadata. This is the
// shape written to persistent storage and produced by the CLI export command.
// Indices are never serialized; they are rebuilt on load.
type Export struct {
	ID            string          `json:"id"`
	ProjectPath   string          `json:"projectPath"`
	Nodes         []*Node         `json:"nodes"`
	Relationships []*Relationship `json:"relationships"`
	Metadata      GraphMetadata   `json:"metadata"`
	Statistics    Statistics      `json:"statistics"`
	LastUpdated   time.Time       `json:"lastUpdated"`
	Version       uint64          `json:"version"`
}

// ToExport converts a graph to its serialized form. Nodes and relationships
// are sorted by ID so two exports of the same graph are byte-identical.
func (g *Graph) ToExport() *Export {
	export := &Export{
		ID:            g.ID,
		ProjectPath:   g.ProjectPath,
		Nodes:         make([]*Node, 0, len(g.Nodes)),
		Relationships: make([]*Relationship, 0, len(g.Relationships)),
		Metadata:      g.Metadata,
		Statistics:    g.Statistics,
		LastUpdated:   g.LastUpdated,
		Version:       g.Version,
	}

	for _, node := range g.Nodes {
		export.Nodes = append(export.Nodes, node)
	}
	sort.Slice(export.Nodes, func(i, j int) bool {
		return export.Nodes[i].ID < export.Nodes[j].ID
	})

	for _, rel := range g.Relationships {
		export.Relationships = append(export.Relationships, rel)
	}
	sort.Slice(export.Relationships, func(i, j int) bool {
		return export.Relationships[i].ID < export.Relationships[j].ID
	})

	return export
}

// FromExport rebuilds a graph from its serialized form.
func FromExport(export *Export) *Graph {
	g := &Graph{
		ID:            export.ID,
		ProjectPath:   export.ProjectPath,
		Nodes:         make(map[NodeID]*Node, len(export.Nodes)),
		Relationships: make(map[RelationshipID]*Relationship, len(export.Relationships)),
		Metadata:      export.Metadata,
		Statistics:    export.Statistics,
		LastUpdated:   export.LastUpdated,
		Version:       export.Version,
	}

	for _, node := range export.Nodes {
		g.Nodes[node.ID] = node
	}
	for _, rel := range export.Relationships {
		g.Relationships[rel.ID] = rel
	}

	return g
}

// Encode serializes a graph to JSON.
func Encode(g *Graph) ([]byte, error) {
	data, err := json.Marshal(g.ToExport())
	if err != nil {
		return nil, fmt.Errorf("encode graph %q: %w", g.ID, err)
	}
	return data, nil
}

// Decode deserializes a graph from JSON produced by Encode.
func Decode(data []byte) (*Graph, error) {
	var export Export
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	return FromExport(&export), nil
}
