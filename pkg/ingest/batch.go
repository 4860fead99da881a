// Package ingest applies generator-produced change batches to a graph store.
//
// The external Generator parses source and emits, per changed artifact, the
// node payload plus that node's outgoing relationships. The updater here never
// parses source itself; it validates payloads, applies them transactionally,
// and keeps relationship ownership asymmetric: each node is authoritative for
// its own outgoing edges, and its incoming edges are trued up when the other
// endpoint is re-analyzed. That asymmetry is what makes a file-level change
// cheap — no global relationship re-scan.
package ingest

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/kgraphdb/kgraph/pkg/graph"
)

// Artifact is one added or modified source artifact: its node payload and the
// complete set of outgoing relationships the generator observed for it.
// Omitting a previously-reported outgoing edge removes it.
type Artifact struct {
	Path     string                `json:"path" validate:"required"`
	Node     *graph.Node           `json:"node" validate:"required"`
	Outgoing []*graph.Relationship `json:"outgoingRelationships,omitempty"`
}

// Batch is one logical transaction of changes. Within a batch, removals apply
// first, then artifacts in the order given.
type Batch struct {
	// ID identifies the batch in logs and failure reports. Assigned if empty.
	ID string `json:"id"`

	Added    []Artifact `json:"added,omitempty"`
	Modified []Artifact `json:"modified,omitempty"`

	// Removed lists artifact paths whose nodes (all identities at the path)
	// should be removed, relationships cascading.
	Removed []string `json:"removed,omitempty"`
}

// ensureID assigns a batch ID when the generator did not provide one.
func (b *Batch) ensureID() {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
}

// artifacts returns added and modified artifacts in application order.
func (b *Batch) artifacts() []Artifact {
	out := make([]Artifact, 0, len(b.Added)+len(b.Modified))
	out = append(out, b.Added...)
	out = append(out, b.Modified...)
	return out
}

// validateArtifact checks one artifact's payload. Failures here are
// recoverable: the artifact is skipped, the batch proceeds.
func validateArtifact(v *validator.Validate, a Artifact) error {
	if err := v.Struct(a); err != nil {
		return fmt.Errorf("malformed artifact: %w", err)
	}
	if a.Node.Path != a.Path {
		return fmt.Errorf("node path %q does not match artifact path %q", a.Node.Path, a.Path)
	}
	if !a.Node.Type.Valid() {
		return fmt.Errorf("unknown node type %q", a.Node.Type)
	}
	if a.Node.Name == "" {
		return fmt.Errorf("node name is required")
	}
	if len(a.Node.Metadata.Extra) > graph.MaxMetadataExtra {
		return fmt.Errorf("metadata extra map exceeds %d entries", graph.MaxMetadataExtra)
	}

	if a.Node.Semantics != nil {
		for _, p := range a.Node.Semantics.Patterns {
			if p.Confidence < 0 || p.Confidence > 1 {
				return fmt.Errorf("pattern %q confidence %v outside [0, 1]", p.Name, p.Confidence)
			}
		}
	}
	for _, es := range a.Node.Errors {
		switch es.Severity {
		case graph.SeverityError, graph.SeverityWarning, graph.SeverityInfo:
		default:
			return fmt.Errorf("unknown error severity %q", es.Severity)
		}
	}

	nodeID := graph.NewNodeID(a.Path, a.Node.Type, a.Node.Name)
	for i, rel := range a.Outgoing {
		if rel == nil {
			return fmt.Errorf("outgoing relationship %d is nil", i)
		}
		if !rel.Type.Valid() {
			return fmt.Errorf("outgoing relationship %d: unknown type %q", i, rel.Type)
		}
		if rel.From != "" && rel.From != nodeID {
			return fmt.Errorf("outgoing relationship %d: from %q is not this artifact's node", i, rel.From)
		}
		if rel.To == "" {
			return fmt.Errorf("outgoing relationship %d: missing target", i)
		}
	}
	return nil
}
