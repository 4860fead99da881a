package graph

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// idSeparator keeps identity components from colliding across field
// boundaries ("a/b"+"c" vs "a"+"b/c").
const idSeparator = "\x00"

// NewNodeID derives the deterministic node ID from the identity triple
// (path, type, name). Re-analyzing the same artifact always yields the same
// ID, which is what lets incremental updates match old and new nodes.
func NewNodeID(path string, t NodeType, name string) NodeID {
	sum := blake2b.Sum256([]byte(path + idSeparator + string(t) + idSeparator + name))
	return NodeID(hex.EncodeToString(sum[:16]))
}

// NewRelationshipID derives the deterministic relationship ID from the edge
// triple (from, to, type). A generator re-reporting the same edge produces
// the same ID, so re-ingest upserts instead of duplicating.
func NewRelationshipID(from, to NodeID, t RelationshipType) RelationshipID {
	sum := blake2b.Sum256([]byte(string(from) + idSeparator + string(to) + idSeparator + string(t)))
	return RelationshipID(hex.EncodeToString(sum[:16]))
}

// ContentHash hashes raw artifact content for change detection.
func ContentHash(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
