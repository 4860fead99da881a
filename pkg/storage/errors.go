package storage

import "errors"

// Structural integrity errors. Mutations that would violate graph integrity
// are rejected up front; the store never holds a dangling relationship or a
// node with a broken identity.
var (
	// ErrInvalidNode means required identity fields are missing, the ID does
	// not match the (path, type, name) derivation, or the path index already
	// holds a different node for the same path and type.
	ErrInvalidNode = errors.New("invalid node")

	// ErrUnknownEndpoint means a relationship references a node ID absent
	// from the node map at commit time.
	ErrUnknownEndpoint = errors.New("unknown endpoint")

	// ErrDanglingRelationship means a node removal with cascade disabled
	// would leave relationships referencing the removed node.
	ErrDanglingRelationship = errors.New("dangling relationship")

	// ErrNodeNotFound is returned by lookups and removals for unknown node IDs.
	ErrNodeNotFound = errors.New("node not found")

	// ErrRelationshipNotFound is returned for unknown relationship IDs.
	ErrRelationshipNotFound = errors.New("relationship not found")
)
