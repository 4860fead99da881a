package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kgraphdb/kgraph/pkg/graph"
	"github.com/kgraphdb/kgraph/pkg/storage"
)

// Updater applies batches to one store. There must be exactly one updater per
// graph: batches are serialized through it, which is what gives the "changes
// apply in order, events fire in mutation order" guarantee without any
// cross-batch locking.
type Updater struct {
	store    *storage.Store
	validate *validator.Validate
	logger   *slog.Logger
	maxBatch int
}

// Options configures an Updater. Both fields may be zero: a nil Logger falls
// back to slog.Default(), a zero MaxBatchSize disables the size bound.
type Options struct {
	Logger *slog.Logger

	// MaxBatchSize rejects batches with more artifacts plus removals than
	// this, so callers chunk large initial scans and a single failed batch
	// never forces re-doing excessive work.
	MaxBatchSize int
}

// NewUpdater creates an updater for a store.
func NewUpdater(store *storage.Store, opts Options) *Updater {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		maxBatch: opts.MaxBatchSize,
	}
}

// Result summarizes a successfully applied batch. Skipped lists artifacts
// dropped for recoverable payload failures; the rest of the batch applied.
type Result struct {
	BatchID string `json:"batchId"`

	NodesUpserted         int `json:"nodesUpserted"`
	NodesRemoved          int `json:"nodesRemoved"`
	RelationshipsUpserted int `json:"relationshipsUpserted"`
	RelationshipsRemoved  int `json:"relationshipsRemoved"`

	Skipped []ArtifactFailure `json:"skipped,omitempty"`
	Took    time.Duration     `json:"took"`
}

// Apply applies one batch as a single logical transaction.
//
// Order of operations: snapshot; removals; node upserts for every artifact;
// then each artifact's outgoing-relationship sync. Nodes land before any
// relationship so edges may point at nodes introduced later in the same batch.
// The sync step removes previously-stored outgoing edges the generator no
// longer reports, then upserts the reported set.
//
// Payload-level failures (malformed artifact, bad confidence, foreign From)
// skip that artifact and are reported in Result.Skipped. Structural failures
// (unknown endpoint, store-rejected node) restore the snapshot and return an
// AnalysisError: the graph is left byte-for-byte equal to its pre-batch state.
func (u *Updater) Apply(ctx context.Context, batch Batch) (*Result, error) {
	start := time.Now()
	batch.ensureID()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if u.maxBatch > 0 {
		if size := len(batch.Added) + len(batch.Modified) + len(batch.Removed); size > u.maxBatch {
			return nil, fmt.Errorf("batch %s has %d changes, limit is %d", batch.ID, size, u.maxBatch)
		}
	}

	artifacts := batch.artifacts()
	res := &Result{BatchID: batch.ID}

	// Validate everything up front so skip decisions are settled before the
	// first mutation.
	valid := make([]bool, len(artifacts))
	for i, a := range artifacts {
		if err := validateArtifact(u.validate, a); err != nil {
			res.Skipped = append(res.Skipped, ArtifactFailure{
				Path:        a.Path,
				Err:         err,
				Message:     err.Error(),
				Recoverable: true,
			})
			continue
		}
		valid[i] = true
	}

	snapshot := u.store.Snapshot()
	rollback := func(path string, cause error) (*Result, error) {
		u.store.Restore(snapshot)
		failures := append(res.Skipped, ArtifactFailure{
			Path:    path,
			Err:     cause,
			Message: cause.Error(),
		})
		u.logger.Error("batch rolled back",
			"batch", batch.ID,
			"artifact", path,
			"error", cause)
		return nil, &AnalysisError{BatchID: batch.ID, Failures: failures}
	}

	for _, path := range batch.Removed {
		if err := ctx.Err(); err != nil {
			return rollback(path, err)
		}
		// A path can hold several identities (e.g. a module node and a
		// directory node); remove them all. An already-absent path is a no-op
		// so removal stays idempotent across retried batches.
		for _, node := range u.store.NodesAtPath(path) {
			if err := u.store.RemoveNode(node.ID, true); err != nil {
				return rollback(path, err)
			}
			res.NodesRemoved++
		}
	}

	for i, a := range artifacts {
		if !valid[i] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return rollback(a.Path, err)
		}
		if err := u.store.UpsertNode(a.Node); err != nil {
			return rollback(a.Path, fmt.Errorf("upsert node: %w", err))
		}
		res.NodesUpserted++
	}

	for i, a := range artifacts {
		if !valid[i] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return rollback(a.Path, err)
		}
		upserted, removed, err := u.syncOutgoing(a)
		if err != nil {
			return rollback(a.Path, err)
		}
		res.RelationshipsUpserted += upserted
		res.RelationshipsRemoved += removed
	}

	res.Took = time.Since(start)
	u.logger.Info("batch applied",
		"batch", batch.ID,
		"nodes_upserted", res.NodesUpserted,
		"nodes_removed", res.NodesRemoved,
		"relationships_upserted", res.RelationshipsUpserted,
		"relationships_removed", res.RelationshipsRemoved,
		"skipped", len(res.Skipped),
		"took", res.Took)
	return res, nil
}

// syncOutgoing makes the store's outgoing edges for an artifact's node match
// the reported set exactly. Only edges whose From is this node are touched;
// incoming edges belong to their own source artifacts.
func (u *Updater) syncOutgoing(a Artifact) (upserted, removed int, err error) {
	nodeID := a.Node.ID

	reported := make(map[graph.RelationshipID]struct{}, len(a.Outgoing))
	for _, rel := range a.Outgoing {
		rel.From = nodeID
		if rel.ID == "" {
			rel.ID = graph.NewRelationshipID(rel.From, rel.To, rel.Type)
		}
		reported[rel.ID] = struct{}{}
	}

	existing, err := u.store.GetRelationshipsFor(nodeID, storage.DirectionOut)
	if err != nil {
		return 0, 0, fmt.Errorf("list outgoing: %w", err)
	}
	for _, rel := range existing {
		if rel.From != nodeID {
			// Bidirectional edge owned by the other endpoint.
			continue
		}
		if _, ok := reported[rel.ID]; ok {
			continue
		}
		if err := u.store.RemoveRelationship(rel.ID); err != nil {
			return upserted, removed, fmt.Errorf("remove stale edge %s: %w", rel.ID, err)
		}
		removed++
	}

	for _, rel := range a.Outgoing {
		if err := u.store.UpsertRelationship(rel); err != nil {
			return upserted, removed, fmt.Errorf("upsert edge to %s: %w", rel.To, err)
		}
		upserted++
	}
	return upserted, removed, nil
}
