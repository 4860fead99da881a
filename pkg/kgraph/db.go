// Package kgraph provides the main API for embedded kgraph usage.
//
// A DB ties the pieces together: one BadgerDB-backed persistence layer, a
// registry of open project graphs, one incremental updater per project, a
// shared event bus, and a query engine over everything. Applications that
// embed the knowledge graph use this package; the underlying packages stay
// usable on their own for callers that want finer control.
//
// Example Usage:
//
//	cfg, err := config.Load("")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	db, err := kgraph.Open(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	store, err := db.CreateProject("/src/myproject")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	res, err := db.Apply(ctx, "/src/myproject", batch)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("applied %d nodes\n", res.NodesUpserted)
//
//	hits, err := db.Search(ctx, store.GraphID(), "authentication", 10)
//
// Data Flow:
//  1. An external generator parses source and produces change batches.
//  2. Apply routes each batch through the project's single updater.
//  3. The store mutates graph and indices atomically and publishes events.
//  4. Dashboards and report generators consume events via Bus().
//  5. Queries read through the engine; they never mutate.
package kgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/kgraphdb/kgraph/pkg/config"
	"github.com/kgraphdb/kgraph/pkg/event"
	"github.com/kgraphdb/kgraph/pkg/graph"
	"github.com/kgraphdb/kgraph/pkg/ingest"
	"github.com/kgraphdb/kgraph/pkg/query"
	"github.com/kgraphdb/kgraph/pkg/registry"
	"github.com/kgraphdb/kgraph/pkg/storage"
)

// ErrClosed is returned by operations on a closed DB.
var ErrClosed = errors.New("database is closed")

// DB is an embedded knowledge graph database.
type DB struct {
	mu       sync.Mutex
	closed   bool
	updaters map[string]*ingest.Updater // keyed by project path

	cfg     *config.Config
	persist *storage.BadgerStore
	reg     *registry.Registry
	engine  *query.Engine
	bus     *event.Bus
	logger  *slog.Logger
}

// Open opens the database: it starts the persistence layer and loads every
// previously persisted project graph into the registry, rebuilding indices
// and statistics per graph. A nil cfg uses config defaults.
func Open(cfg *config.Config) (*DB, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := newLogger(cfg.Logging)

	persist, err := storage.NewBadgerStoreWithOptions(cfg.Storage.BadgerOptions())
	if err != nil {
		return nil, err
	}

	bus := event.NewBus(logger)
	reg := registry.New()

	db := &DB{
		updaters: make(map[string]*ingest.Updater),
		cfg:      cfg,
		persist:  persist,
		reg:      reg,
		engine:   query.NewEngine(reg, logger),
		bus:      bus,
		logger:   logger,
	}

	projects, err := persist.ListProjects()
	if err != nil {
		persist.Close()
		return nil, err
	}
	for _, path := range projects {
		g, err := persist.LoadGraph(path)
		if err != nil {
			persist.Close()
			return nil, fmt.Errorf("load project %q: %w", path, err)
		}
		db.register(storage.Open(g, storage.Options{Bus: bus, Logger: logger}))
	}

	logger.Info("database opened",
		"data_dir", cfg.Storage.DataDir,
		"in_memory", cfg.Storage.InMemory,
		"projects", len(projects))
	return db, nil
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func (db *DB) register(store *storage.Store) {
	db.reg.Register(store)
	db.updaters[store.ProjectPath()] = ingest.NewUpdater(store, ingest.Options{
		Logger:       db.logger,
		MaxBatchSize: db.cfg.Ingest.MaxBatchSize,
	})
}

// checkOpen guards operations against a closed DB. Caller holds db.mu.
func (db *DB) checkOpen() error {
	if db.closed {
		return ErrClosed
	}
	return nil
}

// ensureOpen is checkOpen for callers that do not otherwise hold db.mu.
func (db *DB) ensureOpen() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.checkOpen()
}

// GraphIDFor derives the stable graph ID for a project path.
func GraphIDFor(projectPath string) string {
	return graph.ContentHash([]byte(projectPath))[:32]
}

// CreateProject creates and registers an empty graph for a project path. If
// the project is already open, its store is returned unchanged.
func (db *DB) CreateProject(projectPath string) (*storage.Store, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.checkOpen(); err != nil {
		return nil, err
	}

	if store, err := db.reg.GetByProject(projectPath); err == nil {
		return store, nil
	}

	store := storage.NewStore(GraphIDFor(projectPath), projectPath, storage.Options{
		Bus:    db.bus,
		Logger: db.logger,
	})
	db.register(store)
	db.logger.Info("project created", "project", projectPath, "graph", store.GraphID())
	return store, nil
}

// Project resolves an open project's store.
func (db *DB) Project(projectPath string) (*storage.Store, error) {
	if err := db.ensureOpen(); err != nil {
		return nil, err
	}
	return db.reg.GetByProject(projectPath)
}

// Projects returns the open project paths, sorted. Empty after Close.
func (db *DB) Projects() []string {
	if err := db.ensureOpen(); err != nil {
		return nil
	}
	return db.reg.Projects()
}

// RemoveProject closes out a project: it is dropped from the registry and,
// when purge is set, its persisted blob is deleted as well.
func (db *DB) RemoveProject(projectPath string, purge bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.checkOpen(); err != nil {
		return err
	}

	if _, err := db.reg.Remove(projectPath); err != nil {
		return err
	}
	delete(db.updaters, projectPath)

	if purge {
		if err := db.persist.DeleteGraph(projectPath); err != nil {
			return err
		}
	}
	db.logger.Info("project removed", "project", projectPath, "purged", purge)
	return nil
}

// Apply routes a change batch to the project's updater. Batches for the same
// project are serialized; batches for different projects run independently.
func (db *DB) Apply(ctx context.Context, projectPath string, batch ingest.Batch) (*ingest.Result, error) {
	db.mu.Lock()
	if err := db.checkOpen(); err != nil {
		db.mu.Unlock()
		return nil, err
	}
	updater, ok := db.updaters[projectPath]
	db.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: project %q", registry.ErrGraphNotFound, projectPath)
	}
	return updater.Apply(ctx, batch)
}

// Save persists a project's current graph state.
func (db *DB) Save(projectPath string) error {
	if err := db.ensureOpen(); err != nil {
		return err
	}
	store, err := db.reg.GetByProject(projectPath)
	if err != nil {
		return err
	}
	return db.persist.SaveGraph(store.Snapshot())
}

// SaveAll persists every open project. The first failure aborts.
func (db *DB) SaveAll() error {
	if err := db.ensureOpen(); err != nil {
		return err
	}
	for _, path := range db.reg.Projects() {
		if err := db.Save(path); err != nil {
			return err
		}
	}
	return nil
}

// Engine exposes the query engine for callers that want the full query API.
func (db *DB) Engine() *query.Engine {
	return db.engine
}

// Bus exposes the event bus for subscribers (dashboards, report generators).
func (db *DB) Bus() *event.Bus {
	return db.bus
}

// queryCtx applies the configured deadline when the caller's context has none.
func (db *DB) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || db.cfg.Query.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, db.cfg.Query.Timeout)
}

// Find evaluates a declarative query, filling in the configured default limit
// when the query has none.
func (db *DB) Find(ctx context.Context, graphID string, q query.Query) (*query.Result, error) {
	ctx, cancel := db.queryCtx(ctx)
	defer cancel()

	if q.Limit == 0 {
		q.Limit = db.cfg.Query.DefaultLimit
	}
	return db.engine.Find(ctx, graphID, q)
}

// Search ranks nodes against free text, with fuzziness per configuration.
func (db *DB) Search(ctx context.Context, graphID, text string, limit int) ([]query.Hit, error) {
	ctx, cancel := db.queryCtx(ctx)
	defer cancel()

	if limit == 0 {
		limit = db.cfg.Query.DefaultLimit
	}
	return db.engine.Search(ctx, graphID, text, query.SearchOptions{
		Fuzzy: db.cfg.Query.FuzzySearch,
		Limit: limit,
	})
}

// FindShortestPath runs a depth-capped BFS between two nodes.
func (db *DB) FindShortestPath(ctx context.Context, graphID string, from, to graph.NodeID, types ...graph.RelationshipType) (*query.Path, error) {
	ctx, cancel := db.queryCtx(ctx)
	defer cancel()

	return db.engine.FindShortestPath(ctx, graphID, from, to, query.PathOptions{
		Types:    types,
		MaxDepth: db.cfg.Query.MaxPathDepth,
	})
}

// FindSimilar ranks nodes by similarity to a seed node using default weights.
func (db *DB) FindSimilar(ctx context.Context, graphID string, seed graph.NodeID, limit int) ([]query.Hit, error) {
	ctx, cancel := db.queryCtx(ctx)
	defer cancel()

	if limit == 0 {
		limit = db.cfg.Query.DefaultLimit
	}
	return db.engine.FindSimilar(ctx, graphID, seed, query.DefaultWeights, limit)
}

// Analyze runs whole-graph structural analysis (clusters and cycles).
func (db *DB) Analyze(ctx context.Context, graphID string) (*query.Report, error) {
	ctx, cancel := db.queryCtx(ctx)
	defer cancel()
	return db.engine.Analyze(ctx, graphID)
}

// Stats returns a project's current statistics.
func (db *DB) Stats(projectPath string) (graph.Statistics, error) {
	if err := db.ensureOpen(); err != nil {
		return graph.Statistics{}, err
	}
	store, err := db.reg.GetByProject(projectPath)
	if err != nil {
		return graph.Statistics{}, err
	}
	return store.Statistics(), nil
}

// Close persists every open project and closes the database. Idempotent.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	var firstErr error
	for _, path := range db.reg.Projects() {
		store, err := db.reg.GetByProject(path)
		if err != nil {
			continue
		}
		if err := db.persist.SaveGraph(store.Snapshot()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := db.persist.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	db.logger.Info("database closed")
	return firstErr
}
