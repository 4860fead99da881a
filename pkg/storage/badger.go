package storage

import (
	"errors"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/kgraphdb/kgraph/pkg/graph"
)

// Key prefixes. Each persisted graph is a single blob keyed by project path;
// indices and statistics are never persisted — they are rebuilt when the
// graph is opened, so data and index can never diverge after out-of-band
// edits to the stored blob.
const (
	prefixGraph = byte(0x01) // graph:projectPath -> JSON(graph.Export)
)

// ErrGraphNotPersisted is returned when no blob exists for a project path.
var ErrGraphNotPersisted = errors.New("graph not persisted")

// BadgerStore persists graphs to disk using BadgerDB.
//
// The persistence layout is deliberately coarse: one blob per graph, written
// atomically in a single transaction. The knowledge graph workload is
// read-heavy with batched writes, so blob-per-graph keeps crash recovery
// simple (a graph is either fully written or not written) at the cost of
// rewriting the blob per save.
//
// Example:
//
//	persist, err := storage.NewBadgerStore("./data")
//	if err != nil {
//		return err
//	}
//	defer persist.Close()
//
//	if err := persist.SaveGraph(store.Snapshot()); err != nil {
//		return err
//	}
type BadgerStore struct {
	db     *badger.DB
	mu     sync.Mutex // serializes Close against writers
	closed bool
}

// BadgerOptions configures the persistence layer.
type BadgerOptions struct {
	// DataDir is the directory for data files. Ignored when InMemory is set.
	DataDir string

	// InMemory keeps all data in RAM. Useful for tests that want persistence
	// semantics without disk I/O.
	InMemory bool

	// SyncWrites forces fsync after each write. Slower but more durable.
	SyncWrites bool
}

// NewBadgerStore opens (or creates) a persistence store in dataDir.
func NewBadgerStore(dataDir string) (*BadgerStore, error) {
	return NewBadgerStoreWithOptions(BadgerOptions{DataDir: dataDir})
}

// NewBadgerStoreInMemory opens an in-memory store for testing.
func NewBadgerStoreInMemory() (*BadgerStore, error) {
	return NewBadgerStoreWithOptions(BadgerOptions{InMemory: true})
}

// NewBadgerStoreWithOptions opens a store with explicit options.
func NewBadgerStoreWithOptions(opts BadgerOptions) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)

	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}

	// Graph blobs are large values; keep memtables modest and push values to
	// the value log early.
	badgerOpts = badgerOpts.
		WithLogger(nil).
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithValueThreshold(1024)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	return &BadgerStore{db: db}, nil
}

func graphKey(projectPath string) []byte {
	return append([]byte{prefixGraph}, []byte(projectPath)...)
}

// SaveGraph writes a graph blob, replacing any previous blob for the same
// project path. The write is a single transaction.
func (b *BadgerStore) SaveGraph(g *graph.Graph) error {
	data, err := graph.Encode(g)
	if err != nil {
		return err
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(graphKey(g.ProjectPath), data)
	})
	if err != nil {
		return fmt.Errorf("save graph %q: %w", g.ProjectPath, err)
	}
	return nil
}

// LoadGraph reads and decodes the blob for a project path. Callers normally
// hand the result straight to Open, which rebuilds indices and statistics.
func (b *BadgerStore) LoadGraph(projectPath string) (*graph.Graph, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(graphKey(projectPath))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrGraphNotPersisted, projectPath)
	}
	if err != nil {
		return nil, fmt.Errorf("load graph %q: %w", projectPath, err)
	}

	return graph.Decode(data)
}

// DeleteGraph removes the blob for a project path. Deleting an absent graph
// is not an error.
func (b *BadgerStore) DeleteGraph(projectPath string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(graphKey(projectPath))
	})
	if err != nil {
		return fmt.Errorf("delete graph %q: %w", projectPath, err)
	}
	return nil
}

// ListProjects returns the project paths of all persisted graphs.
func (b *BadgerStore) ListProjects() ([]string, error) {
	var paths []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte{prefixGraph}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			paths = append(paths, string(key[1:]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list graphs: %w", err)
	}
	return paths, nil
}

// Sync flushes pending writes to disk.
func (b *BadgerStore) Sync() error {
	return b.db.Sync()
}

// Close closes the underlying database. Idempotent.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}
