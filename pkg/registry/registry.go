// Package registry tracks open graph stores by project path and graph ID.
//
// The registry replaces any notion of ambient global graph state: it is an
// explicit value constructed once and passed to whoever needs to resolve a
// graph handle (the query engine, the CLI, an embedding server).
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kgraphdb/kgraph/pkg/storage"
)

// ErrGraphNotFound is returned when neither the graph ID nor the project
// path resolves to a registered store.
var ErrGraphNotFound = errors.New("graph not found")

// Registry owns the projectPath -> store mapping for all open graphs.
type Registry struct {
	mu        sync.RWMutex
	byID      map[string]*storage.Store
	byProject map[string]*storage.Store
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byID:      make(map[string]*storage.Store),
		byProject: make(map[string]*storage.Store),
	}
}

// Register adds a store under both its graph ID and project path, replacing
// any previous registration for either key.
func (r *Registry) Register(store *storage.Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[store.GraphID()] = store
	r.byProject[store.ProjectPath()] = store
}

// Get resolves a graph ID to its store.
func (r *Registry) Get(graphID string) (*storage.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	store, ok := r.byID[graphID]
	if !ok {
		return nil, fmt.Errorf("%w: id %q", ErrGraphNotFound, graphID)
	}
	return store, nil
}

// GetByProject resolves a project path to its store.
func (r *Registry) GetByProject(projectPath string) (*storage.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	store, ok := r.byProject[projectPath]
	if !ok {
		return nil, fmt.Errorf("%w: project %q", ErrGraphNotFound, projectPath)
	}
	return store, nil
}

// Remove drops a project's store from the registry and returns the handle so
// the caller can archive or persist it. Removing an unknown project is an
// error, mirroring Get.
func (r *Registry) Remove(projectPath string) (*storage.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	store, ok := r.byProject[projectPath]
	if !ok {
		return nil, fmt.Errorf("%w: project %q", ErrGraphNotFound, projectPath)
	}
	delete(r.byProject, projectPath)
	delete(r.byID, store.GraphID())
	return store, nil
}

// Projects returns the registered project paths, sorted.
func (r *Registry) Projects() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := make([]string, 0, len(r.byProject))
	for path := range r.byProject {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
