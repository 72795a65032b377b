// Package repocache implements the Repository Cache (spec §4.2): the
// process-wide map from absolute repository path to an open
// *repo.Store, plus the cross-repository Search orchestration that the
// RPC dispatch table's "search" method exposes.
package repocache

import (
	"path/filepath"
	"sync"

	"github.com/henriquetft/ufa/internal/config"
	"github.com/henriquetft/ufa/internal/repo"
	"github.com/henriquetft/ufa/internal/ufalog"
)

// Cache owns every Store opened by the daemon or a CLI tool. Entries are
// held for the lifetime of the process; there is no eviction. All methods
// are safe for concurrent use.
type Cache struct {
	mu     sync.Mutex
	stores map[string]*repo.Store
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{stores: make(map[string]*repo.Store)}
}

// Get returns the Store for dir, opening (and initializing, if necessary)
// it on first access. The cache key is dir's absolute, cleaned path.
func (c *Cache) Get(dir string) (*repo.Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	abs = filepath.Clean(abs)

	c.mu.Lock()
	defer c.mu.Unlock()

	if store, ok := c.stores[abs]; ok {
		return store, nil
	}

	store, err := repo.Init(abs)
	if err != nil {
		return nil, err
	}
	c.stores[abs] = store
	ufalog.WithComponent("repocache").Debug().Str("dir", abs).Msg("opened and cached repository")
	return store, nil
}

// CloseAll closes every cached Store. Called only at process shutdown.
func (c *Cache) CloseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for path, store := range c.stores {
		if err := store.Close(); err != nil {
			ufalog.WithComponent("repocache").Error().Err(err).Str("dir", path).Msg("close repository")
		}
	}
	c.stores = make(map[string]*repo.Store)
}

// Search implements the cross-repository Search operation from spec
// §4.1/§4.6: it builds the set of repositories to scan (caller-provided
// repoDirs that are actual repositories, unioned with the Config
// Registry's list when includeConfigRepos is set, deduplicated by
// absolute path), then concatenates each repository's SearchInRepo
// results in scan order.
func (c *Cache) Search(
	reg *config.Registry,
	repoDirs []string,
	filterAttrs []repo.AttrFilter,
	tags []string,
	includeConfigRepos bool,
) ([]string, error) {
	if len(tags) == 0 && len(filterAttrs) == 0 {
		return nil, repo.ErrInvalidSearch()
	}

	dirs, err := c.repositoriesToScan(reg, repoDirs, includeConfigRepos)
	if err != nil {
		return nil, err
	}

	var results []string
	for _, dir := range dirs {
		store, err := c.Get(dir)
		if err != nil {
			return nil, err
		}
		matches, err := store.SearchInRepo(filterAttrs, tags)
		if err != nil {
			return nil, err
		}
		results = append(results, matches...)
	}
	return results, nil
}

func (c *Cache) repositoriesToScan(reg *config.Registry, repoDirs []string, includeConfigRepos bool) ([]string, error) {
	seen := make(map[string]bool)
	var dirs []string

	add := func(dir string) {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return
		}
		abs = filepath.Clean(abs)
		if seen[abs] {
			return
		}
		if !repo.IsRepo(abs) {
			return
		}
		seen[abs] = true
		dirs = append(dirs, abs)
	}

	for _, dir := range repoDirs {
		add(dir)
	}
	if includeConfigRepos && reg != nil {
		configDirs, err := reg.List(false)
		if err != nil {
			return nil, err
		}
		for _, dir := range configDirs {
			add(dir)
		}
	}
	return dirs, nil
}
