// Package dataset groups rasters under string keys and owns the shared
// resources they use: the named worker-pool registry and the primitive
// dependency graph guarding against recipe cycles.
package dataset

import (
	"fmt"
	"sync"

	"github.com/earthcube-lab/buzzard/internal/depgraph"
	"github.com/earthcube-lab/buzzard/pool"
	"github.com/earthcube-lab/buzzard/raster"
	"github.com/earthcube-lab/buzzard/recipe"
)

// Dataset is a keyed registry of raster sources. Pools referenced by name
// from recipes in the same Dataset are shared and live until Close.
type Dataset struct {
	mu      sync.Mutex
	rasters map[string]raster.Source
	keys    map[raster.Source]string
	deps    *depgraph.Graph
	pools   *pool.Registry
}

// Option tweaks Dataset construction.
type Option func(*options)

type options struct {
	poolSize int
}

// WithPoolSize sets the worker count of pools created by this Dataset's
// registry. The default is 4.
func WithPoolSize(n int) Option {
	return func(o *options) { o.poolSize = n }
}

// New creates an empty Dataset.
func New(opts ...Option) *Dataset {
	o := options{poolSize: 4}
	for _, opt := range opts {
		opt(&o)
	}
	return &Dataset{
		rasters: make(map[string]raster.Source),
		keys:    make(map[raster.Source]string),
		deps:    depgraph.New(),
		pools:   pool.NewRegistry(o.poolSize),
	}
}

// Pools returns the Dataset's named pool registry.
func (d *Dataset) Pools() *pool.Registry { return d.pools }

// Register adds an existing raster source under key.
func (d *Dataset) Register(key string, src raster.Source) error {
	if key == "" {
		return fmt.Errorf("dataset: empty key")
	}
	if src == nil {
		return fmt.Errorf("dataset: nil source for key %q", key)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.rasters[key]; ok {
		return fmt.Errorf("dataset: key %q already registered", key)
	}
	d.rasters[key] = src
	d.keys[src] = key
	d.deps.Add(key)
	return nil
}

// CreateCachedRecipe builds a recipe from cfg, wires its named pools to
// this Dataset's registry, records its primitive dependencies (rejecting
// cycles eagerly) and registers it under key.
//
// Cycle detection only sees primitives that are themselves registered in
// this Dataset; a custom Source hiding a recipe from another Dataset is
// the caller's responsibility.
func (d *Dataset) CreateCachedRecipe(key string, cfg recipe.Config) (*recipe.CachedRecipe, error) {
	if key == "" {
		return nil, fmt.Errorf("dataset: empty key")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.rasters[key]; ok {
		return nil, fmt.Errorf("dataset: key %q already registered", key)
	}

	// Vertex and edges are rolled back on every failure below: leftovers
	// for a key that never registered would poison cycle checks against
	// later registrations reusing these names.
	d.deps.Add(key)
	for name, prim := range cfg.Primitives {
		primKey, ok := d.keys[prim]
		if !ok {
			continue
		}
		if err := d.deps.AddDependency(key, primKey); err != nil {
			d.deps.Remove(key)
			return nil, fmt.Errorf("dataset: primitive %q of %q: %w", name, key, err)
		}
	}

	r, err := recipe.New(cfg, d.pools)
	if err != nil {
		d.deps.Remove(key)
		return nil, err
	}
	d.rasters[key] = r
	d.keys[r] = key
	return r, nil
}

// Raster returns the source registered under key.
func (d *Dataset) Raster(key string) (raster.Source, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	src, ok := d.rasters[key]
	return src, ok
}

// Keys returns the registered keys, unordered.
func (d *Dataset) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.rasters))
	for k := range d.rasters {
		out = append(out, k)
	}
	return out
}

// Close shuts down the Dataset's pools, draining queued work. Rasters
// themselves hold no resources beyond their cache directories, which are
// left in place for the next run.
func (d *Dataset) Close() {
	d.pools.Close()
}
