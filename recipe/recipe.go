package recipe

import (
	"context"
	"fmt"
	"iter"

	"github.com/google/uuid"

	"github.com/earthcube-lab/buzzard/footprint"
	"github.com/earthcube-lab/buzzard/internal/cachestore"
	"github.com/earthcube-lab/buzzard/internal/ctxlog"
	"github.com/earthcube-lab/buzzard/internal/resample"
	"github.com/earthcube-lab/buzzard/pool"
	"github.com/earthcube-lab/buzzard/raster"
)

// CachedRecipe is a raster whose pixels are computed lazily by a user
// callback and cached on disk, tile by tile. It satisfies raster.Source, so
// a recipe can serve as a primitive of another recipe.
type CachedRecipe struct {
	id    string
	fp    footprint.Footprint
	dtype raster.DType
	bands int

	compute ComputeFunc
	merge   MergeFunc
	prims   map[string]raster.Source
	convert map[string]ConvertFunc

	store      *cachestore.Store
	cacheTiles []footprint.Footprint
	cacheIndex *footprint.Index
	compIndex  *footprint.Index

	computationPool pool.Pool
	mergePool       pool.Pool
	ioPool          pool.Pool
	resamplePool    pool.Pool

	maxResamplingSize int

	cacheTasks *taskMap
	compTasks  *taskMap
}

// New validates cfg and builds the recipe. reg resolves named pool
// references; it may be nil when no stage uses one. All configuration
// errors surface here, never at request time.
func New(cfg Config, reg *pool.Registry) (*CachedRecipe, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cacheTiles, compTiles, err := cfg.resolveTilings()
	if err != nil {
		return nil, err
	}

	store, err := cachestore.New(cfg.CacheDir)
	if err != nil {
		return nil, configErrorf("cache directory: %v", err)
	}

	var pools [4]pool.Pool
	for i, ref := range []pool.Ref{cfg.ComputationPool, cfg.MergePool, cfg.IOPool, cfg.ResamplePool} {
		p, err := ref.Resolve(reg)
		if err != nil {
			return nil, configErrorf("pool: %v", err)
		}
		pools[i] = p
	}

	convert := cfg.ConvertFootprint
	if convert == nil {
		convert = make(map[string]ConvertFunc, len(cfg.Primitives))
		for name := range cfg.Primitives {
			convert[name] = func(fp footprint.Footprint) footprint.Footprint { return fp }
		}
	}

	merge := cfg.Merge
	if merge == nil {
		merge = defaultMerge(cfg.DType, cfg.Bands)
	}

	return &CachedRecipe{
		id:                uuid.NewString(),
		fp:                cfg.Footprint,
		dtype:             cfg.DType,
		bands:             cfg.Bands,
		compute:           cfg.Compute,
		merge:             merge,
		prims:             cfg.Primitives,
		convert:           convert,
		store:             store,
		cacheTiles:        cacheTiles,
		cacheIndex:        footprint.NewIndex(cacheTiles),
		compIndex:         footprint.NewIndex(compTiles),
		computationPool:   pools[0],
		mergePool:         pools[1],
		ioPool:            pools[2],
		resamplePool:      pools[3],
		maxResamplingSize: cfg.MaxResamplingSize,
		cacheTasks:        newTaskMap(),
		compTasks:         newTaskMap(),
	}, nil
}

// Footprint implements raster.Source.
func (r *CachedRecipe) Footprint() footprint.Footprint { return r.fp }

// DType implements raster.Source.
func (r *CachedRecipe) DType() raster.DType { return r.dtype }

// Bands implements raster.Source.
func (r *CachedRecipe) Bands() int { return r.bands }

// CacheDir returns the directory cache tiles persist under.
func (r *CachedRecipe) CacheDir() string { return r.store.Dir() }

// CacheTiles returns the recipe's cache tiling in row-major order. The
// slice is shared; callers must not mutate it.
func (r *CachedRecipe) CacheTiles() []footprint.Footprint { return r.cacheTiles }

// Primitives returns the names of the recipe's primitive rasters.
func (r *CachedRecipe) Primitives() map[string]raster.Source { return r.prims }

// GetData reads the pixels of fp, computing and caching whatever tiles are
// missing. It blocks until the full array is assembled. fp must lie inside
// the recipe footprint; it does not need to share the recipe's grid — a
// foreign grid triggers resampling on the resample pool.
func (r *CachedRecipe) GetData(ctx context.Context, fp footprint.Footprint) (*raster.Buffer, error) {
	if !r.fp.ContainsWorld(fp) {
		return nil, fmt.Errorf("recipe: requested %v reaches outside the recipe extent %v", fp, r.fp)
	}

	logger := ctxlog.FromContext(ctx).With("recipe", r.id, "request", uuid.NewString())
	ctx = ctxlog.WithLogger(ctx, logger)

	// A request off the cache lattice is served by producing the smallest
	// aligned footprint covering it, then remapping.
	aligned := fp
	needsRemap := !r.fp.SameGrid(fp)
	if needsRemap {
		var ok bool
		aligned, ok = r.fp.Intersection(r.fp.DilateTo(fp))
		if !ok {
			return nil, fmt.Errorf("recipe: requested %v does not overlap the recipe extent %v", fp, r.fp)
		}
	}

	tiles := r.cacheIndex.Intersecting(aligned)
	if len(tiles) == 0 {
		return nil, consistencyErrorf("no cache tile intersects %v", aligned)
	}
	logger.Debug("request resolved", "tiles", len(tiles), "remap", needsRemap)

	// Fire all tile productions, then collect. Out-of-order completions
	// land by footprint, so assembly is deterministic.
	type produced struct {
		buf *raster.Buffer
		err error
	}
	results := make([]produced, len(tiles))
	done := make(chan int, len(tiles))
	for i, tile := range tiles {
		go func() {
			buf, err := r.cacheTileResult(ctx, tile)
			results[i] = produced{buf, err}
			done <- i
		}()
	}
	var firstErr error
	for range tiles {
		i := <-done
		if results[i].err != nil && firstErr == nil {
			firstErr = results[i].err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	parts := make([]*raster.Buffer, len(results))
	for i, res := range results {
		parts[i] = res.buf
	}
	assembled, err := stitch(aligned, r.dtype, r.bands, parts)
	if err != nil {
		return nil, err
	}
	if !needsRemap {
		return assembled, nil
	}
	return resample.NearestChunked(ctx, r.resamplePool, assembled, fp, r.maxResamplingSize)
}

// QueueData enqueues a read per footprint and returns a channel yielding
// one result per footprint in request order, closing afterwards. All reads
// proceed concurrently under the hood; ordering is restored on delivery.
func (r *CachedRecipe) QueueData(ctx context.Context, fps []footprint.Footprint) <-chan raster.Result {
	out := make(chan raster.Result, len(fps))
	pending := make([]chan raster.Result, len(fps))
	for i, fp := range fps {
		ch := make(chan raster.Result, 1)
		pending[i] = ch
		go func() {
			buf, err := r.GetData(ctx, fp)
			ch <- raster.Result{Buffer: buf, Err: err}
		}()
	}
	go func() {
		defer close(out)
		for _, ch := range pending {
			select {
			case res := <-ch:
				select {
				case out <- res:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// IterData iterates the arrays for fps in order, for bulk sequential
// access. Iteration stops early on the first error the yield declines.
func (r *CachedRecipe) IterData(ctx context.Context, fps []footprint.Footprint) iter.Seq[raster.Result] {
	return func(yield func(raster.Result) bool) {
		for res := range r.QueueData(ctx, fps) {
			if !yield(res) {
				return
			}
		}
	}
}

// Invalidate removes the cached tiles intersecting fp, forcing their next
// request to recompute. Tiles currently in flight are not interrupted.
func (r *CachedRecipe) Invalidate(fp footprint.Footprint) error {
	for _, tile := range r.cacheIndex.Intersecting(fp) {
		if err := r.store.Remove(tile); err != nil {
			return err
		}
	}
	return nil
}
