// Package recipe implements cached raster recipes: rasters whose pixels are
// computed on demand by a user callback, persisted to a tiled on-disk
// cache, and served through the same Source contract as any other raster.
//
// A recipe owns one cache directory. Requests are resolved tile by tile:
// cached tiles are read back, missing tiles are computed (fanning out to
// primitive rasters first), merged, written to the cache, then assembled
// and, when the requested grid differs from the cache grid, resampled.
package recipe

import (
	"context"
	"sort"

	"github.com/earthcube-lab/buzzard/footprint"
	"github.com/earthcube-lab/buzzard/pool"
	"github.com/earthcube-lab/buzzard/raster"
)

// DefaultCacheTileSize is the cache tile shape used when the configuration
// provides neither a shape nor an explicit tiling.
const DefaultCacheTileSize = 512

// ComputeFunc produces the pixels of one computation tile. prims holds one
// buffer per declared primitive, keyed by primitive name, each bound to the
// footprint the primitive's conversion function requested. The returned
// buffer must match fp and the recipe's dtype and band count exactly.
type ComputeFunc func(ctx context.Context, fp footprint.Footprint, prims map[string]*raster.Buffer) (*raster.Buffer, error)

// MergeFunc combines computation results into one cache-tile array. parts
// are the computation buffers intersecting fp; they may extend beyond it.
// The returned buffer must match fp exactly.
type MergeFunc func(fp footprint.Footprint, parts []*raster.Buffer) (*raster.Buffer, error)

// ConvertFunc maps a computation-tile footprint to the footprint a
// primitive must deliver for it.
type ConvertFunc func(fp footprint.Footprint) footprint.Footprint

// Config describes a cached recipe. Validation happens once, in New; no
// configuration error is ever deferred to request time.
type Config struct {
	// Footprint is the recipe's full extent.
	Footprint footprint.Footprint
	// DType and Bands fix the shape of every produced array.
	DType raster.DType
	Bands int

	// CacheDir is the directory tiles persist under. One recipe instance
	// owns exactly one cache directory.
	CacheDir string

	// CacheTiles is an explicit cache tiling. It must be a bijection
	// (exact partition) of Footprint. When nil, Footprint is tiled by
	// CacheTileSize with the shrink boundary policy.
	CacheTiles []footprint.Footprint
	// CacheTileSize is the tile shape (width, height) used when CacheTiles
	// is nil. Zero means DefaultCacheTileSize.
	CacheTileSize [2]int

	// ComputationTiles is an explicit computation tiling. It must be a
	// surjection (covering, overlaps allowed) of Footprint. When nil and
	// ComputationTileSize is zero, the cache tiling is reused.
	ComputationTiles []footprint.Footprint
	// ComputationTileSize tiles Footprint for computation when
	// ComputationTiles is nil.
	ComputationTileSize [2]int

	// Compute is the user pixel callback. Required.
	Compute ComputeFunc
	// Merge combines computation results into cache tiles. Nil selects the
	// default disjoint-coverage merge.
	Merge MergeFunc

	// Primitives are the rasters this recipe reads as inputs, and
	// ConvertFootprint maps each computation footprint to the region
	// required from each primitive. The two key sets must match exactly;
	// a nil ConvertFootprint defaults every primitive to the identity.
	Primitives       map[string]raster.Source
	ConvertFootprint map[string]ConvertFunc

	// Pool references for the four pipeline stages. Zero values run the
	// stage inline on the scheduling goroutine.
	ComputationPool pool.Ref
	MergePool       pool.Ref
	IOPool          pool.Ref
	ResamplePool    pool.Ref

	// MaxResamplingSize caps the per-chunk working set (pixels per side)
	// of the resampling stage. Zero disables chunking.
	MaxResamplingSize int
}

// resolveTilings validates and materializes the cache and computation
// tilings. The cache tiling must partition the footprint; the computation
// tiling must cover it.
func (c *Config) resolveTilings() (cache, comp []footprint.Footprint, err error) {
	switch {
	case c.CacheTiles != nil:
		if !footprint.IsTilingBijectionOf(c.CacheTiles, c.Footprint) {
			return nil, nil, configErrorf("CacheTiles must exactly partition the recipe footprint %v, without gaps or overlaps", c.Footprint)
		}
		cache = c.CacheTiles
	default:
		size := c.CacheTileSize
		if size == [2]int{} {
			size = [2]int{DefaultCacheTileSize, DefaultCacheTileSize}
		}
		tiling, terr := c.Footprint.Tile(size[0], size[1], 0, 0, footprint.Shrink)
		if terr != nil {
			return nil, nil, configErrorf("cache tiling: %v", terr)
		}
		cache = tiling.All()
	}

	switch {
	case c.ComputationTiles != nil:
		if !footprint.IsTilingSurjectionOf(c.ComputationTiles, c.Footprint) {
			return nil, nil, configErrorf("ComputationTiles must cover the recipe footprint %v", c.Footprint)
		}
		comp = c.ComputationTiles
	case c.ComputationTileSize != [2]int{}:
		tiling, terr := c.Footprint.Tile(c.ComputationTileSize[0], c.ComputationTileSize[1], 0, 0, footprint.Shrink)
		if terr != nil {
			return nil, nil, configErrorf("computation tiling: %v", terr)
		}
		comp = tiling.All()
	default:
		comp = cache
	}
	return cache, comp, nil
}

// validate checks everything resolveTilings does not.
func (c *Config) validate() error {
	if c.Footprint.Zero() {
		return configErrorf("Footprint is required")
	}
	if !c.DType.Valid() {
		return configErrorf("invalid dtype %v", c.DType)
	}
	if c.Bands <= 0 {
		return configErrorf("Bands must be > 0, got %d", c.Bands)
	}
	if c.CacheDir == "" {
		return configErrorf("CacheDir is required")
	}
	if c.Compute == nil {
		return configErrorf("Compute is required")
	}
	if c.MaxResamplingSize < 0 {
		return configErrorf("MaxResamplingSize must be >= 0, got %d", c.MaxResamplingSize)
	}

	// The primitive name sets must match exactly, enumerating offenders on
	// both sides.
	if c.ConvertFootprint != nil {
		var missingConvert, missingPrimitive []string
		for name := range c.Primitives {
			if _, ok := c.ConvertFootprint[name]; !ok {
				missingConvert = append(missingConvert, name)
			}
		}
		for name := range c.ConvertFootprint {
			if _, ok := c.Primitives[name]; !ok {
				missingPrimitive = append(missingPrimitive, name)
			}
		}
		if len(missingConvert) > 0 || len(missingPrimitive) > 0 {
			sort.Strings(missingConvert)
			sort.Strings(missingPrimitive)
			return configErrorf("Primitives and ConvertFootprint must share the same keys; missing from ConvertFootprint: %v, missing from Primitives: %v",
				missingConvert, missingPrimitive)
		}
	}
	for name, src := range c.Primitives {
		if src == nil {
			return configErrorf("primitive %q is nil", name)
		}
	}
	for name, fn := range c.ConvertFootprint {
		if fn == nil {
			return configErrorf("ConvertFootprint[%q] is nil", name)
		}
	}
	return nil
}
