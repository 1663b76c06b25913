package pipeline

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/earthcube-lab/buzzard/footprint"
	"github.com/earthcube-lab/buzzard/raster"
)

// GridSpec locates a raster on a world grid: origin of the top-left corner,
// signed-free pixel size, and pixel dimensions.
type GridSpec struct {
	Origin [2]float64
	Pixel  [2]float64
	Size   [2]int
}

// Footprint materializes the grid as a footprint.
func (g GridSpec) Footprint() (footprint.Footprint, error) {
	return footprint.New(g.Origin[0], g.Origin[1], g.Pixel[0], g.Pixel[1], g.Size[0], g.Size[1])
}

// IsZero reports whether the grid was left unset.
func (g GridSpec) IsZero() bool {
	return g == GridSpec{}
}

// RasterSpec describes a leaf raster materialized in memory and filled with
// a constant, the pipeline's stand-in for externally provided data.
type RasterSpec struct {
	Name  string
	Grid  GridSpec
	DType raster.DType
	Bands int
	Fill  float64
}

// PoolSpec names the shared worker pools a recipe's stages run on. Empty
// names mean inline execution.
type PoolSpec struct {
	Computation string
	Merge       string
	IO          string
	Resample    string
}

// RecipeSpec describes a cached recipe computing its pixels with a named
// built-in operation over primitive rasters.
type RecipeSpec struct {
	Name  string
	Grid  GridSpec
	DType raster.DType
	Bands int

	CacheDir            string
	CacheTileSize       [2]int
	ComputationTileSize [2]int
	MaxResamplingSize   int

	// Op selects the built-in operation; Params are its already-evaluated
	// configuration attributes.
	Op     string
	Params map[string]cty.Value

	// Primitives maps the operation's local input names to pipeline keys.
	Primitives map[string]string

	Pools PoolSpec
}

// RenderSpec requests pixels from one pipeline raster, written raw to a
// file. A zero Window means the raster's full extent.
type RenderSpec struct {
	Name   string
	Raster string
	Output string
	Window GridSpec
}

// Model is the whole pipeline definition, merged across every parsed file.
type Model struct {
	Rasters []*RasterSpec
	Recipes []*RecipeSpec
	Renders []*RenderSpec
}

// Validate checks cross-block consistency: unique names and resolvable
// references. Per-block field validation belongs to the loader.
func (m *Model) Validate() error {
	keys := make(map[string]string)
	declare := func(name, kind string) error {
		if name == "" {
			return fmt.Errorf("pipeline: unnamed %s block", kind)
		}
		if prev, ok := keys[name]; ok {
			return fmt.Errorf("pipeline: %q declared as both %s and %s", name, prev, kind)
		}
		keys[name] = kind
		return nil
	}
	for _, r := range m.Rasters {
		if err := declare(r.Name, "raster"); err != nil {
			return err
		}
	}
	for _, r := range m.Recipes {
		if err := declare(r.Name, "recipe"); err != nil {
			return err
		}
	}
	for _, r := range m.Recipes {
		for local, key := range r.Primitives {
			if _, ok := keys[key]; !ok {
				return fmt.Errorf("pipeline: recipe %q primitive %q references unknown raster %q", r.Name, local, key)
			}
		}
	}
	for _, r := range m.Renders {
		if r.Raster == "" {
			return fmt.Errorf("pipeline: render %q names no raster", r.Name)
		}
		if _, ok := keys[r.Raster]; !ok {
			return fmt.Errorf("pipeline: render %q references unknown raster %q", r.Name, r.Raster)
		}
		if r.Output == "" {
			return fmt.Errorf("pipeline: render %q has no output path", r.Name)
		}
	}
	return nil
}
