package hclcfg

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/earthcube-lab/buzzard/internal/pipeline"
	"github.com/earthcube-lab/buzzard/raster"
)

// translateGrid converts the repeated origin/pixel/size attribute triple
// into a GridSpec, validating arity.
func translateGrid(kind, name string, origin, pixel []float64, size []int) (pipeline.GridSpec, error) {
	if len(origin) != 2 || len(pixel) != 2 || len(size) != 2 {
		return pipeline.GridSpec{}, fmt.Errorf("%s %q: origin, pixel and size must each have 2 elements", kind, name)
	}
	return pipeline.GridSpec{
		Origin: [2]float64{origin[0], origin[1]},
		Pixel:  [2]float64{pixel[0], pixel[1]},
		Size:   [2]int{size[0], size[1]},
	}, nil
}

// translateDType parses the dtype attribute, defaulting to float64.
func translateDType(kind, name, s string) (raster.DType, error) {
	if s == "" {
		return raster.Float64, nil
	}
	dt, err := raster.ParseDType(s)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", kind, name, err)
	}
	return dt, nil
}

func translateRaster(b *rasterBlock) (*pipeline.RasterSpec, error) {
	grid, err := translateGrid("raster", b.Name, b.Origin, b.Pixel, b.Size)
	if err != nil {
		return nil, err
	}
	dtype, err := translateDType("raster", b.Name, b.DType)
	if err != nil {
		return nil, err
	}
	bands := b.Bands
	if bands == 0 {
		bands = 1
	}
	return &pipeline.RasterSpec{
		Name:  b.Name,
		Grid:  grid,
		DType: dtype,
		Bands: bands,
		Fill:  b.Fill,
	}, nil
}

func pair(kind, name, attr string, v []int) ([2]int, error) {
	switch len(v) {
	case 0:
		return [2]int{}, nil
	case 2:
		return [2]int{v[0], v[1]}, nil
	}
	return [2]int{}, fmt.Errorf("%s %q: %s must have 2 elements, got %d", kind, name, attr, len(v))
}

func translateRecipe(b *recipeBlock) (*pipeline.RecipeSpec, error) {
	grid, err := translateGrid("recipe", b.Name, b.Origin, b.Pixel, b.Size)
	if err != nil {
		return nil, err
	}
	dtype, err := translateDType("recipe", b.Name, b.DType)
	if err != nil {
		return nil, err
	}
	bands := b.Bands
	if bands == 0 {
		bands = 1
	}
	cacheSize, err := pair("recipe", b.Name, "cache_tile_size", b.CacheTileSize)
	if err != nil {
		return nil, err
	}
	compSize, err := pair("recipe", b.Name, "computation_tile_size", b.ComputationTileSize)
	if err != nil {
		return nil, err
	}
	if b.Operation == nil {
		return nil, fmt.Errorf("recipe %q: missing operation block", b.Name)
	}

	// Operation parameters are static in a pipeline file; evaluate them now
	// so nothing downstream depends on the configuration format.
	params := make(map[string]cty.Value)
	attrs, diags := b.Operation.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("recipe %q: operation %q: %w", b.Name, b.Operation.Kind, diags)
	}
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("recipe %q: operation parameter %q: %w", b.Name, name, diags)
		}
		params[name] = val
	}

	var pools pipeline.PoolSpec
	if b.Pools != nil {
		pools = pipeline.PoolSpec{
			Computation: b.Pools.Computation,
			Merge:       b.Pools.Merge,
			IO:          b.Pools.IO,
			Resample:    b.Pools.Resample,
		}
	}

	return &pipeline.RecipeSpec{
		Name:                b.Name,
		Grid:                grid,
		DType:               dtype,
		Bands:               bands,
		CacheDir:            b.CacheDir,
		CacheTileSize:       cacheSize,
		ComputationTileSize: compSize,
		MaxResamplingSize:   b.MaxResamplingSize,
		Op:                  b.Operation.Kind,
		Params:              params,
		Primitives:          b.Primitives,
		Pools:               pools,
	}, nil
}

func translateRender(b *renderBlock) (*pipeline.RenderSpec, error) {
	spec := &pipeline.RenderSpec{
		Name:   b.Name,
		Raster: b.Raster,
		Output: b.Output,
	}
	if b.Window != nil {
		window, err := translateGrid("render window", b.Name, b.Window.Origin, b.Window.Pixel, b.Window.Size)
		if err != nil {
			return nil, err
		}
		spec.Window = window
	}
	return spec, nil
}
