package app

import (
	"fmt"

	"github.com/earthcube-lab/buzzard/dataset"
	"github.com/earthcube-lab/buzzard/internal/pipeline"
	"github.com/earthcube-lab/buzzard/pool"
	"github.com/earthcube-lab/buzzard/raster"
	"github.com/earthcube-lab/buzzard/recipe"
)

// buildDataset materializes the pipeline model: leaf rasters first, then
// recipes in declaration order, so a recipe may consume any earlier raster
// or recipe as a primitive.
func (a *App) buildDataset(model *pipeline.Model) (*dataset.Dataset, error) {
	ds := dataset.New(dataset.WithPoolSize(a.config.Workers))

	for _, spec := range model.Rasters {
		src, err := buildLeafRaster(spec)
		if err != nil {
			ds.Close()
			return nil, err
		}
		if err := ds.Register(spec.Name, src); err != nil {
			ds.Close()
			return nil, err
		}
	}

	for _, spec := range model.Recipes {
		cfg, err := buildRecipeConfig(ds, spec)
		if err != nil {
			ds.Close()
			return nil, err
		}
		if _, err := ds.CreateCachedRecipe(spec.Name, cfg); err != nil {
			ds.Close()
			return nil, fmt.Errorf("recipe %q: %w", spec.Name, err)
		}
	}

	return ds, nil
}

// buildLeafRaster materializes a raster block as an in-memory source.
func buildLeafRaster(spec *pipeline.RasterSpec) (raster.Source, error) {
	fp, err := spec.Grid.Footprint()
	if err != nil {
		return nil, fmt.Errorf("raster %q: %w", spec.Name, err)
	}
	buf, err := raster.NewBuffer(fp, spec.DType, spec.Bands)
	if err != nil {
		return nil, fmt.Errorf("raster %q: %w", spec.Name, err)
	}
	if spec.Fill != 0 {
		buf.Fill(spec.Fill)
	}
	return raster.NewBufferSource(buf), nil
}

// buildRecipeConfig assembles a recipe.Config from a recipe block, resolving
// primitive keys against the dataset built so far.
func buildRecipeConfig(ds *dataset.Dataset, spec *pipeline.RecipeSpec) (recipe.Config, error) {
	fp, err := spec.Grid.Footprint()
	if err != nil {
		return recipe.Config{}, fmt.Errorf("recipe %q: %w", spec.Name, err)
	}

	compute, err := buildCompute(spec)
	if err != nil {
		return recipe.Config{}, err
	}

	var prims map[string]raster.Source
	if len(spec.Primitives) > 0 {
		prims = make(map[string]raster.Source, len(spec.Primitives))
		for local, key := range spec.Primitives {
			src, ok := ds.Raster(key)
			if !ok {
				return recipe.Config{}, fmt.Errorf("recipe %q: primitive %q references %q, which is not built yet (recipes bind in declaration order)",
					spec.Name, local, key)
			}
			prims[local] = src
		}
	}

	poolRef := func(name string) pool.Ref {
		if name == "" {
			return pool.RefInline()
		}
		return pool.RefNamed(name)
	}

	return recipe.Config{
		Footprint:           fp,
		DType:               spec.DType,
		Bands:               spec.Bands,
		CacheDir:            spec.CacheDir,
		CacheTileSize:       spec.CacheTileSize,
		ComputationTileSize: spec.ComputationTileSize,
		MaxResamplingSize:   spec.MaxResamplingSize,
		Compute:             compute,
		Primitives:          prims,
		ComputationPool:     poolRef(spec.Pools.Computation),
		MergePool:           poolRef(spec.Pools.Merge),
		IOPool:              poolRef(spec.Pools.IO),
		ResamplePool:        poolRef(spec.Pools.Resample),
	}, nil
}
