package hclcfg

import "github.com/hashicorp/hcl/v2"

// rasterBlock is the HCL schema of a `raster` block: a leaf raster held in
// memory and filled with a constant.
type rasterBlock struct {
	Name   string    `hcl:"name,label"`
	Origin []float64 `hcl:"origin"`
	Pixel  []float64 `hcl:"pixel"`
	Size   []int     `hcl:"size"`
	DType  string    `hcl:"dtype,optional"`
	Bands  int       `hcl:"bands,optional"`
	Fill   float64   `hcl:"fill,optional"`
}

// operationBlock selects a built-in computation and carries its parameters
// as raw attributes, evaluated during translation.
type operationBlock struct {
	Kind string   `hcl:"kind,label"`
	Body hcl.Body `hcl:",remain"`
}

// poolsBlock routes a recipe's pipeline stages to named shared pools.
type poolsBlock struct {
	Computation string `hcl:"computation,optional"`
	Merge       string `hcl:"merge,optional"`
	IO          string `hcl:"io,optional"`
	Resample    string `hcl:"resample,optional"`
}

// recipeBlock is the HCL schema of a `recipe` block.
type recipeBlock struct {
	Name   string    `hcl:"name,label"`
	Origin []float64 `hcl:"origin"`
	Pixel  []float64 `hcl:"pixel"`
	Size   []int     `hcl:"size"`
	DType  string    `hcl:"dtype,optional"`
	Bands  int       `hcl:"bands,optional"`

	CacheDir            string `hcl:"cache_dir"`
	CacheTileSize       []int  `hcl:"cache_tile_size,optional"`
	ComputationTileSize []int  `hcl:"computation_tile_size,optional"`
	MaxResamplingSize   int    `hcl:"max_resampling_size,optional"`

	Primitives map[string]string `hcl:"primitives,optional"`

	Operation *operationBlock `hcl:"operation,block"`
	Pools     *poolsBlock     `hcl:"pools,block"`
}

// windowBlock restricts a render to a sub-grid of its raster.
type windowBlock struct {
	Origin []float64 `hcl:"origin"`
	Pixel  []float64 `hcl:"pixel"`
	Size   []int     `hcl:"size"`
}

// renderBlock is the HCL schema of a `render` block.
type renderBlock struct {
	Name   string       `hcl:"name,label"`
	Raster string       `hcl:"raster"`
	Output string       `hcl:"output"`
	Window *windowBlock `hcl:"window,block"`
}

// fileRoot decodes every top-level block a pipeline file may carry. Blocks
// of all kinds may be spread over any number of files.
type fileRoot struct {
	Rasters []*rasterBlock `hcl:"raster,block"`
	Recipes []*recipeBlock `hcl:"recipe,block"`
	Renders []*renderBlock `hcl:"render,block"`
	Remain  hcl.Body       `hcl:",remain"`
}
