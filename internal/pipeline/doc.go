// Package pipeline defines the format-agnostic model of a raster pipeline:
// leaf rasters, cached recipes built from named operations, and render
// requests. The Loader interface is the seam between the model and concrete
// configuration formats; the HCL implementation lives in internal/hclcfg.
package pipeline
