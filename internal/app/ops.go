package app

import (
	"context"
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/earthcube-lab/buzzard/footprint"
	"github.com/earthcube-lab/buzzard/internal/pipeline"
	"github.com/earthcube-lab/buzzard/raster"
	"github.com/earthcube-lab/buzzard/recipe"
)

// buildCompute maps a pipeline operation onto a recipe compute callback.
//
// Built-in operations:
//
//	constant  value=<number>                no primitives
//	scale     factor=<number> [offset=<n>]  exactly one primitive
//	sum                                     one or more primitives
func buildCompute(spec *pipeline.RecipeSpec) (recipe.ComputeFunc, error) {
	opParams := map[string][]string{
		"constant": {"value"},
		"scale":    {"factor", "offset"},
		"sum":      {},
	}
	if known, ok := opParams[spec.Op]; ok {
		if extra := unknownParams(spec, known...); len(extra) > 0 {
			return nil, fmt.Errorf("recipe %q: operation %q does not accept parameters %v", spec.Name, spec.Op, extra)
		}
	}

	switch spec.Op {
	case "constant":
		value, ok, err := paramFloat(spec, "value")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("recipe %q: operation %q requires a value parameter", spec.Name, spec.Op)
		}
		if len(spec.Primitives) != 0 {
			return nil, fmt.Errorf("recipe %q: operation %q takes no primitives", spec.Name, spec.Op)
		}
		dtype, bands := spec.DType, spec.Bands
		return func(ctx context.Context, fp footprint.Footprint, prims map[string]*raster.Buffer) (*raster.Buffer, error) {
			out, err := raster.NewBuffer(fp, dtype, bands)
			if err != nil {
				return nil, err
			}
			out.Fill(value)
			return out, nil
		}, nil

	case "scale":
		factor, ok, err := paramFloat(spec, "factor")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("recipe %q: operation %q requires a factor parameter", spec.Name, spec.Op)
		}
		offset, _, err := paramFloat(spec, "offset")
		if err != nil {
			return nil, err
		}
		if len(spec.Primitives) != 1 {
			return nil, fmt.Errorf("recipe %q: operation %q takes exactly one primitive, got %d", spec.Name, spec.Op, len(spec.Primitives))
		}
		dtype, bands := spec.DType, spec.Bands
		return func(ctx context.Context, fp footprint.Footprint, prims map[string]*raster.Buffer) (*raster.Buffer, error) {
			out, err := raster.NewBuffer(fp, dtype, bands)
			if err != nil {
				return nil, err
			}
			var in *raster.Buffer
			for _, b := range prims {
				in = b
			}
			mapPixels(out, func(row, col, band int) float64 {
				return in.At(row, col, band)*factor + offset
			})
			return out, nil
		}, nil

	case "sum":
		if len(spec.Primitives) == 0 {
			return nil, fmt.Errorf("recipe %q: operation %q requires at least one primitive", spec.Name, spec.Op)
		}
		names := make([]string, 0, len(spec.Primitives))
		for name := range spec.Primitives {
			names = append(names, name)
		}
		sort.Strings(names)
		dtype, bands := spec.DType, spec.Bands
		return func(ctx context.Context, fp footprint.Footprint, prims map[string]*raster.Buffer) (*raster.Buffer, error) {
			out, err := raster.NewBuffer(fp, dtype, bands)
			if err != nil {
				return nil, err
			}
			mapPixels(out, func(row, col, band int) float64 {
				total := 0.0
				for _, name := range names {
					total += prims[name].At(row, col, band)
				}
				return total
			})
			return out, nil
		}, nil
	}
	return nil, fmt.Errorf("recipe %q: unknown operation %q", spec.Name, spec.Op)
}

// mapPixels fills out sample by sample from fn.
func mapPixels(out *raster.Buffer, fn func(row, col, band int) float64) {
	fp := out.Footprint()
	for row := 0; row < fp.Height(); row++ {
		for col := 0; col < fp.Width(); col++ {
			for band := 0; band < out.Bands(); band++ {
				out.Set(row, col, band, fn(row, col, band))
			}
		}
	}
}

// paramFloat reads a numeric operation parameter. The middle return reports
// presence.
func paramFloat(spec *pipeline.RecipeSpec, name string) (float64, bool, error) {
	val, ok := spec.Params[name]
	if !ok {
		return 0, false, nil
	}
	var f float64
	if err := gocty.FromCtyValue(val, &f); err != nil {
		return 0, false, fmt.Errorf("recipe %q: parameter %q: expected a number, got %s: %w",
			spec.Name, name, val.Type().FriendlyName(), err)
	}
	return f, true, nil
}

// unknownParams returns the parameter names the operation does not consume,
// so typos fail loudly instead of being silently ignored.
func unknownParams(spec *pipeline.RecipeSpec, known ...string) []string {
	set := make(map[string]struct{}, len(known))
	for _, k := range known {
		set[k] = struct{}{}
	}
	var out []string
	for name := range spec.Params {
		if _, ok := set[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
