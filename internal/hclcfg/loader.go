// Package hclcfg loads raster pipeline definitions written in HCL and
// translates them into the format-agnostic pipeline model.
package hclcfg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/earthcube-lab/buzzard/internal/ctxlog"
	"github.com/earthcube-lab/buzzard/internal/fsutil"
	"github.com/earthcube-lab/buzzard/internal/pipeline"
)

// Loader is the HCL implementation of pipeline.Loader.
type Loader struct{}

// NewLoader creates an HCL pipeline loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .hcl file reachable from paths and merges the blocks
// into one validated model.
func (l *Loader) Load(ctx context.Context, paths ...string) (*pipeline.Model, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := l.findFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("hclcfg: no .hcl files under %v", paths)
	}
	logger.Debug("discovered pipeline files", "count", len(files))

	model := &pipeline.Model{}
	parser := hclparse.NewParser()
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("hclcfg: parse %s: %w", file, diags)
		}
		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("hclcfg: decode %s: %w", file, diags)
		}

		for _, block := range root.Rasters {
			spec, err := translateRaster(block)
			if err != nil {
				return nil, fmt.Errorf("hclcfg: %s: %w", file, err)
			}
			model.Rasters = append(model.Rasters, spec)
		}
		for _, block := range root.Recipes {
			spec, err := translateRecipe(block)
			if err != nil {
				return nil, fmt.Errorf("hclcfg: %s: %w", file, err)
			}
			model.Recipes = append(model.Recipes, spec)
		}
		for _, block := range root.Renders {
			spec, err := translateRender(block)
			if err != nil {
				return nil, fmt.Errorf("hclcfg: %s: %w", file, err)
			}
			model.Renders = append(model.Renders, spec)
		}
	}

	if err := model.Validate(); err != nil {
		return nil, err
	}
	logger.Debug("pipeline model loaded",
		"rasters", len(model.Rasters), "recipes", len(model.Recipes), "renders", len(model.Renders))
	return model, nil
}

// findFiles flattens paths into .hcl files: files are taken as-is,
// directories are walked recursively.
func (l *Loader) findFiles(paths []string) ([]string, error) {
	var all []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			all = append(all, p)
		}
	}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("hclcfg: %w", err)
		}
		if !info.IsDir() {
			if filepath.Ext(path) != ".hcl" {
				return nil, fmt.Errorf("hclcfg: %s is not an .hcl file", path)
			}
			add(path)
			continue
		}
		found, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("hclcfg: walk %s: %w", path, err)
		}
		for _, f := range found {
			add(f)
		}
	}
	return all, nil
}
