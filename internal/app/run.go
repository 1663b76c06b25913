package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/earthcube-lab/buzzard/dataset"
	"github.com/earthcube-lab/buzzard/internal/ctxlog"
	"github.com/earthcube-lab/buzzard/internal/pipeline"
	"github.com/earthcube-lab/buzzard/raster"
)

// Run loads the pipeline, builds the dataset and executes every render
// block in declaration order.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("run started", "pipeline", a.config.PipelinePath)

	model, err := a.loader.Load(ctx, a.config.PipelinePath)
	if err != nil {
		return fmt.Errorf("failed to load pipeline: %w", err)
	}

	ds, err := a.buildDataset(model)
	if err != nil {
		return fmt.Errorf("failed to build dataset: %w", err)
	}
	defer ds.Close()
	a.logger.Info("dataset ready", "rasters", len(ds.Keys()), "renders", len(model.Renders))

	if len(model.Renders) == 0 {
		a.logger.Warn("pipeline declares no render blocks, nothing to do")
		return nil
	}

	for _, spec := range model.Renders {
		if err := a.render(ctx, ds, spec); err != nil {
			return fmt.Errorf("render %q: %w", spec.Name, err)
		}
	}
	return nil
}

// render reads one raster (or a window of it) and dumps the raw samples.
func (a *App) render(ctx context.Context, ds *dataset.Dataset, spec *pipeline.RenderSpec) error {
	src, ok := ds.Raster(spec.Raster)
	if !ok {
		return fmt.Errorf("unknown raster %q", spec.Raster)
	}

	fp := src.Footprint()
	if !spec.Window.IsZero() {
		var err error
		fp, err = spec.Window.Footprint()
		if err != nil {
			return fmt.Errorf("window: %w", err)
		}
	}

	a.logger.Info("rendering", "raster", spec.Raster, "size", fmt.Sprintf("%dx%d", fp.Width(), fp.Height()), "output", spec.Output)
	buf, err := src.GetData(ctx, fp)
	if err != nil {
		return err
	}

	if err := writeRaw(spec.Output, buf.Bytes()); err != nil {
		return err
	}

	minV, maxV := sampleRange(buf)
	a.logger.Info("render complete", "raster", spec.Raster, "bytes", len(buf.Bytes()), "min", minV, "max", maxV)
	fmt.Fprintf(a.outW, "%s: %dx%d %s x%d -> %s\n",
		spec.Raster, fp.Width(), fp.Height(), buf.DType(), buf.Bands(), spec.Output)
	return nil
}

// writeRaw writes data to path, creating parent directories as needed.
func writeRaw(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// sampleRange scans band 0 for the minimum and maximum sample.
func sampleRange(buf *raster.Buffer) (minV, maxV float64) {
	fp := buf.Footprint()
	minV, maxV = buf.At(0, 0, 0), buf.At(0, 0, 0)
	for row := 0; row < fp.Height(); row++ {
		for col := 0; col < fp.Width(); col++ {
			v := buf.At(row, col, 0)
			if v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
		}
	}
	return minV, maxV
}
