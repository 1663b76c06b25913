// Package resample remaps pixel data between grids. Only nearest-neighbour
// is implemented; fancier kernels belong to an external collaborator and
// plug in behind the same signature.
package resample

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/earthcube-lab/buzzard/footprint"
	"github.com/earthcube-lab/buzzard/raster"
)

// Nearest fills dst from src by nearest-neighbour lookup in world
// coordinates. Destination pixels whose center falls outside src are left
// at their zero value.
func Nearest(src *raster.Buffer, dst *raster.Buffer) error {
	if !dst.SameLayout(src) {
		return fmt.Errorf("resample: layout mismatch (%v x%d vs %v x%d)",
			dst.DType(), dst.Bands(), src.DType(), src.Bands())
	}
	sfp, dfp := src.Footprint(), dst.Footprint()
	sox, soy := sfp.Origin()
	spx, spy := sfp.PixelSize()
	dox, doy := dfp.Origin()
	dpx, dpy := dfp.PixelSize()
	bands := dst.Bands()

	for row := 0; row < dfp.Height(); row++ {
		wy := doy - (float64(row)+0.5)*dpy
		// Floor, not truncation: centers up to one pixel above or left of
		// the source origin land at index -1, not 0.
		srow := int(math.Floor((soy - wy) / spy))
		if srow < 0 || srow >= sfp.Height() {
			continue
		}
		for col := 0; col < dfp.Width(); col++ {
			wx := dox + (float64(col)+0.5)*dpx
			scol := int(math.Floor((wx - sox) / spx))
			if scol < 0 || scol >= sfp.Width() {
				continue
			}
			for band := 0; band < bands; band++ {
				dst.Set(row, col, band, src.At(srow, scol, band))
			}
		}
	}
	return nil
}

// Submitter matches pool.Pool; declared locally to keep this package a
// leaf.
type Submitter interface {
	Submit(fn func())
}

// NearestChunked resamples src onto a new buffer with footprint dst,
// splitting the destination into chunks of at most maxSize pixels per side
// and running each chunk on p. maxSize <= 0 disables chunking.
func NearestChunked(ctx context.Context, p Submitter, src *raster.Buffer, dst footprint.Footprint, maxSize int) (*raster.Buffer, error) {
	out, err := raster.NewBuffer(dst, src.DType(), src.Bands())
	if err != nil {
		return nil, err
	}
	if maxSize <= 0 || (dst.Width() <= maxSize && dst.Height() <= maxSize) {
		done := make(chan error, 1)
		p.Submit(func() { done <- Nearest(src, out) })
		select {
		case err := <-done:
			return out, err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	tw, th := maxSize, maxSize
	if tw > dst.Width() {
		tw = dst.Width()
	}
	if th > dst.Height() {
		th = dst.Height()
	}
	tiling, err := dst.Tile(tw, th, 0, 0, footprint.Shrink)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, chunk := range tiling.All() {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			part, err := raster.NewBuffer(chunk, src.DType(), src.Bands())
			if err != nil {
				return err
			}
			done := make(chan error, 1)
			p.Submit(func() { done <- Nearest(src, part) })
			select {
			case err := <-done:
				if err != nil {
					return err
				}
			case <-gctx.Done():
				return gctx.Err()
			}
			_, err = out.CopyRegion(part)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
