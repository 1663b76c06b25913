// Package footprint models the pixel grid of a raster: an axis-aligned
// rectangle anchored in world coordinates, with a fixed pixel size and an
// integer row/column extent.
//
// A Footprint is a small immutable value. It is comparable, so it can be
// used directly as a map key; two Footprints compare equal exactly when
// they describe the same grid.
//
// World coordinates follow the usual raster convention: X grows to the
// right, Y grows upward, and the origin is the top-left corner of the
// top-left pixel. Pixel rows therefore advance toward smaller Y.
package footprint

import (
	"fmt"
	"math"
)

// eps is the tolerance used for world-coordinate comparisons. Grid
// arithmetic accumulates float error well below this.
const eps = 1e-9

// Footprint describes the pixel grid of a raster.
type Footprint struct {
	ox, oy float64 // world coordinates of the top-left corner
	px, py float64 // pixel width and height, both > 0
	w, h   int     // columns, rows
}

// New builds a Footprint from its top-left corner, pixel size and extent.
func New(originX, originY, pixelW, pixelH float64, width, height int) (Footprint, error) {
	if pixelW <= 0 || pixelH <= 0 {
		return Footprint{}, fmt.Errorf("footprint: pixel size must be positive, got (%g, %g)", pixelW, pixelH)
	}
	if width <= 0 || height <= 0 {
		return Footprint{}, fmt.Errorf("footprint: extent must be positive, got (%d, %d)", width, height)
	}
	return Footprint{ox: originX, oy: originY, px: pixelW, py: pixelH, w: width, h: height}, nil
}

// MustNew is New for statically known-good parameters. It panics on error
// and exists mostly for tests and examples.
func MustNew(originX, originY, pixelW, pixelH float64, width, height int) Footprint {
	fp, err := New(originX, originY, pixelW, pixelH, width, height)
	if err != nil {
		panic(err)
	}
	return fp
}

// Zero reports whether fp is the zero value.
func (fp Footprint) Zero() bool { return fp == Footprint{} }

// Width returns the number of pixel columns.
func (fp Footprint) Width() int { return fp.w }

// Height returns the number of pixel rows.
func (fp Footprint) Height() int { return fp.h }

// Pixels returns Width*Height.
func (fp Footprint) Pixels() int { return fp.w * fp.h }

// Origin returns the world coordinates of the top-left corner.
func (fp Footprint) Origin() (x, y float64) { return fp.ox, fp.oy }

// PixelSize returns the world size of one pixel.
func (fp Footprint) PixelSize() (w, h float64) { return fp.px, fp.py }

// Bounds returns the world-coordinate bounding box (minx, miny, maxx, maxy).
func (fp Footprint) Bounds() (minx, miny, maxx, maxy float64) {
	return fp.ox, fp.oy - float64(fp.h)*fp.py, fp.ox + float64(fp.w)*fp.px, fp.oy
}

func (fp Footprint) String() string {
	return fmt.Sprintf("Footprint(origin=(%g, %g) pixel=(%g, %g) size=%dx%d)",
		fp.ox, fp.oy, fp.px, fp.py, fp.w, fp.h)
}

// Key returns a stable, collision-free textual identity for fp. It is used
// for cache-file naming, so its format must not change across releases.
func (fp Footprint) Key() string {
	return fmt.Sprintf("%x_%x_%x_%x_%d_%d",
		math.Float64bits(fp.ox), math.Float64bits(fp.oy),
		math.Float64bits(fp.px), math.Float64bits(fp.py),
		fp.w, fp.h)
}

// Equal reports geometric equality within tolerance. Unlike ==, it treats
// coordinates within eps of each other as identical.
func (fp Footprint) Equal(o Footprint) bool {
	return fp.w == o.w && fp.h == o.h &&
		near(fp.ox, o.ox) && near(fp.oy, o.oy) &&
		near(fp.px, o.px) && near(fp.py, o.py)
}

// SameGrid reports whether o lies on the same pixel lattice as fp: equal
// pixel sizes and an origin offset that is a whole number of pixels.
func (fp Footprint) SameGrid(o Footprint) bool {
	if !near(fp.px, o.px) || !near(fp.py, o.py) {
		return false
	}
	dx := (o.ox - fp.ox) / fp.px
	dy := (fp.oy - o.oy) / fp.py
	return near(dx, math.Round(dx)) && near(dy, math.Round(dy))
}

// ContainsWorld reports whether the world extent of o is inside fp's.
func (fp Footprint) ContainsWorld(o Footprint) bool {
	aminx, aminy, amaxx, amaxy := fp.Bounds()
	bminx, bminy, bmaxx, bmaxy := o.Bounds()
	return bminx >= aminx-eps && bmaxx <= amaxx+eps &&
		bminy >= aminy-eps && bmaxy <= amaxy+eps
}

// IntersectsWorld reports whether the world extents of fp and o overlap on
// a region of non-zero area.
func (fp Footprint) IntersectsWorld(o Footprint) bool {
	aminx, aminy, amaxx, amaxy := fp.Bounds()
	bminx, bminy, bmaxx, bmaxy := o.Bounds()
	return bminx < amaxx-eps && bmaxx > aminx+eps &&
		bminy < amaxy-eps && bmaxy > aminy+eps
}

// Slice is a half-open pixel-index window [Row0, Row1) x [Col0, Col1)
// inside some parent Footprint.
type Slice struct {
	Row0, Row1 int
	Col0, Col1 int
}

// Rows returns the number of rows covered by the slice.
func (s Slice) Rows() int { return s.Row1 - s.Row0 }

// Cols returns the number of columns covered by the slice.
func (s Slice) Cols() int { return s.Col1 - s.Col0 }

// SliceIn returns the pixel-index window that fp occupies inside parent.
// Both footprints must share the same grid and fp must lie inside parent.
func (fp Footprint) SliceIn(parent Footprint) (Slice, error) {
	if !fp.SameGrid(parent) {
		return Slice{}, fmt.Errorf("footprint: %v is not on the same grid as %v", fp, parent)
	}
	col := int(math.Round((fp.ox - parent.ox) / parent.px))
	row := int(math.Round((parent.oy - fp.oy) / parent.py))
	if col < 0 || row < 0 || col+fp.w > parent.w || row+fp.h > parent.h {
		return Slice{}, fmt.Errorf("footprint: %v does not fit inside %v", fp, parent)
	}
	return Slice{Row0: row, Row1: row + fp.h, Col0: col, Col1: col + fp.w}, nil
}

// Intersection returns the overlap of fp and o snapped to fp's grid, or
// false when the two extents do not overlap. o does not need to share fp's
// grid; the result always does, dilated outward so the returned footprint
// covers the full overlap region.
func (fp Footprint) Intersection(o Footprint) (Footprint, bool) {
	aminx, aminy, amaxx, amaxy := fp.Bounds()
	bminx, bminy, bmaxx, bmaxy := o.Bounds()
	minx := math.Max(aminx, bminx)
	miny := math.Max(aminy, bminy)
	maxx := math.Min(amaxx, bmaxx)
	maxy := math.Min(amaxy, bmaxy)
	if minx >= maxx-eps || miny >= maxy-eps {
		return Footprint{}, false
	}
	// Snap outward to fp's lattice.
	c0 := int(math.Floor((minx - fp.ox + eps) / fp.px))
	c1 := int(math.Ceil((maxx - fp.ox - eps) / fp.px))
	r0 := int(math.Floor((fp.oy - maxy + eps) / fp.py))
	r1 := int(math.Ceil((fp.oy - miny - eps) / fp.py))
	return Footprint{
		ox: fp.ox + float64(c0)*fp.px,
		oy: fp.oy - float64(r0)*fp.py,
		px: fp.px, py: fp.py,
		w: c1 - c0, h: r1 - r0,
	}, true
}

// DilateTo returns the smallest footprint on fp's grid whose world extent
// covers o's. It is how a request on a foreign grid is mapped onto the
// cache lattice before resampling.
func (fp Footprint) DilateTo(o Footprint) Footprint {
	bminx, bminy, bmaxx, bmaxy := o.Bounds()
	c0 := int(math.Floor((bminx - fp.ox + eps) / fp.px))
	c1 := int(math.Ceil((bmaxx - fp.ox - eps) / fp.px))
	r0 := int(math.Floor((fp.oy - bmaxy + eps) / fp.py))
	r1 := int(math.Ceil((fp.oy - bminy - eps) / fp.py))
	return Footprint{
		ox: fp.ox + float64(c0)*fp.px,
		oy: fp.oy - float64(r0)*fp.py,
		px: fp.px, py: fp.py,
		w: c1 - c0, h: r1 - r0,
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < eps }
