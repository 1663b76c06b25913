package footprint

import "fmt"

// BoundaryEffect controls what happens to tiles that would spill over the
// parent's edge during tiling.
type BoundaryEffect int

const (
	// Shrink truncates edge tiles so they stay inside the parent. The
	// resulting tiling is a partition of the parent when overlap is zero.
	Shrink BoundaryEffect = iota
	// Exclude drops tiles that would spill over the edge entirely.
	Exclude
	// Extend keeps full-size edge tiles, letting them overflow the parent.
	Extend
	// Strict returns an error if the tile shape does not divide the parent
	// exactly.
	Strict
)

func (b BoundaryEffect) String() string {
	switch b {
	case Shrink:
		return "shrink"
	case Exclude:
		return "exclude"
	case Extend:
		return "extend"
	case Strict:
		return "strict"
	}
	return fmt.Sprintf("BoundaryEffect(%d)", int(b))
}

// Tiling is an ordered 2-D grid of sub-Footprints produced by Tile. Tiles
// are stored row-major.
type Tiling struct {
	rows, cols int
	tiles      []Footprint
}

// NewTiling wraps an explicit row-major tile grid, as when the caller
// supplies their own tiling instead of a tile shape.
func NewTiling(rows, cols int, tiles []Footprint) (Tiling, error) {
	if rows <= 0 || cols <= 0 || len(tiles) != rows*cols {
		return Tiling{}, fmt.Errorf("footprint: tiling shape %dx%d does not match %d tiles", rows, cols, len(tiles))
	}
	return Tiling{rows: rows, cols: cols, tiles: tiles}, nil
}

// Rows returns the number of tile rows.
func (t Tiling) Rows() int { return t.rows }

// Cols returns the number of tile columns.
func (t Tiling) Cols() int { return t.cols }

// Len returns the total tile count.
func (t Tiling) Len() int { return len(t.tiles) }

// At returns the tile at tile-row r, tile-column c.
func (t Tiling) At(r, c int) Footprint { return t.tiles[r*t.cols+c] }

// All returns the tiles in row-major order. The returned slice is shared;
// callers must not mutate it.
func (t Tiling) All() []Footprint { return t.tiles }

// Tile partitions fp into a grid of sub-Footprints of the given pixel
// shape. Consecutive tiles share overlapX columns and overlapY rows; zero
// overlap with the Shrink boundary effect yields an exact partition.
func (fp Footprint) Tile(tileW, tileH, overlapX, overlapY int, boundary BoundaryEffect) (Tiling, error) {
	if tileW <= 0 || tileH <= 0 {
		return Tiling{}, fmt.Errorf("footprint: tile shape must be positive, got (%d, %d)", tileW, tileH)
	}
	if overlapX < 0 || overlapY < 0 || overlapX >= tileW || overlapY >= tileH {
		return Tiling{}, fmt.Errorf("footprint: overlap (%d, %d) must be >= 0 and smaller than the tile shape (%d, %d)",
			overlapX, overlapY, tileW, tileH)
	}
	stepX, stepY := tileW-overlapX, tileH-overlapY

	if boundary == Strict && ((fp.w-overlapX)%stepX != 0 || (fp.h-overlapY)%stepY != 0) {
		return Tiling{}, fmt.Errorf("footprint: tile shape (%d, %d) with overlap (%d, %d) does not divide %dx%d exactly",
			tileW, tileH, overlapX, overlapY, fp.w, fp.h)
	}

	var tiles []Footprint
	rows, cols := 0, 0
	for y := 0; y < fp.h; y += stepY {
		th := tileH
		if y+th > fp.h {
			switch boundary {
			case Shrink, Strict:
				th = fp.h - y
			case Exclude:
				continue
			case Extend:
				// keep full size
			}
		}
		rowLen := 0
		for x := 0; x < fp.w; x += stepX {
			tw := tileW
			if x+tw > fp.w {
				switch boundary {
				case Shrink, Strict:
					tw = fp.w - x
				case Exclude:
					continue
				case Extend:
				}
			}
			tiles = append(tiles, Footprint{
				ox: fp.ox + float64(x)*fp.px,
				oy: fp.oy - float64(y)*fp.py,
				px: fp.px, py: fp.py,
				w: tw, h: th,
			})
			rowLen++
		}
		if rowLen == 0 {
			continue
		}
		if cols == 0 {
			cols = rowLen
		} else if rowLen != cols {
			return Tiling{}, fmt.Errorf("footprint: ragged tiling (%d vs %d tiles per row)", rowLen, cols)
		}
		rows++
	}
	if rows == 0 || cols == 0 {
		return Tiling{}, fmt.Errorf("footprint: tiling of %v with shape (%d, %d) and boundary %v produced no tiles",
			fp, tileW, tileH, boundary)
	}
	return Tiling{rows: rows, cols: cols, tiles: tiles}, nil
}

// IsTilingBijectionOf reports whether tiles exactly partition fp: every
// pixel of fp is covered by exactly one tile and no tile leaves fp.
func IsTilingBijectionOf(tiles []Footprint, fp Footprint) bool {
	covered := make([]bool, fp.Pixels())
	count := 0
	for _, t := range tiles {
		sl, err := t.SliceIn(fp)
		if err != nil {
			return false
		}
		for r := sl.Row0; r < sl.Row1; r++ {
			for c := sl.Col0; c < sl.Col1; c++ {
				i := r*fp.w + c
				if covered[i] {
					return false
				}
				covered[i] = true
				count++
			}
		}
	}
	return count == fp.Pixels()
}

// IsTilingSurjectionOf reports whether tiles cover every pixel of fp.
// Overlaps are allowed; tiles must still lie on fp's grid and inside fp.
func IsTilingSurjectionOf(tiles []Footprint, fp Footprint) bool {
	covered := make([]bool, fp.Pixels())
	for _, t := range tiles {
		sl, err := t.SliceIn(fp)
		if err != nil {
			return false
		}
		for r := sl.Row0; r < sl.Row1; r++ {
			for c := sl.Col0; c < sl.Col1; c++ {
				covered[r*fp.w+c] = true
			}
		}
	}
	for _, ok := range covered {
		if !ok {
			return false
		}
	}
	return true
}
