package footprint

import (
	"sort"

	"github.com/dhconnelly/rtreego"
)

// indexedTile wraps a tile for R-tree storage.
type indexedTile struct {
	fp Footprint
}

// Bounds implements the rtreego.Spatial interface.
func (t *indexedTile) Bounds() rtreego.Rect {
	minx, miny, maxx, maxy := t.fp.Bounds()
	rect, _ := rtreego.NewRect(rtreego.Point{minx, miny}, []float64{maxx - minx, maxy - miny})
	return rect
}

// Index answers "which tiles intersect this footprint" queries over a fixed
// tile set. Cache tilings are regular grids where plain arithmetic would do,
// but computation tilings may be arbitrary user-supplied footprints, so the
// lookup goes through an R-tree.
type Index struct {
	rtree *rtreego.Rtree
}

// NewIndex builds an Index over the given tiles.
func NewIndex(tiles []Footprint) *Index {
	spatials := make([]rtreego.Spatial, len(tiles))
	for i, t := range tiles {
		spatials[i] = &indexedTile{fp: t}
	}
	return &Index{rtree: rtreego.NewTree(2, 2, 8, spatials...)}
}

// Intersecting returns the indexed tiles whose world extent overlaps fp's
// on non-zero area, in row-major order (top to bottom, left to right) so
// callers see a deterministic tile sequence.
func (ix *Index) Intersecting(fp Footprint) []Footprint {
	minx, miny, maxx, maxy := fp.Bounds()
	rect, err := rtreego.NewRect(rtreego.Point{minx, miny}, []float64{maxx - minx, maxy - miny})
	if err != nil {
		return nil
	}
	spatials := ix.rtree.SearchIntersect(rect)

	out := make([]Footprint, 0, len(spatials))
	for _, sp := range spatials {
		t := sp.(*indexedTile).fp
		// SearchIntersect treats touching edges as intersecting; tiles that
		// only share a border contribute no pixels.
		if t.IntersectsWorld(fp) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].oy != out[j].oy {
			return out[i].oy > out[j].oy
		}
		return out[i].ox < out[j].ox
	})
	return out
}
