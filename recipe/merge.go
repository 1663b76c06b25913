package recipe

import (
	"github.com/earthcube-lab/buzzard/footprint"
	"github.com/earthcube-lab/buzzard/raster"
)

// stitch copies every part's overlap with fp into a fresh buffer and
// verifies exact disjoint coverage: each pixel of fp must come from exactly
// one contributor. Anything else is a ConsistencyError, because silently
// returning partial or doubly-written data would corrupt everything
// downstream.
func stitch(fp footprint.Footprint, dtype raster.DType, bands int, parts []*raster.Buffer) (*raster.Buffer, error) {
	out, err := raster.NewBuffer(fp, dtype, bands)
	if err != nil {
		return nil, err
	}
	seen := make([]uint8, fp.Pixels())
	covered := 0
	for _, part := range parts {
		if !out.SameLayout(part) {
			return nil, consistencyErrorf("contributor %v has layout %v x%d, want %v x%d",
				part.Footprint(), part.DType(), part.Bands(), dtype, bands)
		}
		common, ok := fp.Intersection(part.Footprint())
		if !ok {
			continue
		}
		sl, err := common.SliceIn(fp)
		if err != nil {
			return nil, consistencyErrorf("contributor %v is not on the target grid: %v", part.Footprint(), err)
		}
		for r := sl.Row0; r < sl.Row1; r++ {
			for c := sl.Col0; c < sl.Col1; c++ {
				i := r*fp.Width() + c
				if seen[i] != 0 {
					return nil, consistencyErrorf("pixel (%d, %d) of %v covered by more than one contributor", r, c, fp)
				}
				seen[i] = 1
				covered++
			}
		}
		if _, err := out.CopyRegion(part); err != nil {
			return nil, err
		}
	}
	if covered != fp.Pixels() {
		return nil, consistencyErrorf("%d of %d pixels of %v left uncovered", fp.Pixels()-covered, fp.Pixels(), fp)
	}
	return out, nil
}

// defaultMerge builds the MergeFunc used when Config.Merge is nil: exact
// disjoint stitching of the contributors into the cache tile.
func defaultMerge(dtype raster.DType, bands int) MergeFunc {
	return func(fp footprint.Footprint, parts []*raster.Buffer) (*raster.Buffer, error) {
		// Common fast path: a single contributor aligned 1:1 with the tile.
		if len(parts) == 1 && parts[0].Footprint().Equal(fp) {
			return parts[0], nil
		}
		return stitch(fp, dtype, bands, parts)
	}
}
