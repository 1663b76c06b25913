package footprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		fp, err := New(0, 100, 1, 1, 10, 20)
		require.NoError(t, err)
		assert.Equal(t, 10, fp.Width())
		assert.Equal(t, 20, fp.Height())
		assert.Equal(t, 200, fp.Pixels())
	})

	t.Run("rejects non-positive pixel size", func(t *testing.T) {
		_, err := New(0, 0, 0, 1, 10, 10)
		assert.Error(t, err)
		_, err = New(0, 0, 1, -1, 10, 10)
		assert.Error(t, err)
	})

	t.Run("rejects non-positive extent", func(t *testing.T) {
		_, err := New(0, 0, 1, 1, 0, 10)
		assert.Error(t, err)
		_, err = New(0, 0, 1, 1, 10, -1)
		assert.Error(t, err)
	})
}

func TestBounds(t *testing.T) {
	fp := MustNew(10, 100, 2, 1, 5, 20)
	minx, miny, maxx, maxy := fp.Bounds()
	assert.Equal(t, 10.0, minx)
	assert.Equal(t, 80.0, miny)
	assert.Equal(t, 20.0, maxx)
	assert.Equal(t, 100.0, maxy)
}

func TestEqualAndComparable(t *testing.T) {
	a := MustNew(0, 10, 1, 1, 10, 10)
	b := MustNew(0, 10, 1, 1, 10, 10)
	c := MustNew(1, 10, 1, 1, 10, 10)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))

	// Footprints are value types usable as map keys.
	m := map[Footprint]int{a: 1}
	assert.Equal(t, 1, m[b])
	_, ok := m[c]
	assert.False(t, ok)
}

func TestKeyIsStableAndDistinct(t *testing.T) {
	a := MustNew(0, 10, 1, 1, 10, 10)
	b := MustNew(0, 10, 1, 1, 10, 10)
	c := MustNew(0.5, 10, 1, 1, 10, 10)

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestSameGrid(t *testing.T) {
	base := MustNew(0, 100, 1, 1, 100, 100)

	assert.True(t, base.SameGrid(MustNew(5, 95, 1, 1, 10, 10)))
	assert.False(t, base.SameGrid(MustNew(5.5, 95, 1, 1, 10, 10)), "fractional offset")
	assert.False(t, base.SameGrid(MustNew(0, 100, 2, 2, 50, 50)), "different resolution")
}

func TestSliceIn(t *testing.T) {
	parent := MustNew(0, 100, 1, 1, 100, 100)

	t.Run("interior window", func(t *testing.T) {
		child := MustNew(10, 80, 1, 1, 5, 7)
		sl, err := child.SliceIn(parent)
		require.NoError(t, err)
		assert.Equal(t, Slice{Row0: 20, Row1: 27, Col0: 10, Col1: 15}, sl)
		assert.Equal(t, 7, sl.Rows())
		assert.Equal(t, 5, sl.Cols())
	})

	t.Run("rejects off-grid child", func(t *testing.T) {
		child := MustNew(10.5, 80, 1, 1, 5, 7)
		_, err := child.SliceIn(parent)
		assert.Error(t, err)
	})

	t.Run("rejects child outside parent", func(t *testing.T) {
		child := MustNew(98, 80, 1, 1, 5, 7)
		_, err := child.SliceIn(parent)
		assert.Error(t, err)
	})
}

func TestIntersection(t *testing.T) {
	a := MustNew(0, 100, 1, 1, 100, 100)

	t.Run("overlap", func(t *testing.T) {
		b := MustNew(50, 60, 1, 1, 100, 100)
		got, ok := a.Intersection(b)
		require.True(t, ok)
		assert.True(t, got.Equal(MustNew(50, 60, 1, 1, 50, 60)))
	})

	t.Run("disjoint", func(t *testing.T) {
		b := MustNew(200, 100, 1, 1, 10, 10)
		_, ok := a.Intersection(b)
		assert.False(t, ok)
	})

	t.Run("touching edges only", func(t *testing.T) {
		b := MustNew(100, 100, 1, 1, 10, 10)
		_, ok := a.Intersection(b)
		assert.False(t, ok)
	})
}

func TestDilateTo(t *testing.T) {
	grid := MustNew(0, 100, 2, 2, 50, 50)
	// A footprint on a finer grid with fractional alignment.
	q := MustNew(3, 97, 1, 1, 4, 4)

	got := grid.DilateTo(q)
	assert.True(t, got.SameGrid(grid))
	assert.True(t, got.ContainsWorld(q))
	// Smallest cover: columns 1..3, rows 1..3 of the coarse grid.
	assert.True(t, got.Equal(MustNew(2, 98, 2, 2, 3, 3)))
}
