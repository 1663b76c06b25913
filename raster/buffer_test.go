package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earthcube-lab/buzzard/footprint"
)

func TestNewBufferValidation(t *testing.T) {
	fp := footprint.MustNew(0, 10, 1, 1, 10, 10)

	_, err := NewBuffer(footprint.Footprint{}, Float64, 1)
	assert.Error(t, err)
	_, err = NewBuffer(fp, DType(99), 1)
	assert.Error(t, err)
	_, err = NewBuffer(fp, Float64, 0)
	assert.Error(t, err)

	buf, err := NewBuffer(fp, Float32, 3)
	require.NoError(t, err)
	assert.Len(t, buf.Bytes(), 10*10*3*4)
}

func TestAtSetRoundTrip(t *testing.T) {
	fp := footprint.MustNew(0, 4, 1, 1, 4, 4)
	cases := []struct {
		dtype DType
		value float64
	}{
		{Uint8, 200},
		{Int16, -1234},
		{Uint16, 54321},
		{Int32, -123456},
		{Uint32, 4000000000},
		{Float32, 1.5},
		{Float64, 3.14159265358979},
	}
	for _, tc := range cases {
		t.Run(tc.dtype.String(), func(t *testing.T) {
			buf, err := NewBuffer(fp, tc.dtype, 2)
			require.NoError(t, err)
			buf.Set(2, 3, 1, tc.value)
			assert.Equal(t, tc.value, buf.At(2, 3, 1))
			assert.Equal(t, 0.0, buf.At(2, 3, 0), "other band untouched")
		})
	}
}

func TestFill(t *testing.T) {
	fp := footprint.MustNew(0, 3, 1, 1, 3, 3)
	buf, err := NewBuffer(fp, Int32, 2)
	require.NoError(t, err)
	buf.Fill(7)
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			for band := 0; band < 2; band++ {
				assert.Equal(t, 7.0, buf.At(row, col, band))
			}
		}
	}
}

func TestWrapBytes(t *testing.T) {
	fp := footprint.MustNew(0, 2, 1, 1, 2, 2)

	_, err := WrapBytes(fp, Uint8, 1, make([]byte, 3))
	assert.Error(t, err)

	data := []byte{1, 2, 3, 4}
	buf, err := WrapBytes(fp, Uint8, 1, data)
	require.NoError(t, err)
	assert.Equal(t, 4.0, buf.At(1, 1, 0))
}

func TestCopyRegion(t *testing.T) {
	parent := footprint.MustNew(0, 10, 1, 1, 10, 10)
	dst, err := NewBuffer(parent, Float64, 1)
	require.NoError(t, err)

	sub := footprint.MustNew(2, 8, 1, 1, 3, 3)
	src, err := NewBuffer(sub, Float64, 1)
	require.NoError(t, err)
	src.Fill(5)

	n, err := dst.CopyRegion(src)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, 5.0, dst.At(2, 2, 0))
	assert.Equal(t, 5.0, dst.At(4, 4, 0))
	assert.Equal(t, 0.0, dst.At(5, 5, 0))
	assert.Equal(t, 0.0, dst.At(1, 1, 0))

	t.Run("partial overlap copies the intersection", func(t *testing.T) {
		edge := footprint.MustNew(8, 4, 1, 1, 5, 5)
		src2, err := NewBuffer(edge, Float64, 1)
		require.NoError(t, err)
		src2.Fill(9)
		n, err := dst.CopyRegion(src2)
		require.NoError(t, err)
		assert.Equal(t, 8, n)
		assert.Equal(t, 9.0, dst.At(9, 9, 0))
	})

	t.Run("disjoint copies nothing", func(t *testing.T) {
		far := footprint.MustNew(100, 10, 1, 1, 2, 2)
		src3, err := NewBuffer(far, Float64, 1)
		require.NoError(t, err)
		n, err := dst.CopyRegion(src3)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("layout mismatch", func(t *testing.T) {
		other, err := NewBuffer(sub, Float32, 1)
		require.NoError(t, err)
		_, err = dst.CopyRegion(other)
		assert.Error(t, err)
	})
}

func TestParseDType(t *testing.T) {
	for _, name := range []string{"uint8", "int16", "uint16", "int32", "uint32", "float32", "float64"} {
		d, err := ParseDType(name)
		require.NoError(t, err)
		assert.Equal(t, name, d.String())
	}
	_, err := ParseDType("complex128")
	assert.Error(t, err)
}
