package raster

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/earthcube-lab/buzzard/footprint"
)

// Buffer is a pixel array bound to a Footprint. Samples are stored
// row-major, band-interleaved, little-endian. A Buffer owns its backing
// bytes; regions are exchanged by copy.
type Buffer struct {
	fp    footprint.Footprint
	dtype DType
	bands int
	data  []byte
}

// NewBuffer allocates a zero-filled Buffer for fp.
func NewBuffer(fp footprint.Footprint, dtype DType, bands int) (*Buffer, error) {
	if fp.Zero() {
		return nil, fmt.Errorf("raster: zero footprint")
	}
	if !dtype.Valid() {
		return nil, fmt.Errorf("raster: invalid dtype %v", dtype)
	}
	if bands <= 0 {
		return nil, fmt.Errorf("raster: band count must be > 0, got %d", bands)
	}
	return &Buffer{
		fp:    fp,
		dtype: dtype,
		bands: bands,
		data:  make([]byte, fp.Pixels()*bands*dtype.Size()),
	}, nil
}

// WrapBytes builds a Buffer around existing backing bytes without copying.
func WrapBytes(fp footprint.Footprint, dtype DType, bands int, data []byte) (*Buffer, error) {
	want := fp.Pixels() * bands * dtype.Size()
	if len(data) != want {
		return nil, fmt.Errorf("raster: payload is %d bytes, footprint %v with %d %v bands needs %d",
			len(data), fp, bands, dtype, want)
	}
	return &Buffer{fp: fp, dtype: dtype, bands: bands, data: data}, nil
}

// Footprint returns the grid the buffer is bound to.
func (b *Buffer) Footprint() footprint.Footprint { return b.fp }

// DType returns the element type.
func (b *Buffer) DType() DType { return b.dtype }

// Bands returns the band count.
func (b *Buffer) Bands() int { return b.bands }

// Bytes exposes the backing storage. Mutating it mutates the buffer.
func (b *Buffer) Bytes() []byte { return b.data }

// pixelStride is the byte width of one pixel across all bands.
func (b *Buffer) pixelStride() int { return b.bands * b.dtype.Size() }

// At reads the sample at (row, col, band) as a float64.
func (b *Buffer) At(row, col, band int) float64 {
	off := ((row*b.fp.Width()+col)*b.bands + band) * b.dtype.Size()
	switch b.dtype {
	case Uint8:
		return float64(b.data[off])
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(b.data[off:])))
	case Uint16:
		return float64(binary.LittleEndian.Uint16(b.data[off:]))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(b.data[off:])))
	case Uint32:
		return float64(binary.LittleEndian.Uint32(b.data[off:]))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b.data[off:])))
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b.data[off:]))
	}
	return 0
}

// Set writes the sample at (row, col, band), truncating v to the dtype.
func (b *Buffer) Set(row, col, band int, v float64) {
	off := ((row*b.fp.Width()+col)*b.bands + band) * b.dtype.Size()
	switch b.dtype {
	case Uint8:
		b.data[off] = uint8(v)
	case Int16:
		binary.LittleEndian.PutUint16(b.data[off:], uint16(int16(v)))
	case Uint16:
		binary.LittleEndian.PutUint16(b.data[off:], uint16(v))
	case Int32:
		binary.LittleEndian.PutUint32(b.data[off:], uint32(int32(v)))
	case Uint32:
		binary.LittleEndian.PutUint32(b.data[off:], uint32(v))
	case Float32:
		binary.LittleEndian.PutUint32(b.data[off:], math.Float32bits(float32(v)))
	case Float64:
		binary.LittleEndian.PutUint64(b.data[off:], math.Float64bits(v))
	}
}

// Fill sets every sample of every band to v.
func (b *Buffer) Fill(v float64) {
	for row := 0; row < b.fp.Height(); row++ {
		for col := 0; col < b.fp.Width(); col++ {
			for band := 0; band < b.bands; band++ {
				b.Set(row, col, band, v)
			}
		}
	}
}

// SameLayout reports whether o has b's dtype and band count.
func (b *Buffer) SameLayout(o *Buffer) bool {
	return b.dtype == o.dtype && b.bands == o.bands
}

// CopyRegion copies the pixels both buffers have in common, addressed by
// their footprints. Both must share the same grid and layout. It returns
// the number of pixels copied.
func (b *Buffer) CopyRegion(src *Buffer) (int, error) {
	if !b.SameLayout(src) {
		return 0, fmt.Errorf("raster: layout mismatch (%v x%d vs %v x%d)", b.dtype, b.bands, src.dtype, src.bands)
	}
	common, ok := b.fp.Intersection(src.fp)
	if !ok {
		return 0, nil
	}
	dstSl, err := common.SliceIn(b.fp)
	if err != nil {
		return 0, err
	}
	srcSl, err := common.SliceIn(src.fp)
	if err != nil {
		return 0, err
	}
	stride := b.pixelStride()
	rowBytes := dstSl.Cols() * stride
	for r := 0; r < dstSl.Rows(); r++ {
		dstOff := ((dstSl.Row0+r)*b.fp.Width() + dstSl.Col0) * stride
		srcOff := ((srcSl.Row0+r)*src.fp.Width() + srcSl.Col0) * stride
		copy(b.data[dstOff:dstOff+rowBytes], src.data[srcOff:srcOff+rowBytes])
	}
	return common.Pixels(), nil
}

// Clone returns a deep copy of b.
func (b *Buffer) Clone() *Buffer {
	data := make([]byte, len(b.data))
	copy(data, b.data)
	return &Buffer{fp: b.fp, dtype: b.dtype, bands: b.bands, data: data}
}
