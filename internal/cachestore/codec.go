package cachestore

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"github.com/earthcube-lab/buzzard/footprint"
	"github.com/earthcube-lab/buzzard/raster"
)

// Tile file layout, little-endian:
//
//	magic   [4]byte  "BZT1"
//	dtype   uint8
//	bands   uint16
//	width   uint32
//	height  uint32
//	originX float64
//	originY float64
//	pixelW  float64
//	pixelH  float64
//	payload width*height*bands*dtype.Size() bytes
//	crc32   uint32 (IEEE, over header+payload)
//
// The trailing checksum catches truncated or bit-rotted files; a failed
// check is surfaced as a corruption error and handled upstream as a miss.

var tileMagic = [4]byte{'B', 'Z', 'T', '1'}

const tileHeaderSize = 4 + 1 + 2 + 4 + 4 + 8*4

func encodeTile(w io.Writer, buf *raster.Buffer) error {
	header := make([]byte, tileHeaderSize)
	copy(header[0:4], tileMagic[:])
	header[4] = uint8(buf.DType())
	binary.LittleEndian.PutUint16(header[5:], uint16(buf.Bands()))
	fp := buf.Footprint()
	binary.LittleEndian.PutUint32(header[7:], uint32(fp.Width()))
	binary.LittleEndian.PutUint32(header[11:], uint32(fp.Height()))
	ox, oy := fp.Origin()
	px, py := fp.PixelSize()
	binary.LittleEndian.PutUint64(header[15:], math.Float64bits(ox))
	binary.LittleEndian.PutUint64(header[23:], math.Float64bits(oy))
	binary.LittleEndian.PutUint64(header[31:], math.Float64bits(px))
	binary.LittleEndian.PutUint64(header[39:], math.Float64bits(py))

	crc := crc32.NewIEEE()
	crc.Write(header)
	crc.Write(buf.Bytes())

	if _, err := w.Write(header); err != nil {
		return err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	var tail [4]byte
	binary.LittleEndian.PutUint32(tail[:], crc.Sum32())
	_, err := w.Write(tail[:])
	return err
}

func decodeTile(r io.Reader) (*raster.Buffer, error) {
	header := make([]byte, tileHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("tile header: %w", err)
	}
	if [4]byte(header[0:4]) != tileMagic {
		return nil, fmt.Errorf("bad tile magic %q", header[0:4])
	}
	dtype := raster.DType(header[4])
	if !dtype.Valid() {
		return nil, fmt.Errorf("bad tile dtype %d", header[4])
	}
	bands := int(binary.LittleEndian.Uint16(header[5:]))
	width := int(binary.LittleEndian.Uint32(header[7:]))
	height := int(binary.LittleEndian.Uint32(header[11:]))
	ox := math.Float64frombits(binary.LittleEndian.Uint64(header[15:]))
	oy := math.Float64frombits(binary.LittleEndian.Uint64(header[23:]))
	px := math.Float64frombits(binary.LittleEndian.Uint64(header[31:]))
	py := math.Float64frombits(binary.LittleEndian.Uint64(header[39:]))

	fp, err := footprint.New(ox, oy, px, py, width, height)
	if err != nil {
		return nil, fmt.Errorf("tile footprint: %w", err)
	}

	payload := make([]byte, fp.Pixels()*bands*dtype.Size())
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("tile payload: %w", err)
	}
	var tail [4]byte
	if _, err := io.ReadFull(r, tail[:]); err != nil {
		return nil, fmt.Errorf("tile checksum: %w", err)
	}

	crc := crc32.NewIEEE()
	crc.Write(header)
	crc.Write(payload)
	if got, want := binary.LittleEndian.Uint32(tail[:]), crc.Sum32(); got != want {
		return nil, fmt.Errorf("tile checksum mismatch: file %08x, computed %08x", got, want)
	}

	return raster.WrapBytes(fp, dtype, bands, payload)
}
