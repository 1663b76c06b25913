package raster

import (
	"context"
	"fmt"

	"github.com/earthcube-lab/buzzard/footprint"
)

// Result is one asynchronous read outcome, delivered by QueueData channels
// in request order.
type Result struct {
	Buffer *Buffer
	Err    error
}

// Source is the contract every readable raster in the module satisfies:
// files, in-memory buffers and cached recipes alike. A recipe consumes its
// primitives through this interface only, so recipes nest arbitrarily.
type Source interface {
	// Footprint returns the full extent of the raster.
	Footprint() footprint.Footprint
	// DType returns the element type of the raster's pixels.
	DType() DType
	// Bands returns the band count.
	Bands() int
	// GetData reads the pixels of fp, blocking until they are available.
	GetData(ctx context.Context, fp footprint.Footprint) (*Buffer, error)
	// QueueData enqueues reads for every footprint and returns a channel
	// yielding one Result per footprint, in request order. The channel is
	// closed after the last result.
	QueueData(ctx context.Context, fps []footprint.Footprint) <-chan Result
}

// BufferSource is the trivial Source: a fully materialized in-memory
// buffer. It serves as a leaf primitive under recipes and as the source
// type behind `raster` blocks in pipeline files.
type BufferSource struct {
	buf *Buffer
}

// NewBufferSource wraps buf. The buffer is shared, not copied.
func NewBufferSource(buf *Buffer) *BufferSource {
	return &BufferSource{buf: buf}
}

// Footprint implements Source.
func (s *BufferSource) Footprint() footprint.Footprint { return s.buf.Footprint() }

// DType implements Source.
func (s *BufferSource) DType() DType { return s.buf.DType() }

// Bands implements Source.
func (s *BufferSource) Bands() int { return s.buf.Bands() }

// GetData implements Source. fp must lie on the source grid and inside the
// source extent.
func (s *BufferSource) GetData(ctx context.Context, fp footprint.Footprint) (*Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := NewBuffer(fp, s.buf.DType(), s.buf.Bands())
	if err != nil {
		return nil, err
	}
	n, err := out.CopyRegion(s.buf)
	if err != nil {
		return nil, err
	}
	if n != fp.Pixels() {
		return nil, fmt.Errorf("raster: %v reaches outside the source extent %v", fp, s.buf.Footprint())
	}
	return out, nil
}

// QueueData implements Source.
func (s *BufferSource) QueueData(ctx context.Context, fps []footprint.Footprint) <-chan Result {
	out := make(chan Result, len(fps))
	go func() {
		defer close(out)
		for _, fp := range fps {
			buf, err := s.GetData(ctx, fp)
			select {
			case out <- Result{Buffer: buf, Err: err}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
