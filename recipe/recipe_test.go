package recipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/earthcube-lab/buzzard/footprint"
	"github.com/earthcube-lab/buzzard/internal/ctxlog"
	"github.com/earthcube-lab/buzzard/pool"
	"github.com/earthcube-lab/buzzard/raster"
)

// countingCompute returns a ComputeFunc filling each tile with v and an
// atomic counter of invocations.
func countingCompute(dtype raster.DType, bands int, v float64) (ComputeFunc, *atomic.Int32) {
	var count atomic.Int32
	fn := func(ctx context.Context, fp footprint.Footprint, prims map[string]*raster.Buffer) (*raster.Buffer, error) {
		count.Add(1)
		buf, err := raster.NewBuffer(fp, dtype, bands)
		if err != nil {
			return nil, err
		}
		buf.Fill(v)
		return buf, nil
	}
	return fn, &count
}

func newTestRecipe(t *testing.T, cfg Config) *CachedRecipe {
	t.Helper()
	if cfg.CacheDir == "" {
		cfg.CacheDir = t.TempDir()
	}
	r, err := New(cfg, nil)
	require.NoError(t, err)
	return r
}

func TestFullExtentScenario(t *testing.T) {
	// 1024x1024 footprint with 512x512 cache tiles: requesting the full
	// extent must compute exactly 4 tiles, write 4 cache files and deliver
	// a full-size array without resampling.
	fp := footprint.MustNew(0, 1024, 1, 1, 1024, 1024)
	compute, count := countingCompute(raster.Uint8, 1, 7)
	dir := t.TempDir()
	r := newTestRecipe(t, Config{
		Footprint:     fp,
		DType:         raster.Uint8,
		Bands:         1,
		CacheDir:      dir,
		CacheTileSize: [2]int{512, 512},
		Compute:       compute,
	})

	got, err := r.GetData(context.Background(), fp)
	require.NoError(t, err)
	assert.True(t, got.Footprint().Equal(fp))
	assert.Equal(t, 7.0, got.At(0, 0, 0))
	assert.Equal(t, 7.0, got.At(1023, 1023, 0))
	assert.Equal(t, int32(4), count.Load())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 4, "one cache file per tile")

	// Warm cache: the same request computes nothing.
	_, err = r.GetData(context.Background(), fp)
	require.NoError(t, err)
	assert.Equal(t, int32(4), count.Load())
}

func TestWarmCacheSurvivesRestart(t *testing.T) {
	fp := footprint.MustNew(0, 64, 1, 1, 64, 64)
	dir := t.TempDir()

	compute1, count1 := countingCompute(raster.Float64, 1, 3)
	r1 := newTestRecipe(t, Config{
		Footprint: fp, DType: raster.Float64, Bands: 1,
		CacheDir: dir, CacheTileSize: [2]int{32, 32},
		Compute: compute1,
	})
	_, err := r1.GetData(context.Background(), fp)
	require.NoError(t, err)
	require.Equal(t, int32(4), count1.Load())

	// A second recipe instance over the same directory reads instead of
	// recomputing.
	compute2, count2 := countingCompute(raster.Float64, 1, 3)
	r2 := newTestRecipe(t, Config{
		Footprint: fp, DType: raster.Float64, Bands: 1,
		CacheDir: dir, CacheTileSize: [2]int{32, 32},
		Compute: compute2,
	})
	got, err := r2.GetData(context.Background(), fp)
	require.NoError(t, err)
	assert.Equal(t, int32(0), count2.Load())
	assert.Equal(t, 3.0, got.At(63, 63, 0))
}

func TestConcurrentRequestsComputeOnce(t *testing.T) {
	fp := footprint.MustNew(0, 64, 1, 1, 64, 64)
	var count atomic.Int32
	release := make(chan struct{})
	compute := func(ctx context.Context, tfp footprint.Footprint, prims map[string]*raster.Buffer) (*raster.Buffer, error) {
		count.Add(1)
		<-release
		buf, err := raster.NewBuffer(tfp, raster.Float64, 1)
		if err != nil {
			return nil, err
		}
		buf.Fill(1)
		return buf, nil
	}
	reg := pool.NewRegistry(4)
	defer reg.Close()
	r, err := New(Config{
		Footprint: fp, DType: raster.Float64, Bands: 1,
		CacheDir: t.TempDir(), CacheTileSize: [2]int{64, 64},
		ComputationPool: pool.RefNamed("cpu"), Compute: compute,
	}, reg)
	require.NoError(t, err)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = r.GetData(context.Background(), fp)
		}()
	}
	// All requesters join the single in-flight computation.
	close(release)
	wg.Wait()
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}
	assert.Equal(t, int32(1), count.Load())
}

func TestPrimitiveFootprintConversion(t *testing.T) {
	primFP := footprint.MustNew(-64, 128, 1, 1, 192, 192)
	primBuf, err := raster.NewBuffer(primFP, raster.Float64, 1)
	require.NoError(t, err)
	primBuf.Fill(2)

	// A primitive that records the footprints requested from it.
	var mu sync.Mutex
	var requested []footprint.Footprint
	prim := &recordingSource{
		inner: raster.NewBufferSource(primBuf),
		onGet: func(fp footprint.Footprint) {
			mu.Lock()
			requested = append(requested, fp)
			mu.Unlock()
		},
	}

	fp := footprint.MustNew(0, 64, 1, 1, 64, 64)
	double := func(in footprint.Footprint) footprint.Footprint {
		ox, oy := in.Origin()
		px, py := in.PixelSize()
		out, _ := footprint.New(
			ox-float64(in.Width())/2*px, oy+float64(in.Height())/2*py,
			px, py, in.Width()*2, in.Height()*2,
		)
		return out
	}
	compute := func(ctx context.Context, tfp footprint.Footprint, prims map[string]*raster.Buffer) (*raster.Buffer, error) {
		src, ok := prims["dem"]
		if !ok {
			return nil, fmt.Errorf("missing primitive")
		}
		buf, err := raster.NewBuffer(tfp, raster.Float64, 1)
		if err != nil {
			return nil, err
		}
		buf.Fill(src.At(0, 0, 0) * 10)
		return buf, nil
	}
	r := newTestRecipe(t, Config{
		Footprint: fp, DType: raster.Float64, Bands: 1,
		CacheDir: t.TempDir(), CacheTileSize: [2]int{64, 64},
		Compute:    compute,
		Primitives: map[string]raster.Source{"dem": prim},
		ConvertFootprint: map[string]ConvertFunc{
			"dem": double,
		},
	})

	got, err := r.GetData(context.Background(), fp)
	require.NoError(t, err)
	assert.Equal(t, 20.0, got.At(0, 0, 0))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, requested, 1)
	// The computation tile is the full 64x64 extent; the primitive must
	// have been asked for exactly double that in both dimensions.
	assert.Equal(t, 128, requested[0].Width())
	assert.Equal(t, 128, requested[0].Height())
	assert.True(t, requested[0].ContainsWorld(fp))
}

// recordingSource wraps a Source and reports every GetData footprint.
type recordingSource struct {
	inner raster.Source
	onGet func(fp footprint.Footprint)
}

func (s *recordingSource) Footprint() footprint.Footprint { return s.inner.Footprint() }
func (s *recordingSource) DType() raster.DType            { return s.inner.DType() }
func (s *recordingSource) Bands() int                     { return s.inner.Bands() }

func (s *recordingSource) GetData(ctx context.Context, fp footprint.Footprint) (*raster.Buffer, error) {
	s.onGet(fp)
	return s.inner.GetData(ctx, fp)
}

func (s *recordingSource) QueueData(ctx context.Context, fps []footprint.Footprint) <-chan raster.Result {
	return s.inner.QueueData(ctx, fps)
}

func TestComputationTilesDifferFromCacheTiles(t *testing.T) {
	// 64x64 extent, 32x32 cache tiles, 16x16 computation tiles: each cache
	// tile merges 4 computation results.
	fp := footprint.MustNew(0, 64, 1, 1, 64, 64)
	compute, count := countingCompute(raster.Float64, 1, 5)
	r := newTestRecipe(t, Config{
		Footprint: fp, DType: raster.Float64, Bands: 1,
		CacheDir:            t.TempDir(),
		CacheTileSize:       [2]int{32, 32},
		ComputationTileSize: [2]int{16, 16},
		Compute:             compute,
	})

	got, err := r.GetData(context.Background(), fp)
	require.NoError(t, err)
	assert.Equal(t, int32(16), count.Load())
	assert.Equal(t, 5.0, got.At(40, 40, 0))
}

func TestComputeErrorPropagatesAndRecovers(t *testing.T) {
	fp := footprint.MustNew(0, 64, 1, 1, 64, 64)
	boom := errors.New("boom")
	var fail atomic.Bool
	fail.Store(true)
	compute := func(ctx context.Context, tfp footprint.Footprint, prims map[string]*raster.Buffer) (*raster.Buffer, error) {
		ox, _ := tfp.Origin()
		if fail.Load() && ox == 0 {
			return nil, boom
		}
		buf, err := raster.NewBuffer(tfp, raster.Float64, 1)
		if err != nil {
			return nil, err
		}
		buf.Fill(1)
		return buf, nil
	}
	r := newTestRecipe(t, Config{
		Footprint: fp, DType: raster.Float64, Bands: 1,
		CacheDir: t.TempDir(), CacheTileSize: [2]int{32, 64},
		Compute: compute,
	})

	// Left tile fails; the request fails with a ComputationError wrapping
	// the user error.
	_, err := r.GetData(context.Background(), fp)
	require.Error(t, err)
	var cerr *ComputationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "compute", cerr.Stage)
	assert.ErrorIs(t, err, boom)

	// The recipe stays usable: the right tile works on its own.
	right := footprint.MustNew(32, 64, 1, 1, 32, 64)
	_, err = r.GetData(context.Background(), right)
	require.NoError(t, err)

	// Failed tiles are not poisoned: once the cause clears, a retry
	// computes them.
	fail.Store(false)
	got, err := r.GetData(context.Background(), fp)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.At(0, 0, 0))
}

func TestMalformedComputeResultIsConsistencyError(t *testing.T) {
	fp := footprint.MustNew(0, 32, 1, 1, 32, 32)
	wrong := footprint.MustNew(0, 16, 1, 1, 16, 16)
	compute := func(ctx context.Context, tfp footprint.Footprint, prims map[string]*raster.Buffer) (*raster.Buffer, error) {
		buf, err := raster.NewBuffer(wrong, raster.Float64, 1)
		return buf, err
	}
	r := newTestRecipe(t, Config{
		Footprint: fp, DType: raster.Float64, Bands: 1,
		CacheDir: t.TempDir(), CacheTileSize: [2]int{32, 32},
		Compute: compute,
	})
	_, err := r.GetData(context.Background(), fp)
	var cons *ConsistencyError
	assert.ErrorAs(t, err, &cons)
}

func TestCorruptCacheTileRecomputes(t *testing.T) {
	fp := footprint.MustNew(0, 32, 1, 1, 32, 32)
	compute, count := countingCompute(raster.Float64, 1, 9)
	dir := t.TempDir()
	r := newTestRecipe(t, Config{
		Footprint: fp, DType: raster.Float64, Bands: 1,
		CacheDir: dir, CacheTileSize: [2]int{32, 32},
		Compute: compute,
	})
	_, err := r.GetData(context.Background(), fp)
	require.NoError(t, err)
	require.Equal(t, int32(1), count.Load())

	// Corrupt the single cache file in place.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	path := dir + "/" + entries[0].Name()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	got, err := r.GetData(context.Background(), fp)
	require.NoError(t, err, "corruption heals itself")
	assert.Equal(t, int32(2), count.Load())
	assert.Equal(t, 9.0, got.At(0, 0, 0))
}

func TestInvalidateForcesRecompute(t *testing.T) {
	fp := footprint.MustNew(0, 64, 1, 1, 64, 64)
	compute, count := countingCompute(raster.Float64, 1, 4)
	r := newTestRecipe(t, Config{
		Footprint: fp, DType: raster.Float64, Bands: 1,
		CacheDir: t.TempDir(), CacheTileSize: [2]int{32, 32},
		Compute: compute,
	})
	_, err := r.GetData(context.Background(), fp)
	require.NoError(t, err)
	require.Equal(t, int32(4), count.Load())

	// Invalidate only the top-left quadrant.
	require.NoError(t, r.Invalidate(footprint.MustNew(0, 64, 1, 1, 32, 32)))
	_, err = r.GetData(context.Background(), fp)
	require.NoError(t, err)
	assert.Equal(t, int32(5), count.Load())
}

func TestResamplingPath(t *testing.T) {
	fp := footprint.MustNew(0, 64, 1, 1, 64, 64)
	compute := func(ctx context.Context, tfp footprint.Footprint, prims map[string]*raster.Buffer) (*raster.Buffer, error) {
		buf, err := raster.NewBuffer(tfp, raster.Float64, 1)
		if err != nil {
			return nil, err
		}
		buf.Fill(6)
		return buf, nil
	}
	r := newTestRecipe(t, Config{
		Footprint: fp, DType: raster.Float64, Bands: 1,
		CacheDir: t.TempDir(), CacheTileSize: [2]int{32, 32},
		Compute: compute, MaxResamplingSize: 16,
	})

	t.Run("fractional offset", func(t *testing.T) {
		q := footprint.MustNew(0.5, 63.5, 1, 1, 10, 10)
		got, err := r.GetData(context.Background(), q)
		require.NoError(t, err)
		assert.True(t, got.Footprint().Equal(q))
		assert.Equal(t, 6.0, got.At(5, 5, 0))
	})

	t.Run("coarser resolution", func(t *testing.T) {
		q := footprint.MustNew(0, 64, 2, 2, 32, 32)
		got, err := r.GetData(context.Background(), q)
		require.NoError(t, err)
		assert.True(t, got.Footprint().Equal(q))
		assert.Equal(t, 6.0, got.At(31, 31, 0))
	})

	t.Run("outside the extent", func(t *testing.T) {
		q := footprint.MustNew(60, 64, 1, 1, 10, 10)
		_, err := r.GetData(context.Background(), q)
		assert.Error(t, err)
	})
}

func TestQueueDataOrderAndIterData(t *testing.T) {
	fp := footprint.MustNew(0, 64, 1, 1, 64, 64)
	compute, _ := countingCompute(raster.Float64, 1, 2)
	r := newTestRecipe(t, Config{
		Footprint: fp, DType: raster.Float64, Bands: 1,
		CacheDir: t.TempDir(), CacheTileSize: [2]int{32, 32},
		Compute: compute,
	})

	tiling, err := fp.Tile(16, 16, 0, 0, footprint.Shrink)
	require.NoError(t, err)
	fps := tiling.All()

	var got []footprint.Footprint
	for res := range r.QueueData(context.Background(), fps) {
		require.NoError(t, res.Err)
		got = append(got, res.Buffer.Footprint())
	}
	require.Len(t, got, len(fps))
	for i := range fps {
		assert.True(t, got[i].Equal(fps[i]), "results arrive in request order")
	}

	n := 0
	for res := range r.IterData(context.Background(), fps[:5]) {
		require.NoError(t, res.Err)
		n++
	}
	assert.Equal(t, 5, n)
}

func TestRequestLogsCarryRecipeIdentity(t *testing.T) {
	// With several recipes sharing one logger, entries are attributed to a
	// recipe by its id alongside the per-request id.
	fp := footprint.MustNew(0, 32, 1, 1, 32, 32)
	compute, _ := countingCompute(raster.Float64, 1, 1)
	r := newTestRecipe(t, Config{
		Footprint: fp, DType: raster.Float64, Bands: 1,
		CacheDir: t.TempDir(), Compute: compute,
	})

	var logbuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logbuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := ctxlog.WithLogger(context.Background(), logger)

	_, err := r.GetData(ctx, fp)
	require.NoError(t, err)

	assert.Contains(t, logbuf.String(), "recipe="+r.id)
	assert.Contains(t, logbuf.String(), "request=")
}

func TestCancelledRequesterDoesNotDisturbOthers(t *testing.T) {
	fp := footprint.MustNew(0, 32, 1, 1, 32, 32)
	started := make(chan struct{})
	var startedOnce sync.Once
	release := make(chan struct{})
	compute := func(ctx context.Context, tfp footprint.Footprint, prims map[string]*raster.Buffer) (*raster.Buffer, error) {
		startedOnce.Do(func() { close(started) })
		<-release
		buf, err := raster.NewBuffer(tfp, raster.Float64, 1)
		if err != nil {
			return nil, err
		}
		buf.Fill(8)
		return buf, nil
	}
	r := newTestRecipe(t, Config{
		Footprint: fp, DType: raster.Float64, Bands: 1,
		CacheDir: t.TempDir(), CacheTileSize: [2]int{32, 32},
		ComputationPool: pool.RefHandle(pool.NewWorkers("cpu", 1)),
		Compute:         compute,
	})

	ctx1, cancel1 := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := r.GetData(ctx1, fp)
		errc <- err
	}()
	<-started

	// Second requester joins the in-flight tile, then the first cancels.
	type outcome struct {
		buf *raster.Buffer
		err error
	}
	gotc := make(chan outcome, 1)
	go func() {
		buf, err := r.GetData(context.Background(), fp)
		gotc <- outcome{buf, err}
	}()
	cancel1()
	require.ErrorIs(t, <-errc, context.Canceled)

	close(release)
	got := <-gotc
	require.NoError(t, got.err)
	assert.Equal(t, 8.0, got.buf.At(0, 0, 0))
}

func TestCancelThenRerequestJoinsRunningComputation(t *testing.T) {
	// Cancellation is not preemptive: a compute abandoned by every
	// requester keeps running on its worker. A request arriving in that
	// window must join the running invocation, never launch a second
	// concurrent one for the same tile.
	fp := footprint.MustNew(0, 32, 1, 1, 32, 32)
	started := make(chan struct{})
	release := make(chan struct{})
	var invocations, inFlight, maxInFlight atomic.Int32
	compute := func(ctx context.Context, tfp footprint.Footprint, prims map[string]*raster.Buffer) (*raster.Buffer, error) {
		if invocations.Add(1) == 1 {
			close(started)
		}
		cur := inFlight.Add(1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		buf, err := raster.NewBuffer(tfp, raster.Float64, 1)
		if err != nil {
			return nil, err
		}
		buf.Fill(8)
		return buf, nil
	}
	r := newTestRecipe(t, Config{
		Footprint: fp, DType: raster.Float64, Bands: 1,
		CacheDir: t.TempDir(), CacheTileSize: [2]int{32, 32},
		ComputationPool: pool.RefHandle(pool.NewWorkers("cpu", 2)),
		Compute:         compute,
	})

	ctx1, cancel1 := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := r.GetData(ctx1, fp)
		errc <- err
	}()
	<-started
	cancel1()
	require.ErrorIs(t, <-errc, context.Canceled)

	// The first invocation is still blocked on its worker here. The second
	// requester has a free worker available; only the tile dedup keeps it
	// from using one.
	type outcome struct {
		buf *raster.Buffer
		err error
	}
	gotc := make(chan outcome, 1)
	go func() {
		buf, err := r.GetData(context.Background(), fp)
		gotc <- outcome{buf, err}
	}()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), invocations.Load(), "second requester must join the in-flight compute")

	close(release)
	got := <-gotc
	require.NoError(t, got.err)
	assert.Equal(t, 8.0, got.buf.At(0, 0, 0))
	assert.Equal(t, int32(1), maxInFlight.Load(), "at most one compute in flight per tile")
}
