package recipe

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/earthcube-lab/buzzard/footprint"
	"github.com/earthcube-lab/buzzard/internal/ctxlog"
	"github.com/earthcube-lab/buzzard/raster"
)

// tileState is the lifecycle of one cache tile being produced.
type tileState int32

const (
	stateMissing tileState = iota
	stateAwaitingPrimitives
	stateComputing
	stateMerging
	stateWriting
	stateReady
	stateFailed
)

func (s tileState) String() string {
	switch s {
	case stateMissing:
		return "MISSING"
	case stateAwaitingPrimitives:
		return "AWAITING_PRIMITIVES"
	case stateComputing:
		return "COMPUTING"
	case stateMerging:
		return "MERGING"
	case stateWriting:
		return "WRITING"
	case stateReady:
		return "READY"
	case stateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// task is one in-flight unit of work shared by every requester of the same
// tile. At most one task exists per (recipe, tile) at any time; requesters
// join an existing task instead of resubmitting. refs counts requesters;
// when the last one releases, the task context is cancelled, but the map
// entry stays until the driver goroutine finishes so that late requesters
// join work that is still executing instead of starting it twice.
type task struct {
	fp     footprint.Footprint
	state  atomic.Int32
	done   chan struct{}
	cancel context.CancelFunc

	// Set exactly once, before done is closed.
	buf *raster.Buffer
	err error

	refs int // guarded by the owning map's mutex
}

func newTask(fp footprint.Footprint, cancel context.CancelFunc) *task {
	return &task{fp: fp, done: make(chan struct{}), cancel: cancel, refs: 1}
}

func (t *task) setState(s tileState) { t.state.Store(int32(s)) }

func (t *task) finish(buf *raster.Buffer, err error) {
	t.buf, t.err = buf, err
	if err != nil {
		t.setState(stateFailed)
	} else {
		t.setState(stateReady)
	}
	close(t.done)
}

// taskMap deduplicates in-flight work per tile footprint.
type taskMap struct {
	mu    sync.Mutex
	tasks map[footprint.Footprint]*task
}

func newTaskMap() *taskMap {
	return &taskMap{tasks: make(map[footprint.Footprint]*task)}
}

// acquire returns the in-flight task for fp, creating one when none exists.
// The second return is true when the task is fresh and the caller must
// start its driver. The caller holds a reference either way and must
// release it.
func (m *taskMap) acquire(fp footprint.Footprint, cancel context.CancelFunc) (*task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[fp]; ok {
		t.refs++
		return t, false
	}
	t := newTask(fp, cancel)
	m.tasks[fp] = t
	return t, true
}

// release drops one reference. When the last requester lets go, the task
// context is cancelled so cooperative stages stop early. The entry is NOT
// removed here: user callbacks are not preemptible, so the tile may still
// be computing, and removal would let a new request start a second
// concurrent computation for it. Only complete removes entries.
func (m *taskMap) release(t *task) {
	m.mu.Lock()
	t.refs--
	last := t.refs == 0
	m.mu.Unlock()
	if last {
		t.cancel()
	}
}

// complete finishes t and removes it from the map in one step. Requesters
// that acquired before the removal observe the finished task; requesters
// arriving after start fresh, which is how failed tiles become retryable.
func (m *taskMap) complete(t *task, buf *raster.Buffer, err error) {
	m.mu.Lock()
	delete(m.tasks, t.fp)
	m.mu.Unlock()
	t.finish(buf, err)
}

// await blocks until t finishes or ctx is cancelled.
func (t *task) await(ctx context.Context) (*raster.Buffer, error) {
	select {
	case <-t.done:
		return t.buf, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// submit runs fn on p and blocks until it returns. The wait is
// unconditional: abandoning a queued or running fn would leave it executing
// after its task left the map, so cancellation is delivered to fn through
// its own context instead.
func submit[T any](p interface{ Submit(func()) }, fn func() (T, error)) (T, error) {
	type outcome struct {
		v   T
		err error
	}
	ch := make(chan outcome, 1)
	p.Submit(func() {
		v, err := fn()
		ch <- outcome{v, err}
	})
	out := <-ch
	return out.v, out.err
}

// taskContext derives the lifetime context a shared task runs under. It is
// detached from any single requester (others may still be waiting after the
// first one cancels) but keeps the requester's logger.
func taskContext(ctx context.Context) (context.Context, context.CancelFunc) {
	base := ctxlog.WithLogger(context.Background(), ctxlog.FromContext(ctx))
	return context.WithCancel(base)
}

// runCacheTile drives one cache tile from MISSING to READY: probe the
// store, expand the miss into computation tiles, merge, persist.
func (r *CachedRecipe) runCacheTile(ctx context.Context, t *task) {
	logger := ctxlog.FromContext(ctx).With("tile", t.fp.String())

	// Cache probe.
	if r.store.Exists(t.fp) {
		buf, err := r.store.Read(t.fp)
		if err == nil {
			logger.Debug("cache hit")
			r.cacheTasks.complete(t, buf, nil)
			return
		}
		if !errors.Is(err, os.ErrNotExist) {
			// Corruption is self-healing (the tile is recomputed below)
			// but must never pass silently.
			logger.Error("cache tile unreadable, recomputing", "error", err)
		}
	}

	// Miss expansion into computation tiles.
	comps := r.compIndex.Intersecting(t.fp)
	if len(comps) == 0 {
		r.cacheTasks.complete(t, nil, consistencyErrorf("no computation tile covers cache tile %v", t.fp))
		return
	}

	parts := make([]*raster.Buffer, len(comps))
	t.setState(stateAwaitingPrimitives)
	logger.Debug("cache tile state", "state", stateAwaitingPrimitives, "computations", len(comps))

	g, gctx := errgroup.WithContext(ctx)
	for i, cfp := range comps {
		g.Go(func() error {
			buf, err := r.computationResult(gctx, cfp)
			if err != nil {
				return err
			}
			parts[i] = buf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.cacheTasks.complete(t, nil, err)
		return
	}

	// Merge on the merge pool.
	t.setState(stateMerging)
	logger.Debug("cache tile state", "state", stateMerging)
	merged, err := submit(r.mergePool, func() (*raster.Buffer, error) {
		return r.merge(t.fp, parts)
	})
	if err != nil {
		var cons *ConsistencyError
		if errors.As(err, &cons) || (errors.Is(err, context.Canceled) && ctx.Err() != nil) {
			r.cacheTasks.complete(t, nil, err)
		} else {
			r.cacheTasks.complete(t, nil, &ComputationError{Stage: "merge", Tile: t.fp, Err: err})
		}
		return
	}
	if err := r.checkShape(merged, t.fp, "merge"); err != nil {
		r.cacheTasks.complete(t, nil, err)
		return
	}

	// Persist on the io pool. A failed write leaves the tile absent; the
	// data is not handed out either, so the next request recomputes.
	t.setState(stateWriting)
	logger.Debug("cache tile state", "state", stateWriting)
	if _, err := submit(r.ioPool, func() (struct{}, error) {
		return struct{}{}, r.store.Write(t.fp, merged)
	}); err != nil {
		logger.Error("cache tile write failed", "error", err)
		r.cacheTasks.complete(t, nil, &CacheIOError{Tile: t.fp, Err: err})
		return
	}

	logger.Debug("cache tile ready")
	r.cacheTasks.complete(t, merged, nil)
}

// computationResult returns the computed buffer for one computation tile,
// joining an in-flight computation when one exists.
func (r *CachedRecipe) computationResult(ctx context.Context, cfp footprint.Footprint) (*raster.Buffer, error) {
	return r.awaitTask(ctx, r.compTasks, cfp, r.runComputation)
}

// awaitTask joins the in-flight task for fp in m, starting a driver when
// none exists, and waits for its result. A task that finished with
// context.Canceled was abandoned by its own requesters; as long as ctx
// itself is live the join is retried against a fresh task.
func (r *CachedRecipe) awaitTask(ctx context.Context, m *taskMap, fp footprint.Footprint, drive func(context.Context, *task)) (*raster.Buffer, error) {
	for {
		tctx, cancel := taskContext(ctx)
		t, fresh := m.acquire(fp, cancel)
		if !fresh {
			cancel()
		} else {
			go drive(tctx, t)
		}
		buf, err := t.await(ctx)
		m.release(t)
		if err != nil && errors.Is(err, context.Canceled) && ctx.Err() == nil {
			continue
		}
		return buf, err
	}
}

// runComputation drives one computation tile: gather primitive inputs,
// then run the user callback on the computation pool.
func (r *CachedRecipe) runComputation(ctx context.Context, ct *task) {
	logger := ctxlog.FromContext(ctx).With("tile", ct.fp.String())
	ct.setState(stateAwaitingPrimitives)
	logger.Debug("computation state", "state", stateAwaitingPrimitives, "primitives", len(r.prims))

	prims := make(map[string]*raster.Buffer, len(r.prims))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for name, src := range r.prims {
		pfp := r.convert[name](ct.fp)
		g.Go(func() error {
			buf, err := src.GetData(gctx, pfp)
			if err != nil {
				return err
			}
			mu.Lock()
			prims[name] = buf
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			r.compTasks.complete(ct, nil, err)
		} else {
			r.compTasks.complete(ct, nil, &ComputationError{Stage: "primitives", Tile: ct.fp, Err: err})
		}
		return
	}

	ct.setState(stateComputing)
	logger.Debug("computation state", "state", stateComputing)
	buf, err := submit(r.computationPool, func() (*raster.Buffer, error) {
		return r.compute(ctx, ct.fp, prims)
	})
	if err != nil {
		// A bare Canceled counts as abandonment only when this task's own
		// context was cancelled; from a live task it is a compute failure.
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			r.compTasks.complete(ct, nil, err)
		} else {
			r.compTasks.complete(ct, nil, &ComputationError{Stage: "compute", Tile: ct.fp, Err: err})
		}
		return
	}
	if err := r.checkShape(buf, ct.fp, "compute"); err != nil {
		r.compTasks.complete(ct, nil, err)
		return
	}
	r.compTasks.complete(ct, buf, nil)
}

// checkShape enforces the invariant that every produced array matches its
// tile footprint and the recipe layout exactly.
func (r *CachedRecipe) checkShape(buf *raster.Buffer, fp footprint.Footprint, stage string) error {
	if buf == nil {
		return consistencyErrorf("%s returned no array for %v", stage, fp)
	}
	if !buf.Footprint().Equal(fp) {
		return consistencyErrorf("%s returned array for %v, want %v", stage, buf.Footprint(), fp)
	}
	if buf.DType() != r.dtype || buf.Bands() != r.bands {
		return consistencyErrorf("%s returned %v x%d, want %v x%d", stage, buf.DType(), buf.Bands(), r.dtype, r.bands)
	}
	return nil
}

// cacheTileResult returns the buffer for one cache tile, joining an
// in-flight production when one exists.
func (r *CachedRecipe) cacheTileResult(ctx context.Context, fp footprint.Footprint) (*raster.Buffer, error) {
	return r.awaitTask(ctx, r.cacheTasks, fp, r.runCacheTile)
}
