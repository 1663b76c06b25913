// Package pool provides the execution contexts pipeline stages run on: an
// inline synchronous context, bounded worker pools, and a process-wide
// registry of pools shared by name.
//
// Stages are routed to pools through a Ref, a tagged reference resolved
// once at recipe construction. Routing CPU-bound computation and I/O-bound
// cache writes to different pools keeps one from starving the other.
package pool

import (
	"fmt"
	"sync"
)

// Pool runs submitted functions on some execution context.
type Pool interface {
	// Submit schedules fn. It never blocks the caller on fn's completion,
	// except for the inline pool which runs fn on the calling goroutine.
	Submit(fn func())
}

// Inline runs everything synchronously on the calling goroutine. It is the
// right choice for stages cheap enough that dispatch overhead is not worth
// paying.
type Inline struct{}

// Submit implements Pool.
func (Inline) Submit(fn func()) { fn() }

// Workers is a bounded pool of goroutines draining a shared queue.
type Workers struct {
	name  string
	queue chan func()
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// NewWorkers starts a pool of size goroutines. name is used in logs and by
// the registry; it may be empty for anonymous pools.
func NewWorkers(name string, size int) *Workers {
	if size <= 0 {
		size = 1
	}
	w := &Workers{
		name:  name,
		queue: make(chan func(), size*4),
	}
	w.wg.Add(size)
	for i := 0; i < size; i++ {
		go w.worker()
	}
	return w
}

func (w *Workers) worker() {
	defer w.wg.Done()
	for fn := range w.queue {
		fn()
	}
}

// Name returns the pool's name.
func (w *Workers) Name() string { return w.name }

// Submit implements Pool. Submitting to a closed pool panics, like sending
// on a closed channel; pools must outlive the recipes using them.
func (w *Workers) Submit(fn func()) { w.queue <- fn }

// Close stops accepting work and waits for queued functions to finish.
func (w *Workers) Close() {
	w.closeOnce.Do(func() {
		close(w.queue)
	})
	w.wg.Wait()
}

// Registry is a set of named pools created on first reference. It is
// typically owned by a Dataset, which closes it on shutdown. Pools are
// shared: two recipes referencing the same name get the same pool.
type Registry struct {
	mu    sync.Mutex
	size  int
	pools map[string]*Workers
}

// NewRegistry creates a registry whose pools have defaultSize workers each.
func NewRegistry(defaultSize int) *Registry {
	if defaultSize <= 0 {
		defaultSize = 1
	}
	return &Registry{size: defaultSize, pools: make(map[string]*Workers)}
}

// Get returns the pool registered under name, creating it on first use.
func (r *Registry) Get(name string) *Workers {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pools[name]; ok {
		return p
	}
	p := NewWorkers(name, r.size)
	r.pools[name] = p
	return p
}

// Close shuts down every pool in the registry and waits for them to drain.
func (r *Registry) Close() {
	r.mu.Lock()
	pools := make([]*Workers, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	r.pools = make(map[string]*Workers)
	r.mu.Unlock()

	for _, p := range pools {
		p.Close()
	}
}

// refKind enumerates the ways a stage can reference its pool.
type refKind int

const (
	refInline refKind = iota
	refNamed
	refHandle
)

// Ref is a tagged pool reference: a registry name, an explicit handle, or
// inline execution. The zero Ref is inline.
type Ref struct {
	kind   refKind
	name   string
	handle Pool
}

// RefInline references synchronous execution on the caller.
func RefInline() Ref { return Ref{kind: refInline} }

// RefNamed references a shared pool by registry name.
func RefNamed(name string) Ref { return Ref{kind: refNamed, name: name} }

// RefHandle references an explicit pool instance.
func RefHandle(p Pool) Ref { return Ref{kind: refHandle, handle: p} }

func (r Ref) String() string {
	switch r.kind {
	case refNamed:
		return fmt.Sprintf("named(%s)", r.name)
	case refHandle:
		return "handle"
	default:
		return "inline"
	}
}

// Resolve normalizes the reference into a concrete Pool, using reg for
// named lookups. It is called once per stage at recipe construction.
func (r Ref) Resolve(reg *Registry) (Pool, error) {
	switch r.kind {
	case refInline:
		return Inline{}, nil
	case refNamed:
		if reg == nil {
			return nil, fmt.Errorf("pool: reference %s needs a registry", r)
		}
		if r.name == "" {
			return nil, fmt.Errorf("pool: empty pool name")
		}
		return reg.Get(r.name), nil
	case refHandle:
		if r.handle == nil {
			return nil, fmt.Errorf("pool: nil pool handle")
		}
		return r.handle, nil
	}
	return nil, fmt.Errorf("pool: unknown reference kind %d", r.kind)
}
