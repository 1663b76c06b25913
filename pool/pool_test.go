package pool

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineRunsOnCaller(t *testing.T) {
	ran := false
	Inline{}.Submit(func() { ran = true })
	assert.True(t, ran, "inline submission completes before Submit returns")
}

func TestWorkersRunEverything(t *testing.T) {
	w := NewWorkers("test", 4)
	var count atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		w.Submit(func() {
			count.Add(1)
			wg.Done()
		})
	}
	wg.Wait()
	w.Close()
	assert.Equal(t, int32(100), count.Load())
}

func TestWorkersCloseDrains(t *testing.T) {
	w := NewWorkers("drain", 1)
	var count atomic.Int32
	for i := 0; i < 10; i++ {
		w.Submit(func() { count.Add(1) })
	}
	w.Close()
	assert.Equal(t, int32(10), count.Load())
}

func TestRegistrySharesByName(t *testing.T) {
	reg := NewRegistry(2)
	defer reg.Close()

	a := reg.Get("cpu")
	b := reg.Get("cpu")
	c := reg.Get("io")
	assert.Same(t, a, b, "same name resolves to the same pool")
	assert.NotSame(t, a, c)
	assert.Equal(t, "cpu", a.Name())
}

func TestRefResolve(t *testing.T) {
	reg := NewRegistry(1)
	defer reg.Close()

	t.Run("zero value is inline", func(t *testing.T) {
		var ref Ref
		p, err := ref.Resolve(reg)
		require.NoError(t, err)
		assert.IsType(t, Inline{}, p)
	})

	t.Run("named", func(t *testing.T) {
		p, err := RefNamed("compute").Resolve(reg)
		require.NoError(t, err)
		assert.Same(t, reg.Get("compute"), p)
	})

	t.Run("named without registry", func(t *testing.T) {
		_, err := RefNamed("compute").Resolve(nil)
		assert.Error(t, err)
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := RefNamed("").Resolve(reg)
		assert.Error(t, err)
	})

	t.Run("handle", func(t *testing.T) {
		w := NewWorkers("own", 1)
		defer w.Close()
		p, err := RefHandle(w).Resolve(nil)
		require.NoError(t, err)
		assert.Same(t, Pool(w), p)
	})

	t.Run("nil handle", func(t *testing.T) {
		_, err := RefHandle(nil).Resolve(nil)
		assert.Error(t, err)
	})
}
