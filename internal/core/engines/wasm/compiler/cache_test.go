package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"

	wt "github.com/weisyn/vmrunner/internal/testutil/wasmtest"
)

func compile(t *testing.T, rt wazero.Runtime) *Entry {
	t.Helper()
	code := wt.Noop("main")
	compiled, err := rt.CompileModule(context.Background(), code)
	require.NoError(t, err)
	return &Entry{Compiled: compiled, Size: len(code)}
}

func newRuntime(t *testing.T) wazero.Runtime {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	t.Cleanup(func() { _ = rt.Close(ctx) })
	return rt
}

func TestModuleCacheHitsAndMisses(t *testing.T) {
	rt := newRuntime(t)
	c, err := NewModuleCache(0)
	require.NoError(t, err)

	_, ok := c.Get("a")
	assert.False(t, ok)

	e := c.Add("a", compile(t, rt))
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Same(t, e, got)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(e.Size), stats.Bytes)

	e.Release()
	got.Release()
}

func TestModuleCacheAddKeepsExistingEntry(t *testing.T) {
	rt := newRuntime(t)
	c, err := NewModuleCache(4)
	require.NoError(t, err)

	first := c.Add("a", compile(t, rt))
	second := c.Add("a", compile(t, rt))
	assert.Same(t, first, second)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, int64(first.Size), c.Bytes())
	first.Release()
	second.Release()
}

func TestEvictionWaitsForHolders(t *testing.T) {
	rt := newRuntime(t)
	c, err := NewModuleCache(1)
	require.NoError(t, err)

	held := c.Add("a", compile(t, rt))
	other := c.Add("b", compile(t, rt))
	other.Release()

	// a 被淘汰但仍被持有，编译结果保持可用
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.False(t, held.closed)
	assert.Equal(t, int64(other.Size), c.Bytes())

	held.Release()
	assert.True(t, held.closed)
	assert.False(t, held.Acquire())
}

func TestPurgeClosesIdleEntries(t *testing.T) {
	rt := newRuntime(t)
	c, err := NewModuleCache(4)
	require.NoError(t, err)

	e := c.Add("a", compile(t, rt))
	e.Release()
	c.Purge()
	assert.Zero(t, c.Len())
	assert.Zero(t, c.Bytes())
	assert.True(t, e.closed)
}

func TestModuleCacheResizeEvictsOldest(t *testing.T) {
	rt := newRuntime(t)
	c, err := NewModuleCache(4)
	require.NoError(t, err)

	for _, key := range []string{"a", "b", "c"} {
		c.Add(key, compile(t, rt)).Release()
	}
	assert.Equal(t, 2, c.Resize(1))
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("a")
	assert.False(t, ok)
	e, ok := c.Get("c")
	require.True(t, ok)
	e.Release()
}
