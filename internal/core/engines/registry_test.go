package engines

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/vmrunner/pkg/interfaces/vm"
	"github.com/weisyn/vmrunner/pkg/types"
)

// withFactories 临时替换注册表，测试结束后恢复
func withFactories(t *testing.T, m map[types.VMKind]Factory) {
	t.Helper()
	mu.Lock()
	saved := factories
	factories = m
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		factories = saved
		mu.Unlock()
	})
}

func TestUnregisteredKindIsUnavailable(t *testing.T) {
	withFactories(t, map[types.VMKind]Factory{})

	_, err := New(context.Background(), types.VMKindWazeroCompiler, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrBackendUnavailable)
	assert.Equal(t, types.ClassBackendUnavailable, types.ErrorClassOf(err))

	_, err = New(context.Background(), types.VMKind(99), Options{})
	assert.ErrorIs(t, err, types.ErrBackendUnavailable)
	assert.False(t, IsRegistered(types.VMKindWazeroCompiler))
	assert.Empty(t, Registered())
}

func TestRegisterAndCreate(t *testing.T) {
	withFactories(t, map[types.VMKind]Factory{})

	var got Options
	Register(types.VMKindWazeroInterpreter, func(_ context.Context, opts Options) (vm.Backend, error) {
		got = opts
		return nil, nil
	})

	assert.True(t, IsRegistered(types.VMKindWazeroInterpreter))
	assert.Equal(t, []types.VMKind{types.VMKindWazeroInterpreter}, Registered())

	_, err := New(context.Background(), types.VMKindWazeroInterpreter, Options{ModuleCacheSize: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, got.ModuleCacheSize)

	_, err = New(context.Background(), types.VMKindWazeroCompiler, Options{})
	assert.ErrorIs(t, err, types.ErrBackendUnavailable)
}

func TestRegisterPanicsOnMisuse(t *testing.T) {
	withFactories(t, map[types.VMKind]Factory{})
	noop := func(context.Context, Options) (vm.Backend, error) { return nil, nil }

	assert.Panics(t, func() { Register(types.VMKind(0), noop) })
	Register(types.VMKindWazeroCompiler, noop)
	assert.Panics(t, func() { Register(types.VMKindWazeroCompiler, noop) })
}
