package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	badgerconfig "github.com/weisyn/vmrunner/internal/config/storage/badger"
	memoryconfig "github.com/weisyn/vmrunner/internal/config/storage/memory"
	"github.com/weisyn/vmrunner/internal/core/infrastructure/crypto/hash"
	"github.com/weisyn/vmrunner/internal/core/infrastructure/storage/badger"
	"github.com/weisyn/vmrunner/internal/core/infrastructure/storage/memory"
	"github.com/weisyn/vmrunner/pkg/interfaces/vm"
	"github.com/weisyn/vmrunner/pkg/types"
)

func TestKeyDependsOnEveryInput(t *testing.T) {
	hasher := hash.NewHashService()
	base := types.DefaultVMConfig().Fingerprint()
	other := types.FreeVMConfig().Fingerprint()
	require.NotEqual(t, base, other)

	key := func(code string, fp types.Fingerprint, kind types.VMKind) string {
		k, err := Key(hasher, []byte(code), fp, kind)
		require.NoError(t, err)
		require.Len(t, k, 32)
		return string(k)
	}

	k := key("code", base, types.VMKindWazeroInterpreter)
	assert.Equal(t, k, key("code", base, types.VMKindWazeroInterpreter))
	assert.NotEqual(t, k, key("other", base, types.VMKindWazeroInterpreter))
	assert.NotEqual(t, k, key("code", other, types.VMKindWazeroInterpreter))
	assert.NotEqual(t, k, key("code", base, types.VMKindWazeroCompiler))
}

func TestArtifactRoundTrip(t *testing.T) {
	fp := types.DefaultVMConfig().Fingerprint()
	kind := types.VMKindWazeroInterpreter

	value, err := NewCodeArtifact(kind, fp, []byte{0, 'a', 's', 'm'}).Encode()
	require.NoError(t, err)
	a, err := DecodeArtifact(value, kind, fp)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 'a', 's', 'm'}, a.Code)
	assert.Nil(t, a.VMError())

	compileErr := types.NewVMError(types.ClassCompilation, types.CodeDisallowedImport, "env.foo is not allowed")
	value, err = NewErrorArtifact(kind, fp, compileErr).Encode()
	require.NoError(t, err)
	a, err = DecodeArtifact(value, kind, fp)
	require.NoError(t, err)
	replayed := a.VMError()
	require.NotNil(t, replayed)
	assert.ErrorIs(t, replayed, compileErr)
	assert.Equal(t, compileErr.Error(), replayed.Error())
}

func TestDecodeRejectsMismatchedArtifacts(t *testing.T) {
	fp := types.DefaultVMConfig().Fingerprint()
	kind := types.VMKindWazeroInterpreter
	value, err := NewCodeArtifact(kind, fp, []byte("code")).Encode()
	require.NoError(t, err)

	_, err = DecodeArtifact(value, types.VMKindWazeroCompiler, fp)
	assert.ErrorIs(t, err, ErrArtifactMismatch)
	_, err = DecodeArtifact(value, kind, types.FreeVMConfig().Fingerprint())
	assert.ErrorIs(t, err, ErrArtifactMismatch)
	_, err = DecodeArtifact([]byte{0xff, 0x00}, kind, fp)
	assert.ErrorIs(t, err, ErrCorruptArtifact)

	empty, err := (&Artifact{Version: ArtifactVersion, Kind: kind, Fingerprint: fp}).Encode()
	require.NoError(t, err)
	_, err = DecodeArtifact(empty, kind, fp)
	assert.ErrorIs(t, err, ErrCorruptArtifact)
}

func exerciseCache(t *testing.T, c vm.CompiledContractCache) {
	t.Helper()
	_, ok, err := c.Get([]byte("missing"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put([]byte("k"), []byte("v1")))
	v, ok, err := c.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), v)

	require.NoError(t, c.Put([]byte("k"), []byte("v2")))
	v, _, err = c.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v)
}

func TestMemoryCache(t *testing.T) {
	store, err := memory.New(memoryconfig.New(nil), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	exerciseCache(t, NewMemoryCache(store))
}

func TestBadgerCache(t *testing.T) {
	store, err := badger.New(badgerconfig.NewInMemory(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	c := NewBadgerCache(store)
	exerciseCache(t, c)

	// 其他前缀的数据不计入产物
	require.NoError(t, store.Set(context.Background(), []byte("state/x"), []byte("1")))
	n, err := c.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMockCache(t *testing.T) {
	c := NewMockCache()
	exerciseCache(t, c)
	gets, puts := c.Calls()
	assert.Equal(t, 3, gets)
	assert.Equal(t, 2, puts)
	assert.Equal(t, 1, c.Len())

	c.Corrupt()
	v, ok, err := c.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	_, err = DecodeArtifact(v, types.VMKindWazeroInterpreter, types.DefaultVMConfig().Fingerprint())
	assert.ErrorIs(t, err, ErrCorruptArtifact)
}
