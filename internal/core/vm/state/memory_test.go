package state

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weisyn/vmrunner/pkg/types"
)

func seeded() *MemoryExternal {
	ext := NewMemoryExternal(nil)
	ext.Seed(map[string][]byte{
		"a1": {1},
		"a2": {2},
		"b1": {3},
	})
	return ext
}

func drain(t *testing.T, next func() ([]byte, []byte, bool, error)) []string {
	t.Helper()
	var keys []string
	for {
		k, _, ok, err := next()
		require.NoError(t, err)
		if !ok {
			return keys
		}
		keys = append(keys, string(k))
	}
}

func TestPrefixIteratorStopsAtFirstForeignKey(t *testing.T) {
	ext := seeded()

	iter, err := ext.StorageIter([]byte("a"))
	require.NoError(t, err)

	k, v, ok, err := ext.StorageIterNext(iter)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a1", string(k))
	assert.Equal(t, []byte{1}, v)

	k, v, ok, err = ext.StorageIterNext(iter)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a2", string(k))
	assert.Equal(t, []byte{2}, v)

	// 耗尽后保持耗尽
	for i := 0; i < 2; i++ {
		_, _, ok, err = ext.StorageIterNext(iter)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestRangeIterator(t *testing.T) {
	ext := seeded()

	iter, err := ext.StorageIterRange([]byte("a2"), []byte("b1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, drain(t, func() ([]byte, []byte, bool, error) { return ext.StorageIterNext(iter) }))

	open, err := ext.StorageIterRange([]byte("a"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2", "b1"}, drain(t, func() ([]byte, []byte, bool, error) { return ext.StorageIterNext(open) }))
}

func TestIteratorHandlesNeverReused(t *testing.T) {
	ext := seeded()

	first, err := ext.StorageIter([]byte("a"))
	require.NoError(t, err)
	require.NoError(t, ext.StorageIterDrop(first))

	second, err := ext.StorageIter([]byte("a"))
	require.NoError(t, err)
	assert.Greater(t, second, first)

	_, _, _, err = ext.StorageIterNext(first)
	assert.ErrorIs(t, err, types.ErrInvalidIteratorIndex)
	assert.ErrorIs(t, ext.StorageIterDrop(first), types.ErrInvalidIteratorIndex)

	_, _, _, err = ext.StorageIterNext(999)
	assert.ErrorIs(t, err, types.ErrInvalidIteratorIndex)
	assert.Equal(t, types.ClassHostContract, types.ErrorClassOf(err))
}

func TestRemoveInvalidatesOpenIterators(t *testing.T) {
	ext := seeded()

	iter, err := ext.StorageIter([]byte("a"))
	require.NoError(t, err)
	_, _, ok, err := ext.StorageIterNext(iter)
	require.NoError(t, err)
	require.True(t, ok)

	prev, existed, err := ext.StorageRemove([]byte("a2"))
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, []byte{2}, prev)

	_, _, _, err = ext.StorageIterNext(iter)
	assert.ErrorIs(t, err, types.ErrInvalidIteratorIndex)

	// 删除不存在的键不影响迭代器
	iter2, err := ext.StorageIter([]byte("b"))
	require.NoError(t, err)
	_, existed, err = ext.StorageRemove([]byte("zz"))
	require.NoError(t, err)
	assert.False(t, existed)
	_, _, ok, err = ext.StorageIterNext(iter2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStorageReadWrite(t *testing.T) {
	ext := NewMemoryExternal(nil)

	prev, existed, err := ext.StorageSet([]byte("k"), []byte("v1"))
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Nil(t, prev)

	prev, existed, err = ext.StorageSet([]byte("k"), []byte("v2"))
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, []byte("v1"), prev)

	v, ok, err := ext.StorageGet([]byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v2"), v)

	// 返回值是副本
	v[0] = 'x'
	v, _, _ = ext.StorageGet([]byte("k"))
	assert.Equal(t, []byte("v2"), v)

	has, err := ext.StorageHasKey([]byte("k"))
	require.NoError(t, err)
	assert.True(t, has)

	assert.Equal(t, map[string][]byte{"k": []byte("v2")}, ext.Entries())
}

func TestReceiptIndicesAreMonotonic(t *testing.T) {
	ext := NewMemoryExternal(nil)

	r0, err := ext.CreateReceipt(nil, "bob")
	require.NoError(t, err)
	r1, err := ext.CreateReceipt([]uint64{r0}, "carol")
	require.NoError(t, err)
	r2, err := ext.CreateReceipt([]uint64{r0, r1}, "dave")
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2}, []uint64{r0, r1, r2})

	receipts := ext.Receipts()
	require.Len(t, receipts, 3)
	for i, r := range receipts {
		for _, dep := range r.ReceiptIndices {
			assert.Less(t, dep, uint64(i))
		}
	}
}

func TestCreateReceiptRejectsForwardReference(t *testing.T) {
	ext := NewMemoryExternal(nil)

	_, err := ext.CreateReceipt([]uint64{0}, "bob")
	assert.ErrorIs(t, err, types.ErrInvalidReceiptIndex)

	r0, err := ext.CreateReceipt(nil, "bob")
	require.NoError(t, err)
	_, err = ext.CreateReceipt([]uint64{r0, r0 + 1}, "bob")
	assert.ErrorIs(t, err, types.ErrInvalidReceiptIndex)
	assert.Len(t, ext.Receipts(), 1)
}

func TestAppendActions(t *testing.T) {
	ext := NewMemoryExternal(nil)
	r, err := ext.CreateReceipt(nil, "bob")
	require.NoError(t, err)

	require.NoError(t, ext.AppendActionFunctionCall(r, "hello", []byte("{}"), types.NewBalance(0), 1_000_000))
	require.NoError(t, ext.AppendActionTransfer(r, types.NewBalance(5)))
	allowance := types.NewBalance(9)
	require.NoError(t, ext.AppendActionAddKeyWithFunctionCall(r, []byte{1}, 3, &allowance, "bob", []string{"a", "b"}))

	assert.ErrorIs(t, ext.AppendActionCreateAccount(r+1), types.ErrInvalidReceiptIndex)
	assert.ErrorIs(t, ext.AppendActionDeleteKey(7, []byte{1}), types.ErrInvalidReceiptIndex)

	receipts := ext.Receipts()
	require.Len(t, receipts, 1)
	require.Len(t, receipts[0].Actions, 3)

	call, ok := receipts[0].Actions[0].(types.FunctionCallAction)
	require.True(t, ok)
	assert.Equal(t, "hello", call.MethodName)
	assert.Equal(t, []byte("{}"), call.Args)
	assert.EqualValues(t, 1_000_000, call.Gas)
	assert.Equal(t, types.ActionTransfer, receipts[0].Actions[1].Kind())

	key := receipts[0].Actions[2].(types.AddKeyWithFunctionCallAction)
	require.NotNil(t, key.Allowance)
	assert.Equal(t, uint64(9), key.Allowance.Uint64())
}

func TestSha256(t *testing.T) {
	ext := NewMemoryExternal(nil)
	got, err := ext.Sha256([]byte("tesdsst"))
	require.NoError(t, err)
	want := sha256.Sum256([]byte("tesdsst"))
	assert.Equal(t, want[:], got)
}
