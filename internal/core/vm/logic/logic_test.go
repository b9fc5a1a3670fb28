package logic

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/vmrunner/internal/core/infrastructure/crypto/hash"
	"github.com/weisyn/vmrunner/internal/core/vm/state"
	"github.com/weisyn/vmrunner/internal/testutil"
	"github.com/weisyn/vmrunner/pkg/types"
)

// sliceMemory 以字节切片模拟合约线性内存
type sliceMemory []byte

func (m sliceMemory) Read(offset, n uint32) ([]byte, bool) {
	if uint64(offset)+uint64(n) > uint64(len(m)) {
		return nil, false
	}
	return m[offset : offset+n], true
}

func (m sliceMemory) Write(offset uint32, v []byte) bool {
	if uint64(offset)+uint64(len(v)) > uint64(len(m)) {
		return false
	}
	copy(m[offset:], v)
	return true
}

type fixture struct {
	logic *VMLogic
	ext   *state.MemoryExternal
	mem   sliceMemory
}

func (f *fixture) put(offset int, data []byte) {
	copy(f.mem[offset:], data)
}

func newFixture(t *testing.T, ctx *types.VMContext, cfg *types.VMConfig, results ...types.PromiseResult) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = types.DefaultVMConfig()
	}
	ext := state.NewMemoryExternal(nil)
	l := New(Params{
		Ext:            ext,
		Context:        ctx,
		Config:         cfg,
		Fees:           types.DefaultRuntimeFeesConfig(),
		PromiseResults: results,
		Hasher:         hash.NewHashService(),
	})
	mem := make(sliceMemory, 1024)
	l.BindMemory(mem)
	return &fixture{logic: l, ext: ext, mem: mem}
}

func vmErr(class types.ErrorClass, code types.ErrorCode) error {
	return &types.VMError{Class: class, Code: code}
}

func TestContextGetters(t *testing.T) {
	f := newFixture(t, testutil.DefaultContext(), nil)
	l := f.logic

	require.NoError(t, l.CurrentAccountID(0))
	reg, ok := l.Register(0)
	require.True(t, ok)
	assert.Equal(t, "alice", string(reg))

	require.NoError(t, l.PredecessorAccountID(1))
	reg, _ = l.Register(1)
	assert.Equal(t, "carol", string(reg))

	v, err := l.BlockIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), v)
	v, err = l.BlockTimestamp()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)
	v, err = l.StorageUsage()
	require.NoError(t, err)
	assert.Equal(t, uint64(12), v)

	require.NoError(t, l.AccountBalance(100))
	assert.Equal(t, types.BalanceToLE(&testutil.DefaultContext().AccountBalance), []byte(f.mem[100:116]))

	v, err = l.PrepaidGas()
	require.NoError(t, err)
	assert.Equal(t, testutil.DefaultContext().PrepaidGas, v)

	used, err := l.UsedGas()
	require.NoError(t, err)
	assert.Equal(t, l.Gas().Used(), used)
	assert.Greater(t, used, uint64(0))
}

func TestViewCallProhibitions(t *testing.T) {
	calls := map[string]func(l *VMLogic) error{
		"signer_account_id":      func(l *VMLogic) error { return l.SignerAccountID(0) },
		"signer_account_pk":      func(l *VMLogic) error { return l.SignerAccountPK(0) },
		"predecessor_account_id": func(l *VMLogic) error { return l.PredecessorAccountID(0) },
		"attached_deposit":       func(l *VMLogic) error { return l.AttachedDeposit(0) },
		"prepaid_gas":            func(l *VMLogic) error { _, err := l.PrepaidGas(); return err },
		"used_gas":               func(l *VMLogic) error { _, err := l.UsedGas(); return err },
		"storage_write":          func(l *VMLogic) error { _, err := l.StorageWrite(1, 0, 1, 0, 0); return err },
		"storage_remove":         func(l *VMLogic) error { _, err := l.StorageRemove(1, 0, 0); return err },
		"promise_batch_create":   func(l *VMLogic) error { _, err := l.PromiseBatchCreate(3, 0); return err },
		"promise_and":            func(l *VMLogic) error { _, err := l.PromiseAnd(0, 0); return err },
		"promise_results_count":  func(l *VMLogic) error { _, err := l.PromiseResultsCount(); return err },
		"promise_result":         func(l *VMLogic) error { _, err := l.PromiseResult(0, 0); return err },
		"promise_return":         func(l *VMLogic) error { return l.PromiseReturn(0) },
		"promise_batch_action_transfer": func(l *VMLogic) error {
			return l.PromiseBatchActionTransfer(0, 0)
		},
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, testutil.ViewContext(), nil)
			f.put(0, []byte("bob"))
			assert.ErrorIs(t, call(f.logic), types.ErrProhibitedInView)
		})
	}

	t.Run("allowed", func(t *testing.T) {
		f := newFixture(t, testutil.ViewContext(), nil)
		l := f.logic
		assert.NoError(t, l.CurrentAccountID(0))
		assert.NoError(t, l.Input(1))
		assert.NoError(t, l.AccountBalance(0))
		_, err := l.BlockIndex()
		assert.NoError(t, err)
		_, err = l.StorageRead(1, 0, 0)
		assert.NoError(t, err)
	})
}

func TestStorageUsageAccounting(t *testing.T) {
	f := newFixture(t, testutil.DefaultContext(), nil)
	l := f.logic
	f.put(0, []byte("k"))
	f.put(8, []byte("v1"))
	f.put(16, []byte("value2"))

	r, err := l.StorageWrite(1, 0, 2, 8, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r)
	usage, _ := l.StorageUsage()
	assert.Equal(t, uint64(12+1+2+StorageNumExtraBytesRecord), usage)

	r, err = l.StorageWrite(1, 0, 6, 16, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r)
	old, ok := l.Register(1)
	require.True(t, ok)
	assert.Equal(t, "v1", string(old))
	usage, _ = l.StorageUsage()
	assert.Equal(t, uint64(12+1+6+StorageNumExtraBytesRecord), usage)

	r, err = l.StorageRead(1, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r)
	val, _ := l.Register(2)
	assert.Equal(t, "value2", string(val))

	r, err = l.StorageHasKey(1, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r)

	r, err = l.StorageRemove(1, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r)
	usage, _ = l.StorageUsage()
	assert.Equal(t, uint64(12), usage)

	r, err = l.StorageRead(1, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r)
	_, ok = l.Register(4)
	assert.False(t, ok)

	out := l.Outcome()
	assert.Equal(t, int64(0), out.StorageUsageDelta)
	assert.Equal(t, uint64(12), out.StorageUsage)
	assert.Empty(t, f.ext.Entries())
}

func TestStorageKeyAndValueLimits(t *testing.T) {
	cfg := types.DefaultVMConfig()
	cfg.Limits.MaxLengthStorageKey = 4
	cfg.Limits.MaxLengthStorageValue = 4
	f := newFixture(t, testutil.DefaultContext(), cfg)

	_, err := f.logic.StorageWrite(5, 0, 1, 0, 0)
	assert.ErrorIs(t, err, vmErr(types.ClassResourceLimit, types.CodeKeyLengthExceeded))
	_, err = f.logic.StorageWrite(1, 0, 5, 0, 0)
	assert.ErrorIs(t, err, vmErr(types.ClassResourceLimit, types.CodeValueLengthExceeded))
	_, err = f.logic.StorageRead(5, 0, 0)
	assert.ErrorIs(t, err, vmErr(types.ClassResourceLimit, types.CodeKeyLengthExceeded))
}

func TestWritesInvalidateIterators(t *testing.T) {
	f := newFixture(t, testutil.DefaultContext(), nil)
	l := f.logic
	f.ext.Seed(map[string][]byte{"a1": []byte("x"), "a2": []byte("y"), "b1": []byte("z")})
	f.put(0, []byte("a"))
	f.put(8, []byte("a3"))

	it, err := l.StorageIterPrefix(1, 0)
	require.NoError(t, err)

	r, err := l.StorageIterNext(it, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r)
	k, _ := l.Register(0)
	v, _ := l.Register(1)
	assert.Equal(t, "a1", string(k))
	assert.Equal(t, "x", string(v))

	_, err = l.StorageWrite(2, 8, 1, 0, 2)
	require.NoError(t, err)

	_, err = l.StorageIterNext(it, 0, 1)
	assert.ErrorIs(t, err, vmErr(types.ClassExecution, types.CodeIteratorWasInvalidated))

	_, err = l.StorageIterNext(it+100, 0, 1)
	assert.ErrorIs(t, err, vmErr(types.ClassExecution, types.CodeInvalidGuestIteratorIndex))

	// 写入之后新建的迭代器可以正常使用，并看到新记录
	f.put(16, []byte("a2"))
	f.put(24, []byte("a4"))
	it2, err := l.StorageIterRange(2, 16, 2, 24)
	require.NoError(t, err)
	var keys []string
	for {
		r, err := l.StorageIterNext(it2, 0, 1)
		require.NoError(t, err)
		if r == 0 {
			break
		}
		k, _ := l.Register(0)
		keys = append(keys, string(k))
	}
	assert.Equal(t, []string{"a2", "a3"}, keys)
}

func TestWritesReleaseHostIterators(t *testing.T) {
	f := newFixture(t, testutil.DefaultContext(), nil)
	l := f.logic
	f.ext.Seed(map[string][]byte{"a1": []byte("x"), "a2": []byte("y")})
	f.put(0, []byte("a"))
	f.put(8, []byte("a3"))

	first, err := l.StorageIterPrefix(1, 0)
	require.NoError(t, err)
	second, err := l.StorageIterPrefix(1, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, f.ext.OpenIterators())

	_, err = l.StorageWrite(2, 8, 1, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, f.ext.OpenIterators())
	for _, it := range []uint64{first, second} {
		_, _, _, err = f.ext.StorageIterNext(it)
		assert.ErrorIs(t, err, types.ErrInvalidIteratorIndex)
	}

	// 调用结束时释放剩余句柄，重复释放无副作用
	_, err = l.StorageIterPrefix(1, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, f.ext.OpenIterators())
	require.NoError(t, l.ReleaseIterators())
	assert.Equal(t, 0, f.ext.OpenIterators())
	require.NoError(t, l.ReleaseIterators())
}

func TestFunctionCallPromise(t *testing.T) {
	f := newFixture(t, testutil.DefaultContext(), nil)
	l := f.logic
	f.put(0, []byte("bob"))
	f.put(16, []byte("hello"))
	f.put(32, []byte("{}"))

	idx, err := l.PromiseBatchCreate(3, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), idx)

	burntBefore := l.Gas().Burnt()
	require.NoError(t, l.PromiseBatchActionFunctionCall(idx, 5, 16, 2, 32, 48, 1_000_000))
	assert.Greater(t, l.Gas().Burnt(), burntBefore)

	out := l.Outcome()
	require.Len(t, out.Receipts, 1)
	assert.Equal(t, types.Receipt{
		ReceiptIndices: []uint64{},
		ReceiverID:     "bob",
		Actions: []types.Action{types.FunctionCallAction{
			MethodName: "hello",
			Args:       []byte("{}"),
			Gas:        1_000_000,
			Deposit:    types.NewBalance(0),
		}},
	}, out.Receipts[0])
	assert.Equal(t, f.ext.Receipts(), out.Receipts)
	assert.Greater(t, out.UsedGas, out.BurntGas)
	assert.Equal(t, types.ReturnNone(), out.ReturnData)
	assert.NotNil(t, out.Logs)
}

func TestFunctionCallLimits(t *testing.T) {
	cfg := types.DefaultVMConfig()
	cfg.Limits.MaxLengthMethodName = 4
	f := newFixture(t, testutil.DefaultContext(), cfg)
	l := f.logic
	f.put(0, []byte("bob"))
	f.put(16, []byte("hello"))

	idx, err := l.PromiseBatchCreate(3, 0)
	require.NoError(t, err)

	err = l.PromiseBatchActionFunctionCall(idx, 5, 16, 0, 0, 48, 0)
	assert.ErrorIs(t, err, vmErr(types.ClassResourceLimit, types.CodeMethodNameTooLong))

	err = l.PromiseBatchActionFunctionCall(idx, 0, 16, 0, 0, 48, 0)
	assert.ErrorIs(t, err, vmErr(types.ClassExecution, types.CodeInvalidMethodName))

	err = l.PromiseBatchActionFunctionCall(idx, 4, 16, 0, 0, 48, cfg.Limits.MaxTotalPrepaidGas+1)
	assert.ErrorIs(t, err, vmErr(types.ClassResourceLimit, types.CodeTotalPrepaidGasExceeded))
}

func TestJointPromises(t *testing.T) {
	f := newFixture(t, testutil.DefaultContext(), nil)
	l := f.logic
	f.put(0, []byte("bob"))
	f.put(8, []byte("carol"))

	p0, err := l.PromiseBatchCreate(3, 0)
	require.NoError(t, err)
	p1, err := l.PromiseBatchCreate(5, 8)
	require.NoError(t, err)

	ids := make([]byte, 16)
	binary.LittleEndian.PutUint64(ids[0:], p0)
	binary.LittleEndian.PutUint64(ids[8:], p1)
	f.put(64, ids)

	joint, err := l.PromiseAnd(64, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), joint)

	err = l.PromiseBatchActionCreateAccount(joint)
	assert.ErrorIs(t, err, vmErr(types.ClassExecution, types.CodeCannotAppendActionToJoint))
	err = l.PromiseReturn(joint)
	assert.ErrorIs(t, err, vmErr(types.ClassExecution, types.CodeCannotReturnJointPromise))

	then, err := l.PromiseBatchThen(joint, 3, 0)
	require.NoError(t, err)
	require.NoError(t, l.PromiseBatchActionCreateAccount(then))
	require.NoError(t, l.PromiseReturn(then))

	err = l.PromiseBatchActionCreateAccount(42)
	assert.ErrorIs(t, err, vmErr(types.ClassExecution, types.CodeInvalidPromiseIndex))

	out := l.Outcome()
	require.Len(t, out.Receipts, 3)
	assert.Equal(t, []uint64{0, 1}, out.Receipts[2].ReceiptIndices)
	assert.Equal(t, []types.Action{types.CreateAccountAction{}}, out.Receipts[2].Actions)
	assert.Equal(t, types.ReturnReceipt(2), out.ReturnData)
	assert.Equal(t, f.ext.Receipts(), out.Receipts)
}

func TestInvalidReceiverAccountID(t *testing.T) {
	f := newFixture(t, testutil.DefaultContext(), nil)
	f.put(0, []byte("Bob!"))
	_, err := f.logic.PromiseBatchCreate(4, 0)
	assert.ErrorIs(t, err, vmErr(types.ClassExecution, types.CodeInvalidAccountID))
	assert.Empty(t, f.ext.Receipts())
}

func TestTransferDeductsBalance(t *testing.T) {
	f := newFixture(t, testutil.DefaultContext(), nil)
	l := f.logic
	f.put(0, []byte("bob"))
	one := types.NewBalance(1)
	three := types.NewBalance(3)
	f.put(32, types.BalanceToLE(&one))
	f.put(48, types.BalanceToLE(&three))

	idx, err := l.PromiseBatchCreate(3, 0)
	require.NoError(t, err)
	require.NoError(t, l.PromiseBatchActionTransfer(idx, 32))

	require.NoError(t, l.AccountBalance(64))
	assert.Equal(t, types.BalanceToLE(&one), []byte(f.mem[64:80]))

	err = l.PromiseBatchActionTransfer(idx, 48)
	assert.ErrorIs(t, err, vmErr(types.ClassExecution, types.CodeBalanceExceeded))

	out := l.Outcome()
	assert.Equal(t, one, out.Balance)
	assert.Equal(t, []types.Action{types.TransferAction{Deposit: one}}, out.Receipts[0].Actions)
}

func TestAddKeyWithFunctionCall(t *testing.T) {
	f := newFixture(t, testutil.DefaultContext(), nil)
	l := f.logic
	f.put(0, []byte("bob"))
	pk := append([]byte{0}, make([]byte, 32)...)
	f.put(100, pk)
	f.put(200, []byte("get,set"))

	idx, err := l.PromiseBatchCreate(3, 0)
	require.NoError(t, err)
	require.NoError(t, l.PromiseBatchActionAddKeyWithFunctionCall(idx, 33, 100, 7, 300, 3, 0, 7, 200))

	out := l.Outcome()
	require.Len(t, out.Receipts[0].Actions, 1)
	action := out.Receipts[0].Actions[0].(types.AddKeyWithFunctionCallAction)
	assert.Nil(t, action.Allowance)
	assert.Equal(t, "bob", action.ReceiverID)
	assert.Equal(t, []string{"get", "set"}, action.MethodNames)
	assert.Equal(t, uint64(7), action.Nonce)

	err = l.PromiseBatchActionDeleteKey(idx, 10, 100)
	assert.ErrorIs(t, err, vmErr(types.ClassExecution, types.CodeInvalidPublicKey))
}

func TestPromiseResults(t *testing.T) {
	f := newFixture(t, testutil.DefaultContext(), nil,
		types.PromiseResult{Status: types.PromiseResultSuccessful, Data: []byte("ok")},
		types.PromiseResult{Status: types.PromiseResultFailed},
		types.PromiseResult{Status: types.PromiseResultNotReady},
	)
	l := f.logic

	n, err := l.PromiseResultsCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	for i, want := range []uint64{1, 2, 0} {
		got, err := l.PromiseResult(uint64(i), 5)
		require.NoError(t, err)
		assert.Equal(t, want, got, "result %d", i)
	}
	data, ok := l.Register(5)
	require.True(t, ok)
	assert.Equal(t, "ok", string(data))

	_, err = l.PromiseResult(3, 5)
	assert.ErrorIs(t, err, vmErr(types.ClassExecution, types.CodeInvalidPromiseResultIndex))
}

func TestGasExceededClampsToPrepaid(t *testing.T) {
	ctx := testutil.DefaultContext()
	ctx.PrepaidGas = 1000
	f := newFixture(t, ctx, nil)
	g := f.logic.Gas()

	err := g.PayWasmOps(1)
	assert.ErrorIs(t, err, types.ErrGasExceeded)
	assert.Equal(t, types.Gas(1000), g.Burnt())
	assert.Equal(t, types.Gas(1000), g.Used())

	report := f.logic.GasReport()
	assert.LessOrEqual(t, report.BurntGas, ctx.PrepaidGas)
}

func TestGasLimitExceeded(t *testing.T) {
	cfg := types.DefaultVMConfig()
	cfg.Limits.MaxGasBurnt = 500
	ctx := testutil.DefaultContext()
	ctx.PrepaidGas = 1000
	f := newFixture(t, ctx, cfg)
	g := f.logic.Gas()

	err := g.PayWasmOps(1)
	assert.ErrorIs(t, err, types.ErrGasLimitExceeded)
	assert.Equal(t, types.Gas(500), g.Burnt())
	assert.Equal(t, types.Gas(1000), g.Used())
}

func TestViewCallIgnoresPrepaidGas(t *testing.T) {
	ctx := testutil.ViewContext()
	ctx.PrepaidGas = 0
	f := newFixture(t, ctx, nil)
	g := f.logic.Gas()

	require.NoError(t, g.PayWasmOps(10))
	assert.Equal(t, types.Gas(10*types.DefaultVMConfig().RegularOpCost), g.Burnt())
}

func TestPrepayOnlyIncreasesUsed(t *testing.T) {
	f := newFixture(t, testutil.DefaultContext(), types.FreeVMConfig())
	g := f.logic.Gas()
	require.NoError(t, g.Prepay(1234))
	assert.Equal(t, types.Gas(0), g.Burnt())
	assert.Equal(t, types.Gas(1234), g.Used())
}

func TestGasProfile(t *testing.T) {
	profile := types.NewProfileData()
	ctx := testutil.DefaultContext()
	l := New(Params{
		Ext:     state.NewMemoryExternal(nil),
		Context: ctx,
		Config:  types.DefaultVMConfig(),
		Fees:    types.DefaultRuntimeFeesConfig(),
		Profile: profile,
	})
	require.NoError(t, l.Gas().PayWasmOps(2))
	require.NoError(t, l.CurrentAccountID(0))

	assert.Equal(t, types.Gas(2*types.DefaultVMConfig().RegularOpCost), profile.WasmGas())
	assert.Equal(t, types.DefaultExtCosts().Cost(types.ExtBase), profile.ExtCost(types.ExtBase))
}

func TestRegisterLimits(t *testing.T) {
	cfg := types.DefaultVMConfig()
	cfg.Limits.MaxNumberRegisters = 2
	cfg.Limits.MaxRegisterSize = 4
	f := newFixture(t, testutil.DefaultContext(), cfg)
	l := f.logic
	f.put(0, []byte("abcde"))

	require.NoError(t, l.WriteRegister(0, 4, 0))
	require.NoError(t, l.WriteRegister(1, 2, 0))
	require.NoError(t, l.WriteRegister(1, 3, 0))

	err := l.WriteRegister(2, 1, 0)
	assert.ErrorIs(t, err, vmErr(types.ClassResourceLimit, types.CodeTooManyRegisters))

	err = l.WriteRegister(0, 5, 0)
	assert.ErrorIs(t, err, vmErr(types.ClassResourceLimit, types.CodeRegisterSizeExceeded))

	n, err := l.RegisterLen(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
	n, err = l.RegisterLen(7)
	require.NoError(t, err)
	assert.Equal(t, uint64(RegisterLenAbsent), n)

	err = l.ReadRegister(7, 0)
	assert.ErrorIs(t, err, vmErr(types.ClassExecution, types.CodeInvalidRegisterID))

	require.NoError(t, l.ReadRegister(0, 500))
	assert.Equal(t, "abcd", string(f.mem[500:504]))
}

func TestRegistersMemoryLimit(t *testing.T) {
	cfg := types.DefaultVMConfig()
	cfg.Limits.RegistersMemoryLimit = 6
	f := newFixture(t, testutil.DefaultContext(), cfg)
	l := f.logic

	require.NoError(t, l.WriteRegister(0, 4, 0))
	err := l.WriteRegister(1, 4, 0)
	assert.ErrorIs(t, err, vmErr(types.ClassResourceLimit, types.CodeRegistersMemoryExceeded))
	// 覆盖同一寄存器按差值计算
	require.NoError(t, l.WriteRegister(0, 6, 0))
}

func TestLogs(t *testing.T) {
	cfg := types.DefaultVMConfig()
	cfg.Limits.MaxNumberLogs = 2
	cfg.Limits.MaxTotalLogLength = 8
	f := newFixture(t, testutil.DefaultContext(), cfg)
	l := f.logic
	f.put(0, []byte("hi\x00"))
	f.put(16, []byte("toolong!!"))
	f.put(32, []byte{0xff, 0xfe})

	require.NoError(t, l.LogUTF8(2, 0))
	require.NoError(t, l.LogUTF8(math.MaxUint64, 0))
	assert.Equal(t, []string{"hi", "hi"}, l.Logs())

	err := l.LogUTF8(2, 0)
	assert.ErrorIs(t, err, vmErr(types.ClassResourceLimit, types.CodeNumberOfLogsExceeded))

	f2 := newFixture(t, testutil.DefaultContext(), cfg)
	f2.put(16, []byte("toolong!!"))
	f2.put(32, []byte{0xff, 0xfe})
	err = f2.logic.LogUTF8(9, 16)
	assert.ErrorIs(t, err, vmErr(types.ClassResourceLimit, types.CodeTotalLogLengthExceeded))
	err = f2.logic.LogUTF8(2, 32)
	assert.ErrorIs(t, err, vmErr(types.ClassExecution, types.CodeBadUTF8))
	assert.Empty(t, f2.logic.Logs())
}

func TestLogUTF16(t *testing.T) {
	f := newFixture(t, testutil.DefaultContext(), nil)
	l := f.logic
	f.put(0, []byte{'h', 0, 'i', 0})
	// U+1F600 的代理对
	f.put(8, []byte{0x3d, 0xd8, 0x00, 0xde})
	f.put(16, []byte{0x00, 0xd8, 'a', 0})

	require.NoError(t, l.LogUTF16(4, 0))
	require.NoError(t, l.LogUTF16(4, 8))
	assert.Equal(t, []string{"hi", "😀"}, l.Logs())

	err := l.LogUTF16(4, 16)
	assert.ErrorIs(t, err, vmErr(types.ClassExecution, types.CodeBadUTF8))
	err = l.LogUTF16(3, 0)
	assert.ErrorIs(t, err, vmErr(types.ClassExecution, types.CodeBadUTF8))
}

func TestValueReturnAndPanic(t *testing.T) {
	f := newFixture(t, testutil.DefaultContext(), nil)
	l := f.logic
	f.put(0, []byte("result"))
	f.put(16, []byte("boom"))

	require.NoError(t, l.ValueReturn(6, 0))
	assert.Equal(t, types.ReturnValue([]byte("result")), l.Outcome().ReturnData)

	err := l.PanicUTF8(4, 16)
	require.ErrorIs(t, err, types.ErrGuestPanic)
	assert.Contains(t, err.Error(), "boom")
	assert.ErrorIs(t, l.Panic(), types.ErrGuestPanic)
}

func TestReturnedValueTooLong(t *testing.T) {
	cfg := types.DefaultVMConfig()
	cfg.Limits.MaxLengthReturnedData = 3
	f := newFixture(t, testutil.DefaultContext(), cfg)
	err := f.logic.ValueReturn(4, 0)
	assert.ErrorIs(t, err, vmErr(types.ClassResourceLimit, types.CodeReturnedValueTooLong))
}

func TestMemoryAccessViolation(t *testing.T) {
	f := newFixture(t, testutil.DefaultContext(), nil)
	err := f.logic.LogUTF8(10, uint64(len(f.mem)-4))
	assert.ErrorIs(t, err, vmErr(types.ClassExecution, types.CodeMemoryAccessViolation))
	err = f.logic.ReadRegister(0, math.MaxUint64)
	assert.Error(t, err)
	err = f.logic.AccountBalance(math.MaxUint32)
	assert.ErrorIs(t, err, vmErr(types.ClassExecution, types.CodeMemoryAccessViolation))
}

func TestHashFunctions(t *testing.T) {
	f := newFixture(t, testutil.DefaultContext(), nil)
	l := f.logic
	f.put(0, []byte("abc"))

	require.NoError(t, l.Sha256(3, 0, 0))
	want := sha256.Sum256([]byte("abc"))
	got, _ := l.Register(0)
	assert.Equal(t, want[:], got)

	require.NoError(t, l.Keccak256(3, 0, 1))
	got, _ = l.Register(1)
	assert.Equal(t, "4e03657aea45a94fc7d47ba826c8d667c0d1e6e33a64a036ec44f58fa12d6c45", hex.EncodeToString(got))

	require.NoError(t, l.Ripemd160(3, 0, 2))
	got, _ = l.Register(2)
	assert.Equal(t, "8eb208f7e05d987a9b044a8e98c6b087f15a0bfc", hex.EncodeToString(got))
}

func TestStackExceeded(t *testing.T) {
	f := newFixture(t, testutil.DefaultContext(), nil)
	assert.ErrorIs(t, f.logic.StackExceeded(), types.ErrStackHeightExceeded)
}

func TestAbortKeepsFirstError(t *testing.T) {
	f := newFixture(t, testutil.DefaultContext(), nil)
	first := f.logic.Abort(types.ErrGuestPanic)
	f.logic.Abort(types.ErrGasExceeded)
	assert.Equal(t, types.ErrGuestPanic, first)
	assert.Equal(t, types.ErrGuestPanic, f.logic.AbortError())
}

func TestChargeContractCompile(t *testing.T) {
	f := newFixture(t, testutil.DefaultContext(), nil)
	require.NoError(t, f.logic.ChargeContractCompile(100))
	costs := types.DefaultExtCosts()
	want := costs.Cost(types.ExtContractCompileBase) + 100*costs.Cost(types.ExtContractCompileBytes)
	assert.Equal(t, want, f.logic.Gas().Burnt())
}

func TestValidAccountID(t *testing.T) {
	cases := map[string]bool{
		"bob":                   true,
		"alice.near":            true,
		"a-b_c.d":               true,
		"00":                    true,
		"a":                     false,
		"":                      false,
		"-ab":                   false,
		"ab-":                   false,
		"a..b":                  false,
		"a-.b":                  false,
		"Alice":                 false,
		"a b":                   false,
		"ali@ce":                false,
		strings.Repeat("a", 64): true,
		strings.Repeat("a", 65): false,
	}
	for id, want := range cases {
		assert.Equal(t, want, validAccountID(id, 64), "account id %q", id)
	}
}

func TestImportTable(t *testing.T) {
	all := Imports()
	names := make(map[string]bool, len(all))
	for i, imp := range all {
		assert.False(t, names[imp.Name], "duplicate import %s", imp.Name)
		names[imp.Name] = true
		if i > 0 {
			assert.Less(t, all[i-1].Name, imp.Name)
		}
		assert.NotNil(t, imp.Call)
	}
	for _, name := range []string{"gas", "stack_exceeded", "storage_write", "promise_batch_create", "log_utf8", "keccak256"} {
		assert.True(t, names[name], "missing import %s", name)
	}

	ft, ok := Resolve("storage_write")
	require.True(t, ok)
	assert.Len(t, ft.Params, 5)
	assert.Len(t, ft.Results, 1)

	_, ok = Resolve("gas")
	assert.False(t, ok)
	_, ok = Resolve("no_such_function")
	assert.False(t, ok)
}

func TestHostFuncDispatch(t *testing.T) {
	f := newFixture(t, testutil.DefaultContext(), nil)
	var blockIndex HostFunc
	for _, imp := range Imports() {
		if imp.Name == "block_index" {
			blockIndex = imp.Call
		}
	}
	require.NotNil(t, blockIndex)
	v, err := blockIndex(f.logic, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), v)
}
