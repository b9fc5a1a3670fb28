package wasm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/vmrunner/internal/core/engines"
	"github.com/weisyn/vmrunner/internal/core/vm/state"
	"github.com/weisyn/vmrunner/internal/testutil"
	wt "github.com/weisyn/vmrunner/internal/testutil/wasmtest"
	"github.com/weisyn/vmrunner/pkg/interfaces/vm"
	"github.com/weisyn/vmrunner/pkg/types"
)

// ==================== 测试辅助 ====================

// backends 返回当前平台已注册的全部后端
func backends(t *testing.T) []*Backend {
	t.Helper()
	ctx := context.Background()
	var out []*Backend
	for _, kind := range engines.Registered() {
		b, err := engines.New(ctx, kind, engines.Options{Logger: testutil.NewTestLogger(t)})
		require.NoError(t, err)
		t.Cleanup(func() { _ = b.Close(ctx) })
		out = append(out, b.(*Backend))
	}
	require.NotEmpty(t, out)
	return out
}

type harness struct {
	backend *Backend
	module  vm.Module
	code    []byte
}

func newHarness(t *testing.T, b *Backend, code []byte) *harness {
	t.Helper()
	ctx := context.Background()
	prepared, err := b.Prepare(code, types.DefaultVMConfig())
	require.NoError(t, err)
	m, err := b.Compile(ctx, "contract", prepared)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(ctx) })
	return &harness{backend: b, module: m, code: code}
}

func (h *harness) invocation(method string, ext vm.External, vmctx *types.VMContext) *vm.Invocation {
	return &vm.Invocation{
		Method:  method,
		Ext:     ext,
		Context: vmctx,
		Config:  types.DefaultVMConfig(),
		Fees:    types.DefaultRuntimeFeesConfig(),
		CodeLen: uint64(len(h.code)),
	}
}

func (h *harness) run(ctx context.Context, method string, ext vm.External, vmctx *types.VMContext) (*types.VMOutcome, error) {
	return h.backend.Run(ctx, h.module, h.invocation(method, ext, vmctx))
}

func requireVMError(t *testing.T, err error, class types.ErrorClass, code types.ErrorCode) *types.VMError {
	t.Helper()
	require.Error(t, err)
	vmErr, ok := types.AsVMError(err)
	require.True(t, ok, "expected *types.VMError, got %T: %v", err, err)
	assert.Equal(t, class, vmErr.Class, vmErr.Error())
	assert.Equal(t, code, vmErr.Code, vmErr.Error())
	return vmErr
}

// ==================== 正常执行 ====================

func TestRunNoop(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.Kind().String(), func(t *testing.T) {
			h := newHarness(t, b, wt.Contract())
			out, err := h.run(context.Background(), wt.MethodNoop, state.NewMemoryExternal(nil), testutil.DefaultContext())
			require.NoError(t, err)
			assert.Greater(t, out.BurntGas, uint64(0))
			assert.GreaterOrEqual(t, out.UsedGas, out.BurntGas)
			assert.Equal(t, types.ReturnNone(), out.ReturnData)
			assert.Empty(t, out.Receipts)
			assert.Empty(t, out.Logs)
		})
	}
}

func TestRunCreatesReceipt(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.Kind().String(), func(t *testing.T) {
			h := newHarness(t, b, wt.Contract())
			ext := state.NewMemoryExternal(nil)
			out, err := h.run(context.Background(), wt.MethodCallBob, ext, testutil.DefaultContext())
			require.NoError(t, err)

			require.Len(t, out.Receipts, 1)
			assert.Equal(t, types.Receipt{
				ReceiptIndices: []uint64{},
				ReceiverID:     "bob",
				Actions: []types.Action{types.FunctionCallAction{
					MethodName: "hello",
					Args:       []byte("{}"),
					Gas:        wt.CallGas,
					Deposit:    types.NewBalance(0),
				}},
			}, out.Receipts[0])
			assert.Equal(t, ext.Receipts(), out.Receipts)
			assert.Greater(t, out.UsedGas, out.BurntGas)
		})
	}
}

func TestRunStorageLogsAndReturn(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.Kind().String(), func(t *testing.T) {
			h := newHarness(t, b, wt.Contract())
			ctx := context.Background()

			ext := state.NewMemoryExternal(nil)
			out, err := h.run(ctx, wt.MethodWrite, ext, testutil.DefaultContext())
			require.NoError(t, err)
			assert.Equal(t, map[string][]byte{"k": []byte("v")}, ext.Entries())
			assert.Greater(t, out.StorageUsageDelta, int64(0))

			out, err = h.run(ctx, wt.MethodLog, state.NewMemoryExternal(nil), testutil.DefaultContext())
			require.NoError(t, err)
			assert.Equal(t, []string{wt.LogMessage}, out.Logs)

			out, err = h.run(ctx, wt.MethodReturn, state.NewMemoryExternal(nil), testutil.DefaultContext())
			require.NoError(t, err)
			assert.Equal(t, types.ReturnValue([]byte("v")), out.ReturnData)
		})
	}
}

func TestRunReleasesIteratorsOnReturn(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.Kind().String(), func(t *testing.T) {
			h := newHarness(t, b, wt.Contract())
			ext := state.NewMemoryExternal(nil)
			ext.Seed(map[string][]byte{"k1": []byte("v")})
			_, err := h.run(context.Background(), wt.MethodIter, ext, testutil.DefaultContext())
			require.NoError(t, err)
			assert.Equal(t, 0, ext.OpenIterators())
		})
	}
}

func TestRunIsDeterministicAcrossBackends(t *testing.T) {
	all := backends(t)
	if len(all) < 2 {
		t.Skip("only one backend registered on this platform")
	}
	methods := []string{wt.MethodNoop, wt.MethodLog, wt.MethodCallBob, wt.MethodWrite, wt.MethodReturn, wt.MethodTrap}
	for _, method := range methods {
		t.Run(method, func(t *testing.T) {
			var (
				outs []*types.VMOutcome
				errs []error
			)
			for _, b := range all {
				h := newHarness(t, b, wt.Contract())
				out, err := h.run(context.Background(), method, state.NewMemoryExternal(nil), testutil.DefaultContext())
				outs = append(outs, out)
				errs = append(errs, err)
			}
			for i := 1; i < len(all); i++ {
				assert.Equal(t, outs[0], outs[i])
				if errs[0] == nil {
					assert.NoError(t, errs[i])
					continue
				}
				// 底层 trap 文本因引擎而异，只比较归类与燃料
				want, _ := types.AsVMError(errs[0])
				got, ok := types.AsVMError(errs[i])
				require.True(t, ok)
				assert.Equal(t, want.Class, got.Class)
				assert.Equal(t, want.Code, got.Code)
				assert.Equal(t, want.Gas, got.Gas)
			}
		})
	}
}

// ==================== 方法解析 ====================

func TestRunMethodResolution(t *testing.T) {
	cases := []struct {
		method string
		code   types.ErrorCode
		burnt  bool
	}{
		{"", types.CodeMethodEmptyName, false},
		{"missing", types.CodeMethodNotFound, true},
		{wt.MethodAnswer, types.CodeMethodInvalidSignature, true},
	}
	for _, b := range backends(t) {
		h := newHarness(t, b, wt.Contract())
		for _, tc := range cases {
			t.Run(b.Kind().String()+"/"+string(tc.code), func(t *testing.T) {
				out, err := h.run(context.Background(), tc.method, state.NewMemoryExternal(nil), testutil.DefaultContext())
				assert.Nil(t, out)
				vmErr := requireVMError(t, err, types.ClassExecution, tc.code)
				require.NotNil(t, vmErr.Gas)
				if tc.burnt {
					// 编译费用在方法解析前收取
					assert.Greater(t, vmErr.Gas.BurntGas, uint64(0))
				} else {
					assert.Zero(t, vmErr.Gas.BurntGas)
				}
			})
		}
	}
}

// ==================== 执行失败 ====================

func TestRunTrap(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.Kind().String(), func(t *testing.T) {
			h := newHarness(t, b, wt.Contract())
			_, err := h.run(context.Background(), wt.MethodTrap, state.NewMemoryExternal(nil), testutil.DefaultContext())
			vmErr := requireVMError(t, err, types.ClassExecution, types.CodeWasmUnreachable)
			require.NotNil(t, vmErr.Gas)
			assert.Greater(t, vmErr.Gas.BurntGas, uint64(0))
		})
	}
}

func TestRunGasExhaustion(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.Kind().String(), func(t *testing.T) {
			h := newHarness(t, b, wt.Contract())
			vmctx := testutil.DefaultContext()
			vmctx.PrepaidGas = 5_000_000_000

			_, err := h.run(context.Background(), wt.MethodLoop, state.NewMemoryExternal(nil), vmctx)
			require.ErrorIs(t, err, types.ErrGasExceeded)
			vmErr, _ := types.AsVMError(err)
			require.NotNil(t, vmErr.Gas)
			assert.LessOrEqual(t, vmErr.Gas.BurntGas, vmctx.PrepaidGas)
			assert.Equal(t, types.ClassResourceLimit, types.ErrorClassOf(err))
		})
	}
}

func TestRunStackHeightExceeded(t *testing.T) {
	for _, b := range backends(t) {
		t.Run(b.Kind().String(), func(t *testing.T) {
			h := newHarness(t, b, wt.Contract())
			_, err := h.run(context.Background(), wt.MethodRecurse, state.NewMemoryExternal(nil), testutil.DefaultContext())
			assert.ErrorIs(t, err, types.ErrStackHeightExceeded)
		})
	}
}

func TestRunInterruptedByContext(t *testing.T) {
	b := backends(t)[0]
	h := newHarness(t, b, wt.Contract())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h.run(ctx, wt.MethodLoop, state.NewMemoryExternal(nil), testutil.DefaultContext())
	requireVMError(t, err, types.ClassHostContract, types.CodeInterrupted)
}

// ==================== 编译与模块缓存 ====================

func TestPrepareRejectsMalformedCode(t *testing.T) {
	b := backends(t)[0]
	_, err := b.Prepare([]byte("not wasm"), types.DefaultVMConfig())
	requireVMError(t, err, types.ClassCompilation, types.CodeDeserialization)
}

func TestLookupReusesCompiledModule(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends(t) {
		t.Run(b.Kind().String(), func(t *testing.T) {
			_, ok := b.Lookup("noop")
			assert.False(t, ok)

			prepared, err := b.Prepare(wt.Noop("main"), types.DefaultVMConfig())
			require.NoError(t, err)
			first, err := b.Compile(ctx, "noop", prepared)
			require.NoError(t, err)

			second, ok := b.Lookup("noop")
			require.True(t, ok)
			assert.Same(t, first.(*Module).entry, second.(*Module).entry)
			assert.Equal(t, []string{"main"}, second.(*Module).Exports())

			again, err := b.Compile(ctx, "noop", prepared)
			require.NoError(t, err)
			assert.Same(t, first.(*Module).entry, again.(*Module).entry)

			stats := b.ModuleCache().Stats()
			assert.Equal(t, 1, stats.Entries)
			assert.Equal(t, int64(len(prepared)), stats.Bytes)

			for _, m := range []vm.Module{first, second, again} {
				require.NoError(t, m.Close(ctx))
				// 重复 Close 不会多次释放引用
				require.NoError(t, m.Close(ctx))
			}
			last, ok := b.Lookup("noop")
			require.True(t, ok, "closing modules must not evict the cache entry")
			require.NoError(t, last.Close(ctx))
		})
	}
}

type foreignModule struct{}

func (foreignModule) Kind() types.VMKind          { return types.VMKindWazeroInterpreter }
func (foreignModule) Close(context.Context) error { return nil }

func TestRunRejectsForeignModule(t *testing.T) {
	b := backends(t)[0]
	_, err := b.Run(context.Background(), foreignModule{}, &vm.Invocation{Method: "main"})
	requireVMError(t, err, types.ClassHostContract, types.CodeExternalError)
}
