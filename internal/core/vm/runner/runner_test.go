package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/vmrunner/internal/core/engines"
	"github.com/weisyn/vmrunner/internal/core/vm/cache"
	vmmetrics "github.com/weisyn/vmrunner/internal/core/vm/metrics"
	"github.com/weisyn/vmrunner/internal/core/vm/state"
	"github.com/weisyn/vmrunner/internal/testutil"
	wt "github.com/weisyn/vmrunner/internal/testutil/wasmtest"
	"github.com/weisyn/vmrunner/pkg/types"
)

// ==================== 测试辅助 ====================

func newRunner(t *testing.T) (*Runner, *vmmetrics.Metrics) {
	t.Helper()
	m := vmmetrics.New(prometheus.NewRegistry())
	r := New(DefaultConfig(), nil, testutil.NewTestLogger(t), m)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r, m
}

func request(code []byte, method string) *Request {
	return &Request{
		Code:    code,
		Method:  method,
		Ext:     state.NewMemoryExternal(nil),
		Context: testutil.DefaultContext(),
		Config:  types.DefaultVMConfig(),
		Fees:    types.DefaultRuntimeFeesConfig(),
	}
}

// disallowedImportContract 导入宿主不提供的函数，prepare 阶段即被拒绝
func disallowedImportContract() []byte {
	b := wt.NewBuilder()
	b.Import("env", "not_a_host_function", nil, nil)
	b.Memory(1, nil)
	b.ExportFunc("main", b.Func(b.Type(nil, nil), nil, wt.Code(wt.End())))
	return b.Bytes()
}

// ==================== 端到端场景 ====================

func TestRunNoopMethod(t *testing.T) {
	r, _ := newRunner(t)
	req := request(wt.Noop("main"), "main")
	req.Context.PrepaidGas = 100_000_000_000_000

	out, err := r.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Greater(t, out.BurntGas, uint64(0))
	assert.Empty(t, out.Logs)
	assert.Empty(t, out.Receipts)
	assert.Equal(t, types.ReturnNone(), out.ReturnData)
}

func TestRunFunctionCallReceipt(t *testing.T) {
	r, _ := newRunner(t)
	out, err := r.Run(context.Background(), request(wt.Contract(), wt.MethodCallBob))
	require.NoError(t, err)

	require.Len(t, out.Receipts, 1)
	receipt := out.Receipts[0]
	assert.Equal(t, "bob", receipt.ReceiverID)
	require.Len(t, receipt.Actions, 1)
	call, ok := receipt.Actions[0].(types.FunctionCallAction)
	require.True(t, ok)
	assert.Equal(t, "hello", call.MethodName)
	assert.Equal(t, []byte("{}"), call.Args)
}

func TestRunGasExhaustion(t *testing.T) {
	r, _ := newRunner(t)
	req := request(wt.Contract(), wt.MethodLoop)
	req.Context.PrepaidGas = 5_000_000_000

	out, err := r.Run(context.Background(), req)
	assert.Nil(t, out)
	require.ErrorIs(t, err, types.ErrGasExceeded)
	vmErr, _ := types.AsVMError(err)
	require.NotNil(t, vmErr.Gas)
	assert.LessOrEqual(t, vmErr.Gas.BurntGas, req.Context.PrepaidGas)
}

func TestRunIsDeterministicAcrossVariants(t *testing.T) {
	r, _ := newRunner(t)
	var outs []*types.VMOutcome
	WithVMVariants(func(kind types.VMKind) {
		out, err := r.RunVM(context.Background(), kind, request(wt.Contract(), wt.MethodCallBob))
		require.NoError(t, err, kind.String())
		outs = append(outs, out)
	})
	require.NotEmpty(t, outs)
	for _, out := range outs[1:] {
		assert.Equal(t, outs[0], out)
	}
}

// ==================== 错误边界 ====================

func TestRunRejectsIncompleteRequest(t *testing.T) {
	r, _ := newRunner(t)
	req := request(wt.Noop("main"), "main")
	req.Ext = nil
	_, err := r.Run(context.Background(), req)
	vmErr, ok := types.AsVMError(err)
	require.True(t, ok)
	assert.Equal(t, types.ClassHostContract, vmErr.Class)
	assert.Equal(t, types.CodeInvalidContext, vmErr.Code)
}

func TestRunUnavailableBackend(t *testing.T) {
	r, _ := newRunner(t)
	_, err := r.RunVM(context.Background(), types.VMKind(200), request(wt.Noop("main"), "main"))
	assert.Equal(t, types.ClassBackendUnavailable, types.ErrorClassOf(err))

	for _, kind := range types.AllVMKinds() {
		if engines.IsRegistered(kind) {
			continue
		}
		_, err := r.RunVM(context.Background(), kind, request(wt.Noop("main"), "main"))
		assert.Equal(t, types.ClassBackendUnavailable, types.ErrorClassOf(err))
	}
}

func TestRunAfterClose(t *testing.T) {
	r, _ := newRunner(t)
	require.NoError(t, r.Close(context.Background()))
	require.NoError(t, r.Close(context.Background()))
	_, err := r.Run(context.Background(), request(wt.Noop("main"), "main"))
	assert.Equal(t, types.ClassBackendUnavailable, types.ErrorClassOf(err))
}

func TestRunProfiledRecordsBurntGasOnFailure(t *testing.T) {
	r, _ := newRunner(t)
	profile := types.NewProfileData()
	_, err := r.RunProfiled(context.Background(), r.DefaultKind(), request(wt.Contract(), wt.MethodTrap), profile)
	vmErr, ok := types.AsVMError(err)
	require.True(t, ok)
	require.NotNil(t, vmErr.Gas)
	assert.Equal(t, vmErr.Gas.BurntGas, profile.BurntGas())
	assert.Greater(t, profile.BurntGas(), uint64(0))

	profile = types.NewProfileData()
	out, err := r.RunProfiled(context.Background(), r.DefaultKind(), request(wt.Contract(), wt.MethodLog), profile)
	require.NoError(t, err)
	assert.Equal(t, out.BurntGas, profile.BurntGas())
	assert.Greater(t, profile.WasmGas(), uint64(0))
}

// ==================== 缓存 ====================

func TestCacheSeparatesConfigs(t *testing.T) {
	r, _ := newRunner(t)
	ctx := context.Background()
	artifacts := cache.NewMockCache()
	code := wt.Contract()

	fa := types.DefaultVMConfig()
	fb := types.DefaultVMConfig()
	fb.Limits.MaxStackHeight = 64
	require.NotEqual(t, fa.Fingerprint(), fb.Fingerprint())

	require.NoError(t, r.Precompile(ctx, r.DefaultKind(), code, nil, fa, artifacts))
	require.NoError(t, r.Precompile(ctx, r.DefaultKind(), code, nil, fb, artifacts))
	assert.Equal(t, 2, artifacts.Len())

	codeHash := r.Hasher().SHA256(code)
	keyB, err := cache.Key(r.Hasher(), codeHash, fb.Fingerprint(), r.DefaultKind())
	require.NoError(t, err)
	value, ok, err := artifacts.Get(keyB)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = cache.DecodeArtifact(value, r.DefaultKind(), fa.Fingerprint())
	assert.ErrorIs(t, err, cache.ErrArtifactMismatch)
	a, err := cache.DecodeArtifact(value, r.DefaultKind(), fb.Fingerprint())
	require.NoError(t, err)
	assert.NotEmpty(t, a.Code)
}

func TestArtifactCacheIsReusedAcrossRunners(t *testing.T) {
	ctx := context.Background()
	artifacts := cache.NewMockCache()
	first, _ := newRunner(t)
	req := request(wt.Contract(), wt.MethodLog)
	req.Cache = artifacts
	want, err := first.Run(ctx, req)
	require.NoError(t, err)
	_, puts := artifacts.Calls()
	assert.Equal(t, 1, puts)

	second, m := newRunner(t)
	req = request(wt.Contract(), wt.MethodLog)
	req.Cache = artifacts
	got, err := second.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.CacheHits.WithLabelValues(vmmetrics.LayerArtifact)))

	// 第二次调用命中进程内模块缓存，不再访问产物缓存
	gets, _ := artifacts.Calls()
	_, err = second.Run(ctx, req)
	require.NoError(t, err)
	gets2, _ := artifacts.Calls()
	assert.Equal(t, gets, gets2)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.CacheHits.WithLabelValues(vmmetrics.LayerModule)))
}

func compileSamples(t *testing.T, m *vmmetrics.Metrics, kind types.VMKind, phase string) uint64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.CompileSeconds.WithLabelValues(kind.String(), phase).(prometheus.Metric).Write(&out))
	return out.GetHistogram().GetSampleCount()
}

func TestCompileIsObservedOncePerPhase(t *testing.T) {
	ctx := context.Background()
	r, m := newRunner(t)
	kind := r.DefaultKind()

	_, err := r.Run(ctx, request(wt.Contract(), wt.MethodLog))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), compileSamples(t, m, kind, vmmetrics.PhasePrepare))
	assert.Equal(t, uint64(1), compileSamples(t, m, kind, vmmetrics.PhaseCompile))

	// 模块缓存命中不产生新的编译耗时
	_, err = r.Run(ctx, request(wt.Contract(), wt.MethodLog))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), compileSamples(t, m, kind, vmmetrics.PhasePrepare))
	assert.Equal(t, uint64(1), compileSamples(t, m, kind, vmmetrics.PhaseCompile))

	// 产物缓存命中时只有后端编译阶段
	artifacts := cache.NewMockCache()
	req := request(wt.Contract(), wt.MethodLog)
	req.Cache = artifacts
	seed, _ := newRunner(t)
	_, err = seed.Run(ctx, req)
	require.NoError(t, err)

	warm, wm := newRunner(t)
	req = request(wt.Contract(), wt.MethodLog)
	req.Cache = artifacts
	_, err = warm.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), compileSamples(t, wm, kind, vmmetrics.PhasePrepare))
	assert.Equal(t, uint64(1), compileSamples(t, wm, kind, vmmetrics.PhaseCompile))
}

func TestCompileErrorIsCachedAndReplayed(t *testing.T) {
	ctx := context.Background()
	artifacts := cache.NewMockCache()
	code := disallowedImportContract()

	first, _ := newRunner(t)
	err := first.Precompile(ctx, first.DefaultKind(), code, nil, types.DefaultVMConfig(), artifacts)
	want, ok := types.AsVMError(err)
	require.True(t, ok)
	assert.Equal(t, types.ClassCompilation, want.Class)
	assert.Equal(t, 1, artifacts.Len())

	second, _ := newRunner(t)
	req := request(code, "main")
	req.Cache = artifacts
	out, err := second.Run(ctx, req)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, want)
	_, puts := artifacts.Calls()
	assert.Equal(t, 1, puts, "replayed errors must not be stored again")
}

func TestCacheFailuresDegradeToRecompile(t *testing.T) {
	ctx := context.Background()

	broken := cache.NewMockCache()
	broken.GetErr = errors.New("disk gone")
	broken.PutErr = errors.New("disk full")
	r, m := newRunner(t)
	req := request(wt.Contract(), wt.MethodNoop)
	req.Cache = broken
	_, err := r.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.CacheErrors.WithLabelValues(vmmetrics.OpGet)))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.CacheErrors.WithLabelValues(vmmetrics.OpPut)))

	corrupt := cache.NewMockCache()
	seed, _ := newRunner(t)
	require.NoError(t, seed.Precompile(ctx, seed.DefaultKind(), wt.Contract(), nil, types.DefaultVMConfig(), corrupt))
	corrupt.Corrupt()
	r, m = newRunner(t)
	req = request(wt.Contract(), wt.MethodNoop)
	req.Cache = corrupt
	_, err = r.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.CacheErrors.WithLabelValues(vmmetrics.OpDecode)))
}

func TestCompileModule(t *testing.T) {
	r, _ := newRunner(t)
	ctx := context.Background()

	ok, err := r.CompileModule(ctx, r.DefaultKind(), wt.Contract(), types.DefaultVMConfig())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.CompileModule(ctx, r.DefaultKind(), []byte("garbage"), types.DefaultVMConfig())
	assert.False(t, ok)
	assert.ErrorIs(t, err, types.NewVMError(types.ClassCompilation, types.CodeDeserialization, ""))
}

func TestPrecompileAll(t *testing.T) {
	r, _ := newRunner(t)
	artifacts := cache.NewMockCache()
	reqs := []PrecompileRequest{
		{Code: wt.Contract()},
		{Code: wt.Noop("main")},
		{Code: disallowedImportContract()},
	}
	errs := r.PrecompileAll(context.Background(), r.DefaultKind(), reqs, types.DefaultVMConfig(), artifacts, 2)
	require.Len(t, errs, 3)
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, types.ClassCompilation, types.ErrorClassOf(errs[2]))
	assert.Equal(t, 3, artifacts.Len())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	errs = r.PrecompileAll(ctx, r.DefaultKind(), reqs, types.DefaultVMConfig(), artifacts, 0)
	for _, err := range errs {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
