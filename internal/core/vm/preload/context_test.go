package preload

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/vmrunner/internal/core/vm/cache"
	vmmetrics "github.com/weisyn/vmrunner/internal/core/vm/metrics"
	"github.com/weisyn/vmrunner/internal/core/vm/runner"
	"github.com/weisyn/vmrunner/internal/core/vm/state"
	"github.com/weisyn/vmrunner/internal/testutil"
	wt "github.com/weisyn/vmrunner/internal/testutil/wasmtest"
	"github.com/weisyn/vmrunner/pkg/types"
)

// ==================== 测试辅助 ====================

type fixture struct {
	runner  *runner.Runner
	ctx     *CallContext
	metrics *vmmetrics.Metrics
}

func newFixture(t *testing.T, workers int) *fixture {
	t.Helper()
	m := vmmetrics.New(prometheus.NewRegistry())
	logger := testutil.NewTestLogger(t)
	r := runner.New(runner.DefaultConfig(), nil, logger, m)
	c := NewCallContext(r, workers, logger, m)
	t.Cleanup(func() {
		_ = c.Close()
		_ = r.Close(context.Background())
	})
	return &fixture{runner: r, ctx: c, metrics: m}
}

func params() CallParams {
	return CallParams{
		Ext:     state.NewMemoryExternal(nil),
		Context: testutil.DefaultContext(),
		Fees:    types.DefaultRuntimeFeesConfig(),
	}
}

// gateCache 第一次 Get 时阻塞，直到 open 被调用
type gateCache struct {
	*cache.MockCache
	entered   chan struct{}
	gate      chan struct{}
	enterOnce sync.Once
	openOnce  sync.Once
}

func newGateCache() *gateCache {
	return &gateCache{MockCache: cache.NewMockCache(), entered: make(chan struct{}), gate: make(chan struct{})}
}

func (g *gateCache) Get(key []byte) ([]byte, bool, error) {
	g.enterOnce.Do(func() { close(g.entered) })
	<-g.gate
	return g.MockCache.Get(key)
}

func (g *gateCache) open() { g.openOnce.Do(func() { close(g.gate) }) }

func disallowedImportContract() []byte {
	b := wt.NewBuilder()
	b.Import("env", "not_a_host_function", nil, nil)
	b.Memory(1, nil)
	b.ExportFunc("main", b.Func(b.Type(nil, nil), nil, wt.Code(wt.End())))
	return b.Bytes()
}

// ==================== 预编译与消费 ====================

func TestPreloadMatchesSequentialRuns(t *testing.T) {
	f := newFixture(t, 3)
	reqs := []ContractCallPrepareRequest{
		{Code: wt.Contract(), MethodName: wt.MethodNoop},
		{Code: wt.Contract(), MethodName: wt.MethodCallBob},
		{Code: wt.Noop("main"), MethodName: "main"},
	}
	cfg := types.DefaultVMConfig()
	kind := f.runner.DefaultKind()

	results := f.ctx.Preload(reqs, cache.NewMockCache(), cfg, kind)
	require.Len(t, results, 3)
	for i, res := range results {
		require.NoError(t, res.Err)
		assert.Equal(t, f.ctx.ID(), res.Handle.ContextID)
		assert.Equal(t, i, res.Handle.Index)
	}

	// 独立运行器、不经预编译的顺序执行作为对照
	direct := runner.New(runner.DefaultConfig(), nil, nil, nil)
	t.Cleanup(func() { _ = direct.Close(context.Background()) })

	for i, req := range reqs {
		got, err := f.ctx.RunPreloaded(context.Background(), results[i].Handle, params())
		require.NoError(t, err)

		p := params()
		want, err := direct.RunVM(context.Background(), kind, &runner.Request{
			Code:    req.Code,
			Method:  req.MethodName,
			Ext:     p.Ext,
			Context: p.Context,
			Config:  cfg,
			Fees:    p.Fees,
		})
		require.NoError(t, err)
		assert.Equal(t, want, got, req.MethodName)
	}
	assert.Equal(t, 3.0, promtest.ToFloat64(f.metrics.PreloadJobs.WithLabelValues(resultOK)))
	assert.Zero(t, promtest.ToFloat64(f.metrics.PreloadPending))
}

func TestPreloadedHandleCanBeConsumedConcurrently(t *testing.T) {
	f := newFixture(t, 2)
	res := f.ctx.Preload([]ContractCallPrepareRequest{{Code: wt.Contract(), MethodName: wt.MethodLog}},
		nil, types.DefaultVMConfig(), f.runner.DefaultKind())
	h := res[0].Handle

	var wg sync.WaitGroup
	outs := make([]*types.VMOutcome, 8)
	errs := make([]error, 8)
	for i := range outs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outs[i], errs[i] = f.ctx.RunPreloaded(context.Background(), h, params())
		}()
	}
	wg.Wait()
	for i := range outs {
		require.NoError(t, errs[i])
		assert.Equal(t, outs[0], outs[i])
		assert.Equal(t, []string{wt.LogMessage}, outs[i].Logs)
	}
}

func TestCompileErrorSurfacesOnConsume(t *testing.T) {
	f := newFixture(t, 1)
	res := f.ctx.Preload([]ContractCallPrepareRequest{{Code: disallowedImportContract(), MethodName: "main"}},
		nil, types.DefaultVMConfig(), f.runner.DefaultKind())
	require.NoError(t, res[0].Err, "submission never reports compile errors")

	out, err := f.ctx.RunPreloaded(context.Background(), res[0].Handle, params())
	assert.Nil(t, out)
	assert.Equal(t, types.ClassCompilation, types.ErrorClassOf(err))

	assert.Equal(t, types.ClassCompilation, types.ErrorClassOf(f.ctx.Wait(context.Background(), res[0].Handle)))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.PreloadJobs.WithLabelValues(resultError)))
}

func TestRunPreloadedWaitsForCompilation(t *testing.T) {
	f := newFixture(t, 1)
	gate := newGateCache()
	res := f.ctx.Preload([]ContractCallPrepareRequest{{Code: wt.Contract(), MethodName: wt.MethodNoop}},
		gate, types.DefaultVMConfig(), f.runner.DefaultKind())
	h := res[0].Handle
	<-gate.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.ctx.RunPreloaded(ctx, h, params())
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// 超时不影响任务本身
	done := make(chan error, 1)
	go func() {
		_, err := f.ctx.RunPreloaded(context.Background(), h, params())
		done <- err
	}()
	gate.open()
	require.NoError(t, <-done)
}

// ==================== 句柄 ====================

func TestInvalidHandles(t *testing.T) {
	f := newFixture(t, 1)
	res := f.ctx.Preload([]ContractCallPrepareRequest{{Code: wt.Noop("main"), MethodName: "main"}},
		nil, types.DefaultVMConfig(), f.runner.DefaultKind())
	valid := res[0].Handle

	for name, h := range map[string]Handle{
		"foreign":  {ContextID: uuid.New(), Index: 0},
		"negative": {ContextID: valid.ContextID, Index: -1},
		"unissued": {ContextID: valid.ContextID, Index: 1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := f.ctx.RunPreloaded(context.Background(), h, params())
			assert.ErrorIs(t, err, ErrInvalidHandle)
			assert.ErrorIs(t, f.ctx.Release(h), ErrInvalidHandle)
		})
	}

	require.NoError(t, f.ctx.Release(valid))
	_, err := f.ctx.RunPreloaded(context.Background(), valid, params())
	assert.ErrorIs(t, err, ErrInvalidHandle)
	assert.ErrorIs(t, f.ctx.Release(valid), ErrInvalidHandle)
}

// ==================== 关闭 ====================

func TestCloseRejectsFurtherUse(t *testing.T) {
	f := newFixture(t, 2)
	res := f.ctx.Preload([]ContractCallPrepareRequest{{Code: wt.Noop("main"), MethodName: "main"}},
		nil, types.DefaultVMConfig(), f.runner.DefaultKind())
	require.NoError(t, f.ctx.Wait(context.Background(), res[0].Handle))

	require.NoError(t, f.ctx.Close())
	require.NoError(t, f.ctx.Close())

	_, err := f.ctx.RunPreloaded(context.Background(), res[0].Handle, params())
	assert.ErrorIs(t, err, ErrContextClosed)
	assert.ErrorIs(t, f.ctx.Release(res[0].Handle), ErrContextClosed)

	late := f.ctx.Preload([]ContractCallPrepareRequest{{Code: wt.Noop("main"), MethodName: "main"}},
		nil, types.DefaultVMConfig(), f.runner.DefaultKind())
	assert.ErrorIs(t, late[0].Err, ErrContextClosed)
}

func TestCloseAbandonsQueuedJobs(t *testing.T) {
	f := newFixture(t, 1)
	gate := newGateCache()
	res := f.ctx.Preload([]ContractCallPrepareRequest{
		{Code: wt.Contract(), MethodName: wt.MethodNoop},
		{Code: wt.Noop("main"), MethodName: "main"},
	}, gate, types.DefaultVMConfig(), f.runner.DefaultKind())
	require.Len(t, res, 2)
	<-gate.entered

	closed := make(chan struct{})
	go func() {
		_ = f.ctx.Close()
		close(closed)
	}()
	require.Eventually(t, func() bool {
		f.ctx.qmu.Lock()
		defer f.ctx.qmu.Unlock()
		return f.ctx.closing
	}, time.Second, time.Millisecond)

	// 进行中的任务被等待完成，排队的任务被放弃
	select {
	case <-closed:
		t.Fatal("Close returned while a job was in flight")
	default:
	}
	gate.open()
	<-closed

	first, second := f.ctx.slots[0], f.ctx.slots[1]
	assert.NoError(t, first.err)
	assert.ErrorIs(t, second.err, ErrSlotAbandoned)
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.PreloadJobs.WithLabelValues(resultAbandoned)))
	assert.Zero(t, promtest.ToFloat64(f.metrics.PreloadPending))
}

func TestMemoryStats(t *testing.T) {
	f := newFixture(t, 1)
	f.ctx.Preload([]ContractCallPrepareRequest{{Code: wt.Noop("main"), MethodName: "main"}},
		nil, types.DefaultVMConfig(), f.runner.DefaultKind())
	stats := f.ctx.CollectMemoryStats()
	assert.Equal(t, int64(1), stats.Objects)
	assert.Equal(t, "vm.preload/"+f.ctx.ID().String(), stats.Module)
}
