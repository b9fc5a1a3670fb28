// Package preload 预编译调度器
//
// 🎯 **用途**：在真正需要调用之前批量编译合约，把编译延迟与其他工作重叠。
//
// 📋 **模型**：
//   - CallContext 持有固定大小的工作协程池和一个只增不减的槽位数组
//   - Preload 在写锁内预留槽位并入队，立即返回句柄
//   - RunPreloaded 在读锁内定位槽位，阻塞等待编译完成后在调用方 goroutine 上执行
//   - Close 放弃尚未开始的任务，等待进行中的任务完成，释放全部已编译模块
package preload

import (
	"context"
	"sync"

	"github.com/google/uuid"

	corelog "github.com/weisyn/vmrunner/internal/core/infrastructure/log"
	vmmetrics "github.com/weisyn/vmrunner/internal/core/vm/metrics"
	"github.com/weisyn/vmrunner/internal/core/vm/runner"
	"github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/metrics"
	"github.com/weisyn/vmrunner/pkg/interfaces/vm"
	"github.com/weisyn/vmrunner/pkg/types"
	metricsutil "github.com/weisyn/vmrunner/pkg/utils/metrics"
)

var _ metrics.MemoryReporter = (*CallContext)(nil)

// DefaultWorkers 默认工作协程数
const DefaultWorkers = 4

// 任务结果标签
const (
	resultOK        = "ok"
	resultError     = "error"
	resultAbandoned = "abandoned"
)

// slot 预编译槽位
//
// module/err 只由一个写者（工作协程或 Close）写入一次，随后关闭 done 发布。
type slot struct {
	req   ContractCallPrepareRequest
	kind  types.VMKind
	cfg   *types.VMConfig
	cache vm.CompiledContractCache

	done   chan struct{}
	module vm.Module
	err    error

	// released 受 CallContext.mu 保护
	released bool
	// users 正在使用该槽位的调用
	users sync.WaitGroup
	free  sync.Once
}

func (s *slot) finish(module vm.Module, err error) {
	s.module = module
	s.err = err
	close(s.done)
}

// dispose 等待编译结束与全部使用者退出后释放模块
func (s *slot) dispose() {
	s.free.Do(func() {
		<-s.done
		s.users.Wait()
		if s.module != nil {
			_ = s.module.Close(context.Background())
		}
	})
}

type job struct {
	index int
	slot  *slot
}

// CallContext 预编译上下文
type CallContext struct {
	id      uuid.UUID
	runner  *runner.Runner
	logger  log.Logger
	metrics *vmmetrics.Metrics

	// mu 保护 slots / closed
	mu     sync.RWMutex
	slots  []*slot
	closed bool

	// qmu 保护无界任务队列
	qmu     sync.Mutex
	cond    *sync.Cond
	queue   []job
	closing bool

	// jobCtx 在全部任务结束后取消
	jobCtx    context.Context
	cancel    context.CancelFunc
	workers   sync.WaitGroup
	closeOnce sync.Once
}

// NewCallContext 创建预编译上下文并启动 workers 个工作协程
//
// workers ≤ 0 使用 DefaultWorkers；logger / m 可为 nil。
func NewCallContext(r *runner.Runner, workers int, logger log.Logger, m *vmmetrics.Metrics) *CallContext {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if m == nil {
		m = vmmetrics.New(nil)
	}
	id := uuid.New()
	jobCtx, cancel := context.WithCancel(context.Background())
	c := &CallContext{
		id:      id,
		runner:  r,
		logger:  corelog.NewModuleLogger(logger, corelog.ModulePreload).With("context_id", id.String()),
		metrics: m,
		jobCtx:  jobCtx,
		cancel:  cancel,
	}
	c.cond = sync.NewCond(&c.qmu)
	c.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go c.worker()
	}
	metricsutil.RegisterMemoryReporter(c)
	c.logger.Debugf("预编译上下文已创建: workers=%d", workers)
	return c
}

// ID 上下文标识
func (c *CallContext) ID() uuid.UUID { return c.id }

// ==================== 提交 ====================

// Preload 为每个请求预留槽位并提交编译任务
//
// 立即返回，结果与 requests 一一对应。编译使用 kind 后端与 cfg 配置，产物写入 cache（可为 nil）。
func (c *CallContext) Preload(requests []ContractCallPrepareRequest, cache vm.CompiledContractCache, cfg *types.VMConfig, kind types.VMKind) []PrepareResult {
	results := make([]PrepareResult, len(requests))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		for i := range results {
			results[i].Err = ErrContextClosed
		}
		return results
	}

	jobs := make([]job, 0, len(requests))
	for i, req := range requests {
		s := &slot{req: req, kind: kind, cfg: cfg, cache: cache, done: make(chan struct{})}
		index := len(c.slots)
		c.slots = append(c.slots, s)
		jobs = append(jobs, job{index: index, slot: s})
		results[i].Handle = Handle{ContextID: c.id, Index: index}
	}
	c.enqueue(jobs)
	return results
}

func (c *CallContext) enqueue(jobs []job) {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	c.queue = append(c.queue, jobs...)
	c.metrics.PreloadPending.Add(float64(len(jobs)))
	c.cond.Broadcast()
}

// next 取出下一个任务；上下文关闭时返回 false
func (c *CallContext) next() (job, bool) {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	for len(c.queue) == 0 && !c.closing {
		c.cond.Wait()
	}
	if c.closing {
		return job{}, false
	}
	j := c.queue[0]
	c.queue[0] = job{}
	c.queue = c.queue[1:]
	return j, true
}

func (c *CallContext) worker() {
	defer c.workers.Done()
	for {
		j, ok := c.next()
		if !ok {
			return
		}
		c.compile(j)
	}
}

func (c *CallContext) compile(j job) {
	s := j.slot
	module, err := c.runner.Compile(c.jobCtx, s.kind, s.req.Code, s.req.CodeHash, s.cfg, s.cache)
	s.finish(module, err)

	c.metrics.PreloadPending.Dec()
	if err != nil {
		c.metrics.PreloadJobs.WithLabelValues(resultError).Inc()
		c.logger.Debugf("槽位 %d 预编译失败: %v", j.index, err)
		return
	}
	c.metrics.PreloadJobs.WithLabelValues(resultOK).Inc()
}

// ==================== 消费 ====================

// acquire 在读锁内定位槽位并登记使用者，调用方用完后必须 users.Done
func (c *CallContext) acquire(h Handle) (*slot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrContextClosed
	}
	if h.ContextID != c.id || h.Index < 0 || h.Index >= len(c.slots) {
		return nil, ErrInvalidHandle
	}
	s := c.slots[h.Index]
	if s.released {
		return nil, ErrInvalidHandle
	}
	s.users.Add(1)
	return s, nil
}

// Wait 阻塞直到句柄对应的编译完成，返回记录的编译错误
//
// ctx 到期时返回包装了 ErrNotReady 的错误。
func (c *CallContext) Wait(ctx context.Context, h Handle) error {
	s, err := c.acquire(h)
	if err != nil {
		return err
	}
	defer s.users.Done()
	return waitSlot(ctx, s)
}

func waitSlot(ctx context.Context, s *slot) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return &notReadyError{cause: ctx.Err()}
	}
}

// RunPreloaded 等待预编译完成并执行请求的方法
//
// 📋 **错误**：
//   - ErrInvalidHandle / ErrContextClosed: 句柄不可用
//   - ErrNotReady: ctx 到期时编译仍未完成
//   - ErrSlotAbandoned: 上下文关闭前任务未开始
//   - *types.VMError: 记录的编译错误或执行错误
func (c *CallContext) RunPreloaded(ctx context.Context, h Handle, p CallParams) (*types.VMOutcome, error) {
	s, err := c.acquire(h)
	if err != nil {
		return nil, err
	}
	defer s.users.Done()

	if err := waitSlot(ctx, s); err != nil {
		return nil, err
	}
	return c.runner.RunCompiled(ctx, s.module, &runner.Request{
		CodeHash:        s.req.CodeHash,
		Code:            s.req.Code,
		Method:          s.req.MethodName,
		Ext:             p.Ext,
		Context:         p.Context,
		Config:          s.cfg,
		Fees:            p.Fees,
		PromiseResults:  p.PromiseResults,
		ProtocolVersion: p.ProtocolVersion,
	}, p.Profile)
}

// Release 提前释放槽位；之后使用该句柄返回 ErrInvalidHandle
//
// 阻塞直到该槽位的编译结束且没有进行中的调用。
func (c *CallContext) Release(h Handle) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrContextClosed
	}
	if h.ContextID != c.id || h.Index < 0 || h.Index >= len(c.slots) || c.slots[h.Index].released {
		c.mu.Unlock()
		return ErrInvalidHandle
	}
	s := c.slots[h.Index]
	s.released = true
	c.mu.Unlock()

	s.dispose()
	return nil
}

// ==================== 关闭 ====================

// Close 关闭上下文，可重复调用
//
// 尚未开始的任务以 ErrSlotAbandoned 结束；进行中的任务被等待完成；
// 全部工作协程退出后释放已编译模块。
func (c *CallContext) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		slots := c.slots
		c.mu.Unlock()

		c.qmu.Lock()
		c.closing = true
		pending := c.queue
		c.queue = nil
		c.cond.Broadcast()
		c.qmu.Unlock()

		for _, j := range pending {
			j.slot.finish(nil, ErrSlotAbandoned)
			c.metrics.PreloadPending.Dec()
			c.metrics.PreloadJobs.WithLabelValues(resultAbandoned).Inc()
		}
		c.workers.Wait()
		c.cancel()

		for _, s := range slots {
			s.dispose()
		}
		metricsutil.UnregisterMemoryReporter(c)
		c.logger.Debugf("预编译上下文已关闭: slots=%d abandoned=%d", len(slots), len(pending))
	})
	return nil
}

// ==================== 指标 ====================

// ModuleName 实现 metrics.MemoryReporter
func (c *CallContext) ModuleName() string { return "vm.preload/" + c.id.String() }

// CollectMemoryStats 实现 metrics.MemoryReporter
func (c *CallContext) CollectMemoryStats() metrics.ModuleMemoryStats {
	c.mu.RLock()
	slots := int64(len(c.slots))
	c.mu.RUnlock()
	c.qmu.Lock()
	queued := int64(len(c.queue))
	c.qmu.Unlock()
	return metrics.ModuleMemoryStats{
		Module:      c.ModuleName(),
		Objects:     slots,
		QueueLength: queued,
	}
}
