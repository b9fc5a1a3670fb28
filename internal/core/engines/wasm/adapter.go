// Package wasm 基于 wazero 的沙箱后端
//
// 🎯 **组成**：
//   - engine: wazero 运行时与宿主模块 "env"
//   - compiler: 进程内已编译模块 LRU
//   - runtime: trap 归类
//   - Backend: 实现 vm.Backend，按执行模式注册为 wazero-compiler / wazero-interpreter
package wasm

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"

	compilerpkg "github.com/weisyn/vmrunner/internal/core/engines/wasm/compiler"
	enginepkg "github.com/weisyn/vmrunner/internal/core/engines/wasm/engine"
	runtimepkg "github.com/weisyn/vmrunner/internal/core/engines/wasm/runtime"
	"github.com/weisyn/vmrunner/internal/core/infrastructure/crypto/hash"
	corelog "github.com/weisyn/vmrunner/internal/core/infrastructure/log"
	"github.com/weisyn/vmrunner/internal/core/vm/logic"
	"github.com/weisyn/vmrunner/internal/core/vm/prepare"
	"github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/crypto"
	"github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/metrics"
	"github.com/weisyn/vmrunner/pkg/interfaces/vm"
	"github.com/weisyn/vmrunner/pkg/types"
	metricsutil "github.com/weisyn/vmrunner/pkg/utils/metrics"
)

var (
	_ vm.Backend             = (*Backend)(nil)
	_ metrics.MemoryReporter = (*Backend)(nil)
	_ metrics.CacheShrinker  = (*Backend)(nil)
)

// Module 已编译的合约模块
//
// 持有模块缓存条目的一个引用，Close 之前编译结果不会因淘汰而释放。
type Module struct {
	kind    types.VMKind
	entry   *compilerpkg.Entry
	release sync.Once
}

func newModule(kind types.VMKind, entry *compilerpkg.Entry) *Module {
	return &Module{kind: kind, entry: entry}
}

// Kind 产生该模块的后端
func (m *Module) Kind() types.VMKind { return m.kind }

// Close 释放对编译结果的引用，可重复调用
func (m *Module) Close(context.Context) error {
	m.release.Do(m.entry.Release)
	return nil
}

// Exports 导出函数名列表
func (m *Module) Exports() []string {
	defs := m.entry.Compiled.ExportedFunctions()
	out := make([]string, 0, len(defs))
	for name := range defs {
		out = append(out, name)
	}
	return out
}

// Backend 实现 vm.Backend，对接底层引擎封装、模块缓存与 trap 归类
type Backend struct {
	kind    types.VMKind
	vm      *enginepkg.VM
	modules *compilerpkg.ModuleCache
	hasher  crypto.HashManager
	logger  log.Logger
}

// NewBackend 创建后端
func NewBackend(ctx context.Context, kind types.VMKind, cfg enginepkg.Config, cacheSize int, hasher crypto.HashManager, logger log.Logger) (*Backend, error) {
	if hasher == nil {
		hasher = hash.NewHashService()
	}
	engineVM, err := enginepkg.NewVM(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s runtime: %w", kind, err)
	}
	modules, err := compilerpkg.NewModuleCache(cacheSize)
	if err != nil {
		_ = engineVM.Close(ctx)
		return nil, err
	}
	logger = corelog.NewModuleLogger(logger, corelog.ModuleEngine).With("kind", kind.String())
	logger.Debugf("wazero %s 后端已创建", cfg.Mode)
	b := &Backend{kind: kind, vm: engineVM, modules: modules, hasher: hasher, logger: logger}
	metricsutil.RegisterMemoryReporter(b)
	return b, nil
}

// Kind 后端类型
func (b *Backend) Kind() types.VMKind { return b.kind }

// Prepare 校验并插桩原始字节码
func (b *Backend) Prepare(code []byte, cfg *types.VMConfig) ([]byte, error) {
	return prepare.Prepare(code, cfg, logic.Resolve)
}

// Lookup 查询进程内已编译模块
func (b *Backend) Lookup(key string) (vm.Module, bool) {
	entry, ok := b.modules.Get(key)
	if !ok {
		return nil, false
	}
	return newModule(b.kind, entry), true
}

// Compile 编译插桩后的字节码并登记到模块缓存
func (b *Backend) Compile(ctx context.Context, key string, prepared []byte) (vm.Module, error) {
	if entry, ok := b.modules.Get(key); ok {
		return newModule(b.kind, entry), nil
	}
	compiled, err := b.vm.Compile(ctx, prepared)
	if err != nil {
		return nil, types.WrapVMError(types.ClassCompilation, types.CodeCompileError, err)
	}
	entry := b.modules.Add(key, &compilerpkg.Entry{Compiled: compiled, Size: len(prepared)})
	return newModule(b.kind, entry), nil
}

// ModuleCache 进程内模块缓存
func (b *Backend) ModuleCache() *compilerpkg.ModuleCache { return b.modules }

// ModuleName 实现 metrics.MemoryReporter
func (b *Backend) ModuleName() string { return "vm.engine.lru/" + b.kind.String() }

// CollectMemoryStats 实现 metrics.MemoryReporter
func (b *Backend) CollectMemoryStats() metrics.ModuleMemoryStats {
	stats := b.modules.Stats()
	return metrics.ModuleMemoryStats{
		Module:      b.ModuleName(),
		Objects:     int64(stats.Entries),
		ApproxBytes: stats.Bytes,
		CacheItems:  int64(stats.Entries),
	}
}

// ShrinkCache 实现 metrics.CacheShrinker，被淘汰的模块在持有者释放后关闭
func (b *Backend) ShrinkCache(target int) {
	if evicted := b.modules.Resize(target); evicted > 0 {
		b.logger.Infof("模块缓存收缩: target=%d evicted=%d", target, evicted)
	}
}

func isVoid(def api.FunctionDefinition) bool {
	return len(def.ParamTypes()) == 0 && len(def.ResultTypes()) == 0
}

// Run 实例化模块并执行导出方法
//
// 📋 **步骤**：
//  1. 方法名为空：MethodEmptyName（不收费）
//  2. 收取合约编译费用
//  3. 方法不存在或签名不是 () -> ()：MethodNotFound / MethodInvalidSignature
//  4. 实例化（执行 start 段）并调用方法
//
// 失败时错误携带燃料报告；成功时返回宿主层汇总的结果。
func (b *Backend) Run(ctx context.Context, module vm.Module, inv *vm.Invocation) (*types.VMOutcome, error) {
	m, ok := module.(*Module)
	if !ok || m.kind != b.kind {
		return nil, types.NewVMError(types.ClassHostContract, types.CodeExternalError, "module was not compiled by %s", b.kind)
	}

	l := logic.New(logic.Params{
		Ext:            inv.Ext,
		Context:        inv.Context,
		Config:         inv.Config,
		Fees:           inv.Fees,
		PromiseResults: inv.PromiseResults,
		Profile:        inv.Profile,
		Hasher:         b.hasher,
	})
	fail := func(err *types.VMError) (*types.VMOutcome, error) {
		_ = l.ReleaseIterators()
		return nil, err.WithGas(l.GasReport())
	}

	if inv.Method == "" {
		return fail(types.NewVMError(types.ClassExecution, types.CodeMethodEmptyName, "method name is empty"))
	}
	if err := l.ChargeContractCompile(inv.CodeLen); err != nil {
		return fail(runtimepkg.ClassifyTrap(err, nil))
	}

	def, ok := m.entry.Compiled.ExportedFunctions()[inv.Method]
	if !ok {
		return fail(types.NewVMError(types.ClassExecution, types.CodeMethodNotFound, "method %q is not exported", inv.Method))
	}
	if !isVoid(def) {
		return fail(types.NewVMError(types.ClassExecution, types.CodeMethodInvalidSignature,
			"method %q must take no parameters and return nothing", inv.Method))
	}

	callCtx := enginepkg.WithLogic(ctx, l)
	inst, err := b.vm.Instantiate(callCtx, m.entry.Compiled)
	if err != nil {
		return fail(runtimepkg.ClassifyInstantiate(l.AbortError(), err))
	}
	defer closeInstance(inst)

	if _, err := inst.ExportedFunction(inv.Method).Call(callCtx); err != nil {
		vmErr := runtimepkg.ClassifyTrap(l.AbortError(), err)
		b.logger.Debugf("合约方法 %s 执行失败: %v", inv.Method, vmErr)
		return fail(vmErr)
	}
	if err := l.ReleaseIterators(); err != nil {
		return fail(runtimepkg.ClassifyTrap(err, nil))
	}
	return l.Outcome(), nil
}

func closeInstance(inst api.Module) {
	// 调用方的 ctx 可能已取消，关闭实例使用独立的 context
	_ = inst.Close(context.Background())
}

// Close 关闭后端，释放全部编译结果
func (b *Backend) Close(ctx context.Context) error {
	metricsutil.UnregisterMemoryReporter(b)
	b.modules.Purge()
	return b.vm.Close(ctx)
}
