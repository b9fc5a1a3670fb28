// Package vm 合约执行核心的依赖注入装配
//
// 🎯 **提供**：
//   - *vmmetrics.Metrics: 运行器与预编译调度器共享的 Prometheus 指标
//   - vm.CompiledContractCache: 按 vm.artifact_cache 选择 memory / badger / 不缓存
//   - *runner.Runner: 合约执行入口
//   - *preload.CallContext: 进程级预编译上下文
//
// 关闭顺序与创建顺序相反：先关闭预编译上下文，再关闭运行器。
package vm

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	vmconfig "github.com/weisyn/vmrunner/internal/config/vm"
	corelog "github.com/weisyn/vmrunner/internal/core/infrastructure/log"
	"github.com/weisyn/vmrunner/internal/core/vm/cache"
	vmmetrics "github.com/weisyn/vmrunner/internal/core/vm/metrics"
	"github.com/weisyn/vmrunner/internal/core/vm/preload"
	"github.com/weisyn/vmrunner/internal/core/vm/runner"
	"github.com/weisyn/vmrunner/pkg/interfaces/config"
	"github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/crypto"
	"github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/log"
	storageInterface "github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/storage"
	vmiface "github.com/weisyn/vmrunner/pkg/interfaces/vm"
)

// ModuleParams 执行核心的依赖参数
type ModuleParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Provider   config.Provider
	Hasher     crypto.HashManager
	Logger     log.Logger                   `optional:"true"`
	Registerer prometheus.Registerer        `optional:"true"`
	Badger     storageInterface.BadgerStore `optional:"true"`
	Memory     storageInterface.MemoryStore `optional:"true"`
}

// ModuleOutput 执行核心的输出
type ModuleOutput struct {
	fx.Out

	Metrics     *vmmetrics.Metrics
	Cache       vmiface.CompiledContractCache
	Runner      *runner.Runner
	CallContext *preload.CallContext
}

// Module 返回执行核心模块
func Module() fx.Option {
	return fx.Module("vm",
		fx.Provide(ProvideServices),
	)
}

// ProvideServices 按配置装配运行器、产物缓存与预编译上下文
func ProvideServices(params ModuleParams) ModuleOutput {
	opts := params.Provider.GetVM()
	logger := corelog.NewModuleLogger(params.Logger, corelog.ModuleVM)

	reg := params.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := vmmetrics.New(reg)

	r := runner.New(runner.Config{
		DefaultKind:         opts.DefaultKind,
		ModuleCacheSize:     opts.ModuleCacheSize,
		CompilationCacheDir: opts.CompilationCacheDir,
		EnableTracing:       opts.EnableTracing,
	}, params.Hasher, params.Logger, m)

	callCtx := preload.NewCallContext(r, opts.PreloadWorkers, params.Logger, m)

	out := ModuleOutput{
		Metrics:     m,
		Cache:       newArtifactCache(opts.ArtifactCache, params.Badger, params.Memory),
		Runner:      r,
		CallContext: callCtx,
	}

	params.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := callCtx.Close(); err != nil {
				logger.Errorf("关闭预编译上下文失败: %v", err)
			}
			return r.Close(ctx)
		},
	})
	logger.Infof("合约执行核心已装配: default_kind=%s artifact_cache=%s preload_workers=%d",
		opts.DefaultKind, opts.ArtifactCache, opts.PreloadWorkers)
	return out
}

// newArtifactCache 选择产物缓存；对应存储未创建时不缓存
func newArtifactCache(kind string, badger storageInterface.BadgerStore, memory storageInterface.MemoryStore) vmiface.CompiledContractCache {
	switch {
	case kind == vmconfig.ArtifactCacheBadger && badger != nil:
		return cache.NewBadgerCache(badger)
	case kind == vmconfig.ArtifactCacheMemory && memory != nil:
		return cache.NewMemoryCache(memory)
	default:
		return nil
	}
}
