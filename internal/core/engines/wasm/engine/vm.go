// Package engine 封装 wazero 运行时
//
// 🎯 **职责**：
//   - 按执行模式（编译器/解释器）创建 wazero.Runtime
//   - 注册宿主模块 "env"（全部宿主函数加插桩注入的 gas / stack_exceeded）
//   - 编译已插桩的字节码、为每次调用创建独立实例
//
// 📋 宿主函数通过 context 取得本次调用的 logic.VMLogic，因此同一个运行时和同一个
// 已编译模块可以被多个协程并发实例化。
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// VM 封装底层运行时生命周期与通用操作
// - 负责创建运行时、编译与实例化模块
// - 为适配器提供统一入口
type VM struct {
	mode    Mode
	runtime wazero.Runtime
	cache   wazero.CompilationCache
}

var (
	ErrInvalidBytecode = errors.New("invalid wasm bytecode")
	ErrInvalidModule   = errors.New("invalid compiled module")
)

// NewVM 创建 VM
// 参数：上下文与引擎配置
// 返回：VM句柄或错误
func NewVM(ctx context.Context, cfg Config) (*VM, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var runtimeConfig wazero.RuntimeConfig
	if cfg.Mode == ModeCompiler {
		runtimeConfig = wazero.NewRuntimeConfigCompiler()
	} else {
		runtimeConfig = wazero.NewRuntimeConfigInterpreter()
	}
	runtimeConfig = runtimeConfig.
		WithCoreFeatures(api.CoreFeaturesV2).
		WithMemoryLimitPages(cfg.MemoryLimitPages).
		WithCloseOnContextDone(true)

	var cache wazero.CompilationCache
	if cfg.CompilationCacheDir != "" {
		c, err := wazero.NewCompilationCacheWithDir(cfg.CompilationCacheDir)
		if err != nil {
			return nil, fmt.Errorf("open compilation cache %s: %w", cfg.CompilationCacheDir, err)
		}
		cache = c
		runtimeConfig = runtimeConfig.WithCompilationCache(cache)
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)
	if err := instantiateHost(ctx, runtime); err != nil {
		_ = runtime.Close(ctx)
		if cache != nil {
			_ = cache.Close(ctx)
		}
		return nil, fmt.Errorf("failed to instantiate host module: %w", err)
	}

	return &VM{mode: cfg.Mode, runtime: runtime, cache: cache}, nil
}

// Mode 执行模式
func (v *VM) Mode() Mode { return v.mode }

// Compile 编译已插桩的字节码
func (v *VM) Compile(ctx context.Context, prepared []byte) (wazero.CompiledModule, error) {
	if len(prepared) == 0 {
		return nil, ErrInvalidBytecode
	}
	compiled, err := v.runtime.CompileModule(ctx, prepared)
	if err != nil {
		return nil, fmt.Errorf("compile module failed: %w", err)
	}
	return compiled, nil
}

// Instantiate 实例化已编译模块
//
// 实例为匿名模块（不占用运行时命名空间），不自动调用 _start 等导出；
// 字节码中的 start 段照常执行，ctx 必须已携带 VMLogic。
func (v *VM) Instantiate(ctx context.Context, compiled wazero.CompiledModule) (api.Module, error) {
	if compiled == nil {
		return nil, ErrInvalidModule
	}
	moduleConfig := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	return v.runtime.InstantiateModule(ctx, compiled, moduleConfig)
}

// Close 关闭运行时，所有已编译模块与实例随之失效
func (v *VM) Close(ctx context.Context) error {
	err := v.runtime.Close(ctx)
	if v.cache != nil {
		if cerr := v.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}
