// Package engines 沙箱后端注册表
//
// 🎯 **职责**：维护 VMKind → 后端工厂的静态映射。各后端在 init 中调用 Register，
// 是否编译进当前二进制由构建标签决定（例如 wazero 编译器模式仅在 amd64/arm64 上注册）。
//
// ⚠️ 请求一个已识别但未注册的后端时返回 BackendUnavailable，绝不回退到其他后端：
// 不同构建的节点若悄悄选择不同后端，就无法保证结果一致。
package engines

import (
	"context"
	"fmt"
	"sync"

	"github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/crypto"
	"github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/vmrunner/pkg/interfaces/vm"
	"github.com/weisyn/vmrunner/pkg/types"
)

// Options 创建后端的通用参数
type Options struct {
	// ModuleCacheSize 进程内已编译模块 LRU 容量，0 使用默认值
	ModuleCacheSize int
	// CompilationCacheDir wazero 机器码缓存目录，为空表示不落盘
	CompilationCacheDir string
	// MemoryLimitPages 运行时线性内存硬上限（页），0 表示 65536
	MemoryLimitPages uint32
	// Hasher keccak256 / ripemd160 宿主函数使用；nil 使用默认哈希服务
	Hasher crypto.HashManager
	Logger log.Logger
}

// Factory 后端工厂
type Factory func(ctx context.Context, opts Options) (vm.Backend, error)

var (
	mu        sync.RWMutex
	factories = make(map[types.VMKind]Factory)
)

// Register 注册后端工厂，重复注册或未知类型直接 panic（只在 init 中调用）
func Register(kind types.VMKind, factory Factory) {
	if !kind.IsKnown() {
		panic(fmt.Sprintf("engines: register unknown kind %d", uint8(kind)))
	}
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[kind]; dup {
		panic(fmt.Sprintf("engines: %s registered twice", kind))
	}
	factories[kind] = factory
}

// IsRegistered 后端是否编译进当前二进制
func IsRegistered(kind types.VMKind) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := factories[kind]
	return ok
}

// Registered 已注册的后端，按 types.AllVMKinds 的顺序
func Registered() []types.VMKind {
	mu.RLock()
	defer mu.RUnlock()
	var out []types.VMKind
	for _, kind := range types.AllVMKinds() {
		if _, ok := factories[kind]; ok {
			out = append(out, kind)
		}
	}
	return out
}

// Unavailable 构造 BackendUnavailable 错误
func Unavailable(kind types.VMKind) error {
	if !kind.IsKnown() {
		return types.NewVMError(types.ClassBackendUnavailable, types.CodeBackendUnavailable, "unknown vm kind %d", uint8(kind))
	}
	return types.NewVMError(types.ClassBackendUnavailable, types.CodeBackendUnavailable, "%s is not compiled into this binary", kind)
}

// New 创建后端实例
func New(ctx context.Context, kind types.VMKind, opts Options) (vm.Backend, error) {
	mu.RLock()
	factory, ok := factories[kind]
	mu.RUnlock()
	if !ok {
		return nil, Unavailable(kind)
	}
	return factory(ctx, opts)
}
