package vm

import (
	"runtime"

	"github.com/weisyn/vmrunner/pkg/types"
)

// 合约执行配置默认值
const (
	// defaultPreloadWorkers 预编译工作协程数
	defaultPreloadWorkers = 4

	// defaultModuleCacheSize 进程内已编译模块 LRU 容量（模块数）
	defaultModuleCacheSize = 128

	// defaultArtifactCache 编译产物缓存后端
	defaultArtifactCache = ArtifactCacheMemory

	// defaultCompilationCacheDir 为空表示不启用 wazero 原生编译缓存
	defaultCompilationCacheDir = ""

	// defaultEnableTracing 默认不创建 span
	defaultEnableTracing = false
)

// 编译产物缓存后端
const (
	ArtifactCacheMemory = "memory"
	ArtifactCacheBadger = "badger"
	ArtifactCacheNone   = "none"
)

// defaultVMKind 编译器模式只在 amd64/arm64 上可用，其余平台默认解释器
func defaultVMKind() types.VMKind {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return types.VMKindWazeroCompiler
	default:
		return types.VMKindWazeroInterpreter
	}
}
