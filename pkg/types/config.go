// Package types provides configuration type definitions.
package types

// AppConfig 应用程序根配置
// 只包含JSON配置文件解析所需的结构，不包含任何内部字段
// 默认值和完整配置结构在 internal/config/*/defaults.go 和 internal/config/*/config.go 中定义
type AppConfig struct {
	AppName *string `json:"app_name,omitempty"` // 应用名称
	DataDir *string `json:"data_dir,omitempty"` // 数据目录路径

	// 日志配置
	Log *UserLogConfig `json:"log,omitempty"`

	// 存储配置（编译产物缓存与状态快照）
	Storage *UserStorageConfig `json:"storage,omitempty"`

	// 合约执行配置
	VM *UserVMConfig `json:"vm,omitempty"`
}

// UserStorageConfig 用户存储配置
type UserStorageConfig struct {
	DataRoot *string `json:"data_root,omitempty"` // 数据根目录

	// MemoryCacheMB 内存编译缓存容量(MB)
	MemoryCacheMB *int `json:"memory_cache_mb,omitempty"`
}

// UserLogConfig 用户日志配置
// 只暴露最常用的两个字段，其余由 internal/config/log 的默认值决定
type UserLogConfig struct {
	Level    *string `json:"level,omitempty"`     // 日志级别
	FilePath *string `json:"file_path,omitempty"` // 日志文件路径
}

// UserVMConfig 用户合约执行配置
type UserVMConfig struct {
	// DefaultKind 默认后端：wazero-compiler | wazero-interpreter
	DefaultKind *string `json:"default_kind,omitempty"`

	// PreloadWorkers 预编译工作协程数
	PreloadWorkers *int `json:"preload_workers,omitempty"`

	// ModuleCacheSize 进程内已编译模块 LRU 容量
	ModuleCacheSize *int `json:"module_cache_size,omitempty"`

	// ArtifactCache 编译产物缓存后端：memory | badger | none
	ArtifactCache *string `json:"artifact_cache,omitempty"`

	// CompilationCacheDir wazero 原生编译缓存目录（为空则不启用）
	CompilationCacheDir *string `json:"compilation_cache_dir,omitempty"`

	// EnableTracing 是否为运行器创建 OpenTelemetry span
	EnableTracing *bool `json:"enable_tracing,omitempty"`

	// MaxGasBurnt 覆盖单次调用燃料上限
	MaxGasBurnt *uint64 `json:"max_gas_burnt,omitempty"`

	// MaxStackHeight 覆盖调用深度上限
	MaxStackHeight *uint32 `json:"max_stack_height,omitempty"`

	// MaxMemoryPages 覆盖线性内存页数上限
	MaxMemoryPages *uint32 `json:"max_memory_pages,omitempty"`
}

func BoolPtr(v bool) *bool {
	return &v
}

func IntPtr(v int) *int {
	return &v
}

func StringPtr(v string) *string {
	return &v
}

func UInt64Ptr(v uint64) *uint64 {
	return &v
}

func UInt32Ptr(v uint32) *uint32 {
	return &v
}
