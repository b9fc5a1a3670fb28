package vm

import (
	"fmt"

	"github.com/weisyn/vmrunner/pkg/types"
)

// VMOptions 合约执行配置选项
type VMOptions struct {
	// === 运行器配置 ===
	DefaultKind     types.VMKind `json:"default_kind"`      // 默认后端
	PreloadWorkers  int          `json:"preload_workers"`   // 预编译工作协程数
	ModuleCacheSize int          `json:"module_cache_size"` // 进程内已编译模块 LRU 容量

	// === 缓存配置 ===
	ArtifactCache       string `json:"artifact_cache"`        // memory | badger | none
	CompilationCacheDir string `json:"compilation_cache_dir"` // wazero 原生编译缓存目录

	// === 可观测性 ===
	EnableTracing bool `json:"enable_tracing"`

	// === 执行参数 ===
	VMConfig *types.VMConfig          `json:"vm_config"`
	Fees     *types.RuntimeFeesConfig `json:"fees"`
}

// Config 合约执行配置实现
type Config struct {
	options *VMOptions
}

// New 创建合约执行配置
func New(userConfig interface{}) *Config {
	defaultOptions := createDefaultVMOptions()

	if userConfig != nil {
		applyUserVMConfig(defaultOptions, userConfig)
	}

	return &Config{
		options: defaultOptions,
	}
}

// NewFromOptions 直接以选项构造（测试与 CLI 使用）
func NewFromOptions(options *VMOptions) *Config {
	return &Config{options: options}
}

func createDefaultVMOptions() *VMOptions {
	return &VMOptions{
		DefaultKind:         defaultVMKind(),
		PreloadWorkers:      defaultPreloadWorkers,
		ModuleCacheSize:     defaultModuleCacheSize,
		ArtifactCache:       defaultArtifactCache,
		CompilationCacheDir: defaultCompilationCacheDir,
		EnableTracing:       defaultEnableTracing,
		VMConfig:            types.DefaultVMConfig(),
		Fees:                types.DefaultRuntimeFeesConfig(),
	}
}

// applyUserVMConfig 只覆盖用户配置中实际出现的字段
func applyUserVMConfig(options *VMOptions, userConfig interface{}) {
	vmConfig, ok := userConfig.(*types.UserVMConfig)
	if !ok || vmConfig == nil {
		return
	}

	if vmConfig.DefaultKind != nil {
		if kind, err := types.ParseVMKind(*vmConfig.DefaultKind); err == nil {
			options.DefaultKind = kind
		}
	}
	if vmConfig.PreloadWorkers != nil && *vmConfig.PreloadWorkers > 0 {
		options.PreloadWorkers = *vmConfig.PreloadWorkers
	}
	if vmConfig.ModuleCacheSize != nil && *vmConfig.ModuleCacheSize > 0 {
		options.ModuleCacheSize = *vmConfig.ModuleCacheSize
	}
	if vmConfig.ArtifactCache != nil {
		options.ArtifactCache = *vmConfig.ArtifactCache
	}
	if vmConfig.CompilationCacheDir != nil {
		options.CompilationCacheDir = *vmConfig.CompilationCacheDir
	}
	if vmConfig.EnableTracing != nil {
		options.EnableTracing = *vmConfig.EnableTracing
	}
	if vmConfig.MaxGasBurnt != nil {
		options.VMConfig.Limits.MaxGasBurnt = *vmConfig.MaxGasBurnt
	}
	if vmConfig.MaxStackHeight != nil {
		options.VMConfig.Limits.MaxStackHeight = *vmConfig.MaxStackHeight
	}
	if vmConfig.MaxMemoryPages != nil {
		options.VMConfig.Limits.MaxMemoryPages = *vmConfig.MaxMemoryPages
	}
}

// Validate 检查选项取值
func (c *Config) Validate() error {
	if !c.options.DefaultKind.IsKnown() {
		return fmt.Errorf("vm.default_kind 无效: %d", uint8(c.options.DefaultKind))
	}
	switch c.options.ArtifactCache {
	case ArtifactCacheMemory, ArtifactCacheBadger, ArtifactCacheNone:
	default:
		return fmt.Errorf("vm.artifact_cache 无效: %q（可选 memory|badger|none）", c.options.ArtifactCache)
	}
	if c.options.PreloadWorkers <= 0 {
		return fmt.Errorf("vm.preload_workers 必须为正数")
	}
	if c.options.VMConfig == nil || c.options.Fees == nil {
		return fmt.Errorf("vm 执行参数缺失")
	}
	if c.options.VMConfig.Limits.MaxMemoryPages == 0 || c.options.VMConfig.Limits.MaxMemoryPages > 65536 {
		return fmt.Errorf("vm.max_memory_pages 超出范围: %d", c.options.VMConfig.Limits.MaxMemoryPages)
	}
	return nil
}

// GetOptions 获取完整配置选项
func (c *Config) GetOptions() *VMOptions {
	return c.options
}

// GetDefaultKind 获取默认后端
func (c *Config) GetDefaultKind() types.VMKind {
	return c.options.DefaultKind
}

// GetPreloadWorkers 获取预编译工作协程数
func (c *Config) GetPreloadWorkers() int {
	return c.options.PreloadWorkers
}

// GetModuleCacheSize 获取进程内模块缓存容量
func (c *Config) GetModuleCacheSize() int {
	return c.options.ModuleCacheSize
}

// GetArtifactCache 获取编译产物缓存后端
func (c *Config) GetArtifactCache() string {
	return c.options.ArtifactCache
}

// GetCompilationCacheDir 获取 wazero 编译缓存目录
func (c *Config) GetCompilationCacheDir() string {
	return c.options.CompilationCacheDir
}

// IsTracingEnabled 是否启用追踪
func (c *Config) IsTracingEnabled() bool {
	return c.options.EnableTracing
}

// GetVMConfig 返回执行配置副本，调用方修改不影响共享配置
func (c *Config) GetVMConfig() *types.VMConfig {
	return c.options.VMConfig.Clone()
}

// GetFeesConfig 获取费用配置
func (c *Config) GetFeesConfig() *types.RuntimeFeesConfig {
	return c.options.Fees
}
