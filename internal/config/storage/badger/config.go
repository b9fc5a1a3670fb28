package badger

import (
	"path/filepath"

	configtypes "github.com/weisyn/vmrunner/pkg/types"
	"github.com/weisyn/vmrunner/pkg/utils"
)

// BadgerOptions BadgerDB存储配置选项
type BadgerOptions struct {
	Path       string `json:"path"`        // 数据库存储路径
	InMemory   bool   `json:"in_memory"`   // 纯内存模式（测试、一次性工具）
	SyncWrites bool   `json:"sync_writes"` // 是否同步写入

	MemTableSize     int64 `json:"mem_table_size"`      // 内存表大小
	ValueLogFileSize int64 `json:"value_log_file_size"` // value log 单文件大小
	BlockCacheSize   int64 `json:"block_cache_size"`    // 块缓存大小
	IndexCacheSize   int64 `json:"index_cache_size"`    // 索引缓存大小
}

// Config BadgerDB配置实现
type Config struct {
	options *BadgerOptions
}

// New 创建BadgerDB配置实现
func New(userConfig interface{}) *Config {
	defaultOptions := createDefaultBadgerOptions()
	if userConfig != nil {
		applyUserConfig(defaultOptions, userConfig)
	}
	return &Config{
		options: defaultOptions,
	}
}

// NewFromOptions 从BadgerOptions创建配置实现
func NewFromOptions(options *BadgerOptions) *Config {
	return &Config{
		options: options,
	}
}

// NewInMemory 纯内存配置
func NewInMemory() *Config {
	opts := createDefaultBadgerOptions()
	opts.Path = ""
	opts.InMemory = true
	opts.SyncWrites = false
	return &Config{options: opts}
}

func createDefaultBadgerOptions() *BadgerOptions {
	return &BadgerOptions{
		Path:             getDefaultPath(),
		SyncWrites:       defaultSyncWrites,
		MemTableSize:     defaultMemTableSize,
		ValueLogFileSize: defaultValueLogFileSize,
		BlockCacheSize:   defaultBlockCacheSize,
		IndexCacheSize:   defaultIndexCacheSize,
	}
}

// applyUserConfig 应用用户配置覆盖默认值
//
// 配置了 storage.data_root 时使用 {data_root}/badger/
func applyUserConfig(options *BadgerOptions, userConfig interface{}) {
	if storageConfig, ok := userConfig.(*configtypes.UserStorageConfig); ok && storageConfig != nil {
		if storageConfig.DataRoot != nil {
			options.Path = utils.ResolveDataPath(filepath.Join(*storageConfig.DataRoot, "badger"))
		}
	}
}

// GetOptions 获取完整的BadgerDB配置选项
func (c *Config) GetOptions() *BadgerOptions {
	return c.options
}

// GetPath 获取数据库路径
func (c *Config) GetPath() string {
	return c.options.Path
}

// IsInMemory 是否为纯内存模式
func (c *Config) IsInMemory() bool {
	return c.options.InMemory
}

// IsSyncWritesEnabled 是否启用同步写入
func (c *Config) IsSyncWritesEnabled() bool {
	return c.options.SyncWrites
}

// GetMemTableSize 获取内存表大小
func (c *Config) GetMemTableSize() int64 {
	return c.options.MemTableSize
}

// GetValueLogFileSize 获取 value log 单文件大小
func (c *Config) GetValueLogFileSize() int64 {
	return c.options.ValueLogFileSize
}

// GetBlockCacheSize 获取块缓存大小
func (c *Config) GetBlockCacheSize() int64 {
	return c.options.BlockCacheSize
}

// GetIndexCacheSize 获取索引缓存大小
func (c *Config) GetIndexCacheSize() int64 {
	return c.options.IndexCacheSize
}
