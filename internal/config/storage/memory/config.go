package memory

import (
	"time"

	configtypes "github.com/weisyn/vmrunner/pkg/types"
)

// MemoryOptions 内存存储配置选项
type MemoryOptions struct {
	MaxMemoryMB     int           `json:"max_memory_mb"`  // 容量上限(MB)，0 表示不设硬上限
	Shards          int           `json:"shards"`         // 分片数（必须为2的幂）
	LifeWindow      time.Duration `json:"life_window"`    // 条目生命周期
	CleanWindow     time.Duration `json:"clean_window"`   // 过期清理间隔
	MaxEntrySize    int           `json:"max_entry_size"` // 预估单条目大小（用于预分配）
	MaxEntriesInWin int           `json:"max_entries"`    // 生命周期内预估条目数
}

// Config 内存存储配置实现
type Config struct {
	options *MemoryOptions
}

// New 创建内存存储配置实现
func New(userConfig interface{}) *Config {
	opts := createDefaultMemoryOptions()
	if sc, ok := userConfig.(*configtypes.UserStorageConfig); ok && sc != nil {
		if sc.MemoryCacheMB != nil {
			opts.MaxMemoryMB = *sc.MemoryCacheMB
		}
	}
	return &Config{options: opts}
}

// NewFromOptions 从MemoryOptions创建配置实现
func NewFromOptions(options *MemoryOptions) *Config {
	return &Config{options: options}
}

func createDefaultMemoryOptions() *MemoryOptions {
	return &MemoryOptions{
		MaxMemoryMB:     defaultMaxMemoryMB,
		Shards:          defaultShards,
		LifeWindow:      defaultLifeWindow,
		CleanWindow:     defaultCleanWindow,
		MaxEntrySize:    defaultMaxEntrySize,
		MaxEntriesInWin: defaultMaxEntries,
	}
}

// GetOptions 获取完整的内存存储配置选项
func (c *Config) GetOptions() *MemoryOptions {
	return c.options
}

// GetMaxMemoryMB 容量上限(MB)
func (c *Config) GetMaxMemoryMB() int {
	return c.options.MaxMemoryMB
}

// GetShards 分片数
func (c *Config) GetShards() int {
	return c.options.Shards
}

// GetLifeWindow 条目生命周期
func (c *Config) GetLifeWindow() time.Duration {
	return c.options.LifeWindow
}

// GetCleanWindow 过期清理间隔
func (c *Config) GetCleanWindow() time.Duration {
	return c.options.CleanWindow
}

// GetMaxEntrySize 预估单条目大小
func (c *Config) GetMaxEntrySize() int {
	return c.options.MaxEntrySize
}

// GetMaxEntriesInWindow 生命周期内预估条目数
func (c *Config) GetMaxEntriesInWindow() int {
	return c.options.MaxEntriesInWin
}
