// Package config provides configuration provider interfaces.
package config

import (
	logconfig "github.com/weisyn/vmrunner/internal/config/log"
	badgerconfig "github.com/weisyn/vmrunner/internal/config/storage/badger"
	memoryconfig "github.com/weisyn/vmrunner/internal/config/storage/memory"
	vmconfig "github.com/weisyn/vmrunner/internal/config/vm"
)

// Provider 配置提供者接口
//
// 每个 Get* 方法返回已合并默认值和用户配置的完整选项。
type Provider interface {
	// GetAppName 应用名称，未配置时为 "vmrunner"
	GetAppName() string

	// GetDataDir 数据根目录（badger 编译缓存、状态快照默认位于其下）
	GetDataDir() string

	// GetLog 获取日志配置
	GetLog() *logconfig.LogOptions

	// GetBadger 获取BadgerDB存储配置
	GetBadger() *badgerconfig.BadgerOptions

	// GetMemory 获取内存存储配置
	GetMemory() *memoryconfig.MemoryOptions

	// GetVM 获取合约执行配置
	GetVM() *vmconfig.VMOptions
}
