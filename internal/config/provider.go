package config

import (
	"path/filepath"

	"github.com/weisyn/vmrunner/internal/config/log"
	"github.com/weisyn/vmrunner/internal/config/storage/badger"
	"github.com/weisyn/vmrunner/internal/config/storage/memory"
	"github.com/weisyn/vmrunner/internal/config/vm"
	"github.com/weisyn/vmrunner/pkg/interfaces/config"
	"github.com/weisyn/vmrunner/pkg/types"
	"github.com/weisyn/vmrunner/pkg/utils"
)

const (
	defaultAppName = "vmrunner"
	defaultDataDir = "./data"
)

// Provider 实现配置提供者接口
type Provider struct {
	appConfig *types.AppConfig
}

// NewProvider 创建配置提供者
func NewProvider(appConfig *types.AppConfig) config.Provider {
	if appConfig == nil {
		appConfig = &types.AppConfig{}
	}
	return &Provider{
		appConfig: appConfig,
	}
}

// GetAppName 获取应用名称
func (p *Provider) GetAppName() string {
	if p.appConfig.AppName != nil && *p.appConfig.AppName != "" {
		return *p.appConfig.AppName
	}
	return defaultAppName
}

// GetDataDir 获取数据根目录
//
// 优先级：storage.data_root > data_dir > ./data（相对项目根目录解析）
func (p *Provider) GetDataDir() string {
	if s := p.appConfig.Storage; s != nil && s.DataRoot != nil && *s.DataRoot != "" {
		return utils.ResolveDataPath(*s.DataRoot)
	}
	if p.appConfig.DataDir != nil && *p.appConfig.DataDir != "" {
		return utils.ResolveDataPath(*p.appConfig.DataDir)
	}
	return utils.ResolveDataPath(defaultDataDir)
}

// GetLog 获取日志配置
func (p *Provider) GetLog() *log.LogOptions {
	// log.New会处理默认值应用和用户配置覆盖
	return log.New(p.appConfig.Log).GetOptions()
}

// GetBadger 获取BadgerDB存储配置
func (p *Provider) GetBadger() *badger.BadgerOptions {
	options := badger.New(p.appConfig.Storage).GetOptions()
	// 只配置了 data_dir 时，数据库放在 {data_dir}/badger
	hasDataRoot := p.appConfig.Storage != nil && p.appConfig.Storage.DataRoot != nil
	if !hasDataRoot && p.appConfig.DataDir != nil && *p.appConfig.DataDir != "" {
		options.Path = filepath.Join(p.GetDataDir(), "badger")
	}
	return options
}

// GetMemory 获取内存存储配置
func (p *Provider) GetMemory() *memory.MemoryOptions {
	return memory.New(p.appConfig.Storage).GetOptions()
}

// GetVM 获取合约执行配置
func (p *Provider) GetVM() *vm.VMOptions {
	options := vm.New(p.appConfig.VM).GetOptions()
	if options.CompilationCacheDir != "" {
		options.CompilationCacheDir = utils.ResolveDataPath(options.CompilationCacheDir)
	}
	return options
}
