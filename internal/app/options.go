package app

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/weisyn/vmrunner/pkg/interfaces/config"
	"github.com/weisyn/vmrunner/pkg/types"
)

// Option 应用程序选项函数类型
type Option func(*options)

// options 应用程序选项
// 实现config.AppOptions接口
type options struct {
	// 配置文件路径
	configFilePath string

	// 直接传入的配置（优先级高于configFilePath）
	appConfig *types.AppConfig

	// Prometheus 注册表，nil 使用 prometheus.DefaultRegisterer
	registerer prometheus.Registerer

	// MemoryDoctor 开关（默认启用）
	enableMemoryDoctor bool
}

// 编译时校验options是否实现了config.AppOptions接口
var _ config.AppOptions = (*options)(nil)

// WithConfigFile 设置配置文件路径
func WithConfigFile(configPath string) Option {
	return func(o *options) {
		o.configFilePath = configPath
	}
}

// WithAppConfig 直接使用已构造的配置
func WithAppConfig(appConfig *types.AppConfig) Option {
	return func(o *options) {
		o.appConfig = appConfig
	}
}

// WithRegisterer 指定 Prometheus 注册表
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithoutMemoryDoctor 禁用内存监控（一次性命令行调用使用）
func WithoutMemoryDoctor() Option {
	return func(o *options) {
		o.enableMemoryDoctor = false
	}
}

// newOptions 创建选项
func newOptions(opts ...Option) *options {
	o := &options{enableMemoryDoctor: true}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GetAppConfig 返回应用程序配置
func (o *options) GetAppConfig() *types.AppConfig {
	return o.appConfig
}
