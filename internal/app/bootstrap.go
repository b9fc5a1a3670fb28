package app

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	config "github.com/weisyn/vmrunner/internal/config"
	"github.com/weisyn/vmrunner/internal/core/infrastructure/crypto"
	log "github.com/weisyn/vmrunner/internal/core/infrastructure/log"
	"github.com/weisyn/vmrunner/internal/core/infrastructure/metrics"
	"github.com/weisyn/vmrunner/internal/core/infrastructure/storage"
	"github.com/weisyn/vmrunner/internal/core/vm"
	configiface "github.com/weisyn/vmrunner/pkg/interfaces/config"
)

// ConfigPathEnv 配置文件路径环境变量，优先级低于 WithConfigFile
const ConfigPathEnv = "VMRUNNER_CONFIG_PATH"

// Bootstrap 应用引导程序
type Bootstrap struct {
	opts  *options
	fxApp *fx.App
}

// NewBootstrap 创建引导程序
func NewBootstrap(opts *options) *Bootstrap {
	return &Bootstrap{opts: opts}
}

// resolveAppOptions 确定最终的应用配置
func (b *Bootstrap) resolveAppOptions() (configiface.AppOptions, error) {
	if b.opts.appConfig != nil {
		return b.opts, nil
	}
	path := b.opts.configFilePath
	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	appConfig, err := config.LoadAppConfig(path)
	if err != nil {
		return nil, err
	}
	return config.NewAppOptions(appConfig), nil
}

// SetupInfrastructureLayer 设置基础设施层模块
func (b *Bootstrap) SetupInfrastructureLayer(appOptions configiface.AppOptions) []fx.Option {
	modules := []fx.Option{
		fx.Provide(func() configiface.AppOptions { return appOptions }),
		config.Module(), // 1. 配置(不依赖其他)
		log.Module(),    // 2. 日志(依赖配置)
		crypto.Module(), // 3. 哈希服务
	}
	if b.opts.registerer != nil {
		reg := b.opts.registerer
		modules = append(modules, fx.Provide(func() prometheus.Registerer { return reg }))
	}
	if b.opts.enableMemoryDoctor {
		modules = append(modules, metrics.Module()) // 4. 内存监控(依赖日志)
	}
	return modules
}

// SetupStorageLayer 设置存储层模块
func (b *Bootstrap) SetupStorageLayer() []fx.Option {
	return []fx.Option{
		storage.Module(), // 编译产物缓存介质(依赖配置和日志)
	}
}

// SetupExecutionLayer 设置执行层模块
func (b *Bootstrap) SetupExecutionLayer() []fx.Option {
	return []fx.Option{
		vm.Module(), // 运行器与预编译上下文(依赖存储、哈希和日志)
	}
}

// CreateFxApp 创建并配置fx应用，targets 接收 fx.Populate 的输出
func (b *Bootstrap) CreateFxApp(targets ...interface{}) error {
	appOptions, err := b.resolveAppOptions()
	if err != nil {
		return err
	}

	var modules []fx.Option
	modules = append(modules, b.SetupInfrastructureLayer(appOptions)...)
	modules = append(modules, b.SetupStorageLayer()...)
	modules = append(modules, b.SetupExecutionLayer()...)

	b.fxApp = fx.New(
		fx.Options(modules...),
		fx.Populate(targets...),
		// 禁用fx内部日志
		fx.NopLogger,
	)
	if err := b.fxApp.Err(); err != nil {
		return fmt.Errorf("装配应用失败: %w", err)
	}
	return nil
}

// StartApp 启动应用程序
func (b *Bootstrap) StartApp(ctx context.Context) error {
	if err := b.fxApp.Start(ctx); err != nil {
		return fmt.Errorf("启动应用失败: %w", err)
	}
	return nil
}

// StopApp 停止应用程序
func (b *Bootstrap) StopApp(ctx context.Context) error {
	if err := b.fxApp.Stop(ctx); err != nil {
		return fmt.Errorf("停止应用失败: %w", err)
	}
	return nil
}
