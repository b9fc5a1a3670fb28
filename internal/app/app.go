// Package app 装配合约执行核心并管理其生命周期
//
// 📋 **分层**：
//  1. 基础设施：配置、日志、哈希、内存监控
//  2. 存储：编译产物缓存介质（memory / badger）
//  3. 执行：运行器、产物缓存、预编译上下文
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"

	"github.com/weisyn/vmrunner/internal/core/vm/preload"
	"github.com/weisyn/vmrunner/internal/core/vm/runner"
	"github.com/weisyn/vmrunner/pkg/interfaces/config"
	"github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/log"
	storageInterface "github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/storage"
	vmiface "github.com/weisyn/vmrunner/pkg/interfaces/vm"
)

// 启停超时
const (
	StartTimeout = 30 * time.Second
	StopTimeout  = 60 * time.Second
)

// components fx.Populate 的目标
type components struct {
	fx.In

	Provider    config.Provider
	Logger      log.Logger
	Runner      *runner.Runner
	CallContext *preload.CallContext
	Cache       vmiface.CompiledContractCache
	Badger      storageInterface.BadgerStore `optional:"true"`
}

// App 已启动的执行核心
type App struct {
	bootstrap *Bootstrap
	c         components
}

// Start 装配并启动应用
func Start(ctx context.Context, appOptions ...Option) (*App, error) {
	b := NewBootstrap(newOptions(appOptions...))
	a := &App{bootstrap: b}
	if err := b.CreateFxApp(&a.c); err != nil {
		return nil, err
	}

	startCtx, cancel := context.WithTimeout(ctx, StartTimeout)
	defer cancel()
	if err := b.StartApp(startCtx); err != nil {
		return nil, err
	}
	return a, nil
}

// Runner 合约执行入口
func (a *App) Runner() *runner.Runner { return a.c.Runner }

// CallContext 进程级预编译上下文
func (a *App) CallContext() *preload.CallContext { return a.c.CallContext }

// Cache 编译产物缓存，vm.artifact_cache=none 时为 nil
func (a *App) Cache() vmiface.CompiledContractCache { return a.c.Cache }

// BadgerStore 持久化存储，未启用 badger 时为 nil
func (a *App) BadgerStore() storageInterface.BadgerStore { return a.c.Badger }

// Config 合并了默认值的配置
func (a *App) Config() config.Provider { return a.c.Provider }

// Logger 根日志记录器
func (a *App) Logger() log.Logger { return a.c.Logger }

// Stop 停止应用，按与启动相反的顺序执行关闭钩子
func (a *App) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), StopTimeout)
	defer cancel()
	return a.bootstrap.StopApp(ctx)
}

// Wait 阻塞直到收到 SIGINT / SIGTERM
func (a *App) Wait() os.Signal {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	return <-signals
}
