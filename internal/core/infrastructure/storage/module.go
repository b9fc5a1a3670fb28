// Package storage 提供存储管理功能
package storage

import (
	"context"
	"fmt"
	"strings"

	badgerconfig "github.com/weisyn/vmrunner/internal/config/storage/badger"
	memoryconfig "github.com/weisyn/vmrunner/internal/config/storage/memory"
	vmconfig "github.com/weisyn/vmrunner/internal/config/vm"
	corelog "github.com/weisyn/vmrunner/internal/core/infrastructure/log"
	"github.com/weisyn/vmrunner/internal/core/infrastructure/storage/badger"
	"github.com/weisyn/vmrunner/internal/core/infrastructure/storage/memory"
	"github.com/weisyn/vmrunner/pkg/interfaces/config"
	"github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/log"
	storageInterface "github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/storage"
	"go.uber.org/fx"
)

// ModuleParams 定义存储模块的依赖参数
type ModuleParams struct {
	fx.In

	Provider config.Provider
	Logger   log.Logger `optional:"true"`
}

// ModuleOutput 定义存储模块的输出结构
//
// 两种存储都是可选的：编译产物缓存后端为 none 时都不创建，
// 为 memory 时只创建 MemoryStore。BadgerStore 同时服务 badger 产物缓存和状态快照。
type ModuleOutput struct {
	fx.Out

	BadgerStore storageInterface.BadgerStore
	MemoryStore storageInterface.MemoryStore
}

// Module 返回存储模块
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(ProvideServices),
	)
}

// ProvideServices 根据配置初始化存储引擎，并注册关闭钩子
func ProvideServices(lc fx.Lifecycle, params ModuleParams) (ModuleOutput, error) {
	logger := corelog.NewModuleLogger(params.Logger, corelog.ModuleStorage)
	out := ModuleOutput{}

	switch params.Provider.GetVM().ArtifactCache {
	case vmconfig.ArtifactCacheMemory:
		store, err := memory.New(memoryconfig.NewFromOptions(params.Provider.GetMemory()), logger)
		if err != nil {
			return ModuleOutput{}, fmt.Errorf("创建内存存储失败: %w", err)
		}
		out.MemoryStore = store
	case vmconfig.ArtifactCacheBadger:
		store, err := badger.New(badgerconfig.NewFromOptions(params.Provider.GetBadger()), logger)
		if err != nil {
			return ModuleOutput{}, fmt.Errorf("创建BadgerDB存储失败: %w", err)
		}
		out.BadgerStore = store
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("正在关闭存储服务...")
			if out.MemoryStore != nil {
				if err := out.MemoryStore.Close(); err != nil {
					// 继续关闭其他存储
					logger.Errorf("关闭内存存储失败: %v", err)
				}
			}
			if out.BadgerStore != nil {
				if err := out.BadgerStore.Close(); err != nil {
					if strings.Contains(err.Error(), "LOCK: no such file or directory") {
						logger.Warn("BadgerDB LOCK文件已不存在")
					} else {
						logger.Errorf("关闭BadgerDB存储失败: %v", err)
						return err
					}
				}
			}
			logger.Info("存储服务已安全关闭")
			return nil
		},
	})

	return out, nil
}
