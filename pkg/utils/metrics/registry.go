// Package metrics 提供进程级的内存上报器注册表
package metrics

import (
	"sync"

	"github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/metrics"
)

var (
	mu        sync.RWMutex
	reporters = make(map[string]metrics.MemoryReporter)
)

// RegisterMemoryReporter 注册内存上报器；同名上报器后注册者覆盖先注册者
func RegisterMemoryReporter(r metrics.MemoryReporter) {
	if r == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	reporters[r.ModuleName()] = r
}

// UnregisterMemoryReporter 注销上报器（仅当注册的正是 r 时）
func UnregisterMemoryReporter(r metrics.MemoryReporter) {
	if r == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if cur, ok := reporters[r.ModuleName()]; ok && cur == r {
		delete(reporters, r.ModuleName())
	}
}

// CollectAllModuleStats 收集所有已注册组件的统计
//
// 单个上报器 panic 不影响其他组件。
func CollectAllModuleStats() []metrics.ModuleMemoryStats {
	mu.RLock()
	defer mu.RUnlock()

	stats := make([]metrics.ModuleMemoryStats, 0, len(reporters))
	for _, r := range reporters {
		func() {
			defer func() {
				_ = recover()
			}()
			stats = append(stats, r.CollectMemoryStats())
		}()
	}
	return stats
}

// GetRegisteredReportersCount 返回已注册的上报器数量
func GetRegisteredReportersCount() int {
	mu.RLock()
	defer mu.RUnlock()
	return len(reporters)
}

// ClearAllMemoryReporters 清空所有已注册的上报器（主要用于测试）
func ClearAllMemoryReporters() {
	mu.Lock()
	defer mu.Unlock()
	reporters = make(map[string]metrics.MemoryReporter)
}

// ForEachReporter 遍历已注册的上报器
//
// 回调在读锁外执行，可以安全地调用上报器上会加锁的方法。
func ForEachReporter(fn func(metrics.MemoryReporter)) {
	mu.RLock()
	list := make([]metrics.MemoryReporter, 0, len(reporters))
	for _, r := range reporters {
		list = append(list, r)
	}
	mu.RUnlock()

	for _, r := range list {
		fn(r)
	}
}
