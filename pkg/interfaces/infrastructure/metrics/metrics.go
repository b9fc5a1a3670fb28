// Package metrics 定义组件自报内存/缓存状态的接口
//
// 编译模块 LRU、编译产物内存缓存和预编译调度器实现 MemoryReporter，
// 通过 pkg/utils/metrics.RegisterMemoryReporter 注册后，由 Prometheus 采集器统一导出。
package metrics

// ModuleMemoryStats 组件"自己认账"的逻辑内存状态
type ModuleMemoryStats struct {
	Module      string `json:"module"`       // 组件名称：vm.engine.lru / vm.preload / vm.cache.memory ...
	Objects     int64  `json:"objects"`      // 主要对象数
	ApproxBytes int64  `json:"approx_bytes"` // 估算字节数（不追求精确）
	CacheItems  int64  `json:"cache_items"`  // 缓存条目
	QueueLength int64  `json:"queue_length"` // 排队长度
}

// MemoryReporter 内存上报接口
type MemoryReporter interface {
	// ModuleName 返回组件名称
	ModuleName() string

	// CollectMemoryStats 收集当前统计
	CollectMemoryStats() ModuleMemoryStats
}

// CacheShrinker 可在内存压力下收缩的缓存
type CacheShrinker interface {
	// ShrinkCache 把缓存条目数收缩到不超过 target
	ShrinkCache(target int)
}
