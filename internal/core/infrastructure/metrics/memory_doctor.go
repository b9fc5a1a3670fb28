// Package metrics 内存监控组件
//
// MemoryDoctor 周期性采样进程内存与各组件上报的缓存状态，
// 内存持续增长时收缩实现了 CacheShrinker 的缓存（已编译模块 LRU）。
package metrics

import (
	"bufio"
	"context"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pbnjay/memory"
	"go.uber.org/zap"

	metricsiface "github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/metrics"
	metricsutil "github.com/weisyn/vmrunner/pkg/utils/metrics"
)

// MemoryDoctorConfig MemoryDoctor 配置
type MemoryDoctorConfig struct {
	// SampleInterval 采样间隔
	SampleInterval time.Duration

	// WindowSize 保留最近 N 次样本用于趋势判定
	WindowSize int

	// HeapGrowthSoftLimitBytes 窗口内允许的最大增长（bytes）
	HeapGrowthSoftLimitBytes int64

	// ShrinkFactor 趋势异常时缓存收缩到当前条目数的比例
	ShrinkFactor float64

	// MinShrinkItems 条目数低于此值的缓存不收缩
	MinShrinkItems int64

	// GoroutineWarnThreshold Goroutine 数量告警阈值
	GoroutineWarnThreshold int
}

const (
	minGrowthLimit = 64 * 1024 * 1024  // 64MB
	maxGrowthLimit = 256 * 1024 * 1024 // 256MB
)

// growthLimitFor 按物理内存的 1/16 计算增长阈值，限制在 [64MB, 256MB]；
// 取不到物理内存时使用上限
func growthLimitFor(totalBytes uint64) int64 {
	if totalBytes == 0 {
		return maxGrowthLimit
	}
	limit := int64(totalBytes / 16)
	if limit < minGrowthLimit {
		return minGrowthLimit
	}
	if limit > maxGrowthLimit {
		return maxGrowthLimit
	}
	return limit
}

// DefaultMemoryDoctorConfig 返回默认配置
func DefaultMemoryDoctorConfig() MemoryDoctorConfig {
	return MemoryDoctorConfig{
		SampleInterval:           10 * time.Second,
		WindowSize:               30,
		HeapGrowthSoftLimitBytes: growthLimitFor(memory.TotalMemory()),
		ShrinkFactor:             0.8,
		MinShrinkItems:           16,
		GoroutineWarnThreshold:   5000,
	}
}

// HeapSample 内存采样数据
//
// ⚠️ BadgerDB 的 value log 通过 mmap 映射，HeapSys/Sys 可能远大于实际占用；
// 判断内存压力优先使用 RSS，取不到 RSS 的平台退回 HeapInuse。
type HeapSample struct {
	Time         time.Time                        `json:"time"`
	HeapAlloc    uint64                           `json:"heap_alloc"`
	HeapInuse    uint64                           `json:"heap_inuse"`
	Sys          uint64                           `json:"sys"`
	RSSBytes     uint64                           `json:"rss_bytes"`
	NumGC        uint32                           `json:"num_gc"`
	NumGoroutine int                              `json:"num_goroutine"`
	Modules      []metricsiface.ModuleMemoryStats `json:"modules"`
}

// pressure 用于趋势判定的内存量
func (s HeapSample) pressure() uint64 {
	if s.RSSBytes > 0 {
		return s.RSSBytes
	}
	return s.HeapInuse
}

// BadTrend 异常趋势
type BadTrend struct {
	Reason      string
	GrowthBytes int64
}

// MemoryDoctor 内存监控组件
type MemoryDoctor struct {
	cfg     MemoryDoctorConfig
	logger  *zap.Logger
	history []HeapSample
	mu      sync.RWMutex

	// sample 采集一次样本，测试中可替换
	sample func() HeapSample
}

// NewMemoryDoctor 创建 MemoryDoctor，零值配置项使用默认值
func NewMemoryDoctor(cfg MemoryDoctorConfig, logger *zap.Logger) *MemoryDoctor {
	def := DefaultMemoryDoctorConfig()
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = def.SampleInterval
	}
	if cfg.WindowSize <= 1 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.HeapGrowthSoftLimitBytes <= 0 {
		cfg.HeapGrowthSoftLimitBytes = def.HeapGrowthSoftLimitBytes
	}
	if cfg.ShrinkFactor <= 0 || cfg.ShrinkFactor >= 1 {
		cfg.ShrinkFactor = def.ShrinkFactor
	}
	if cfg.GoroutineWarnThreshold <= 0 {
		cfg.GoroutineWarnThreshold = def.GoroutineWarnThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryDoctor{
		cfg:     cfg,
		logger:  logger,
		history: make([]HeapSample, 0, cfg.WindowSize),
		sample:  readSample,
	}
}

func readSample() HeapSample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return HeapSample{
		Time:         time.Now(),
		HeapAlloc:    ms.HeapAlloc,
		HeapInuse:    ms.HeapInuse,
		Sys:          ms.Sys,
		RSSBytes:     getRSSBytes(),
		NumGC:        ms.NumGC,
		NumGoroutine: runtime.NumGoroutine(),
		Modules:      metricsutil.CollectAllModuleStats(),
	}
}

// getRSSBytes 进程物理内存；macOS 上是峰值 RSS，其他平台返回 0
func getRSSBytes() uint64 {
	switch runtime.GOOS {
	case "darwin":
		var rusage syscall.Rusage
		if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err != nil {
			return 0
		}
		return uint64(rusage.Maxrss)
	case "linux":
		return getRSSBytesFromProc()
	default:
		return 0
	}
}

// getRSSBytesFromProc 从 /proc/self/status 读取 VmRSS
func getRSSBytesFromProc() uint64 {
	file, err := os.Open("/proc/self/status")
	if err != nil {
		return 0
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		// VmRSS:    12345 kB
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return kb * 1024
	}
	return 0
}

// Start 采样循环，ctx 结束时返回
func (d *MemoryDoctor) Start(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.SampleInterval)
	defer ticker.Stop()

	d.logger.Info("MemoryDoctor 启动",
		zap.Duration("sample_interval", d.cfg.SampleInterval),
		zap.Int("window_size", d.cfg.WindowSize),
		zap.Int64("growth_limit_bytes", d.cfg.HeapGrowthSoftLimitBytes),
		zap.Uint64("system_total_bytes", memory.TotalMemory()))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("MemoryDoctor 停止")
			return
		case <-ticker.C:
			d.SampleOnce()
		}
	}
}

// SampleOnce 执行一次采样
func (d *MemoryDoctor) SampleOnce() {
	s := d.sample()

	d.mu.Lock()
	d.history = append(d.history, s)
	if len(d.history) > d.cfg.WindowSize {
		d.history = d.history[len(d.history)-d.cfg.WindowSize:]
	}
	bad := d.detectBadTrendLocked()
	d.mu.Unlock()

	d.logger.Debug("memory_sample",
		zap.Uint64("rss_bytes", s.RSSBytes),
		zap.Uint64("heap_alloc_bytes", s.HeapAlloc),
		zap.Uint64("heap_inuse_bytes", s.HeapInuse),
		zap.Uint32("gc", s.NumGC),
		zap.Int("goroutines", s.NumGoroutine),
		zap.Any("modules", s.Modules))

	if s.NumGoroutine >= d.cfg.GoroutineWarnThreshold {
		d.logger.Warn("goroutine_count_high",
			zap.Int("count", s.NumGoroutine),
			zap.Int("threshold", d.cfg.GoroutineWarnThreshold))
	}

	if bad == nil {
		return
	}
	d.logger.Warn("内存趋势警告",
		zap.String("reason", bad.Reason),
		zap.Int64("growth_bytes", bad.GrowthBytes),
		zap.Any("top_modules", topModules(s.Modules, 3)))
	d.applyCacheShrink(s)

	// 收缩后重新建立基线，避免下一次采样立即再次触发
	d.mu.Lock()
	d.history = d.history[len(d.history)-1:]
	d.mu.Unlock()
}

// detectBadTrendLocked 窗口内内存增长超过阈值时返回异常趋势
func (d *MemoryDoctor) detectBadTrendLocked() *BadTrend {
	if len(d.history) < 2 {
		return nil
	}
	first := d.history[0]
	last := d.history[len(d.history)-1]

	growth := int64(last.pressure()) - int64(first.pressure())
	if growth > d.cfg.HeapGrowthSoftLimitBytes {
		return &BadTrend{Reason: "内存增长超过阈值", GrowthBytes: growth}
	}
	return nil
}

// applyCacheShrink 按比例收缩条目较多的缓存
func (d *MemoryDoctor) applyCacheShrink(s HeapSample) {
	byModule := make(map[string]metricsiface.ModuleMemoryStats, len(s.Modules))
	for _, m := range s.Modules {
		byModule[m.Module] = m
	}

	metricsutil.ForEachReporter(func(r metricsiface.MemoryReporter) {
		shrinker, ok := r.(metricsiface.CacheShrinker)
		if !ok {
			return
		}
		stat, ok := byModule[r.ModuleName()]
		if !ok || stat.CacheItems < d.cfg.MinShrinkItems {
			return
		}
		target := int(float64(stat.CacheItems) * d.cfg.ShrinkFactor)
		if target <= 0 {
			target = 1
		}
		d.logger.Info("收缩缓存",
			zap.String("module", stat.Module),
			zap.Int64("items", stat.CacheItems),
			zap.Int("target", target))
		shrinker.ShrinkCache(target)
	})
}

// GetCurrentStats 最新样本；尚未采样时立即采一次（不计入历史）
func (d *MemoryDoctor) GetCurrentStats() HeapSample {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.history) == 0 {
		return d.sample()
	}
	return d.history[len(d.history)-1]
}

// GetHistory 历史样本副本（按时间顺序）
func (d *MemoryDoctor) GetHistory() []HeapSample {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]HeapSample, len(d.history))
	copy(out, d.history)
	return out
}

func topModules(modules []metricsiface.ModuleMemoryStats, n int) []metricsiface.ModuleMemoryStats {
	sorted := make([]metricsiface.ModuleMemoryStats, len(modules))
	copy(sorted, modules)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ApproxBytes > sorted[j].ApproxBytes
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
