// Package metrics 合约执行核心的 Prometheus 指标
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	metricsutil "github.com/weisyn/vmrunner/pkg/utils/metrics"
)

const namespace = "vmrunner"

// 缓存层级标签
const (
	LayerModule   = "module"   // 进程内已编译模块
	LayerArtifact = "artifact" // 编译产物缓存
)

// 编译阶段标签
const (
	PhasePrepare = "prepare" // 校验与插桩
	PhaseCompile = "compile" // 后端编译
)

// 缓存错误操作标签
const (
	OpGet    = "get"
	OpPut    = "put"
	OpDecode = "decode"
	OpEncode = "encode"
)

// Metrics 执行核心指标
//
// 📋 **指标清单**：
//   - vmrunner_runs_total{kind,result}: 方法调用次数，result 为 ok 或错误大类
//   - vmrunner_burnt_gas{kind}: 每次调用燃烧的燃料
//   - vmrunner_compile_seconds{kind,phase}: prepare 与 compile 分阶段耗时
//   - vmrunner_cache_hits_total / misses_total{layer}
//   - vmrunner_cache_errors_total{op}
//   - vmrunner_preload_jobs_total{result}, vmrunner_preload_pending
type Metrics struct {
	Runs           *prometheus.CounterVec
	BurntGas       *prometheus.HistogramVec
	CompileSeconds *prometheus.HistogramVec
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CacheErrors    *prometheus.CounterVec
	PreloadJobs    *prometheus.CounterVec
	PreloadPending prometheus.Gauge
}

// New 创建指标并注册到 reg；reg 为 nil 时只创建不注册
//
// 同一注册表重复注册时沿用已注册的采集器。
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Contract method invocations by backend and result",
		}, []string{"kind", "result"}),
		BurntGas: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "burnt_gas",
			Help:      "Gas burnt per invocation",
			Buckets:   prometheus.ExponentialBuckets(1e9, 4, 12), // 1 Ggas ~ 4 Pgas
		}, []string{"kind"}),
		CompileSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compile_seconds",
			Help:      "Time spent preparing and compiling contracts by phase",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms ~ 8s
		}, []string{"kind", "phase"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Compiled contract cache hits by layer",
		}, []string{"layer"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Compiled contract cache misses by layer",
		}, []string{"layer"}),
		CacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Compiled contract cache failures by operation",
		}, []string{"op"}),
		PreloadJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "preload",
			Name:      "jobs_total",
			Help:      "Precompilation jobs by result",
		}, []string{"result"}),
		PreloadPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "preload",
			Name:      "pending",
			Help:      "Precompilation jobs queued or running",
		}),
	}
	if reg == nil {
		return m
	}
	m.Runs = register(reg, m.Runs)
	m.BurntGas = register(reg, m.BurntGas)
	m.CompileSeconds = register(reg, m.CompileSeconds)
	m.CacheHits = register(reg, m.CacheHits)
	m.CacheMisses = register(reg, m.CacheMisses)
	m.CacheErrors = register(reg, m.CacheErrors)
	m.PreloadJobs = register(reg, m.PreloadJobs)
	m.PreloadPending = register(reg, m.PreloadPending)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveRun 记录一次调用
func (m *Metrics) ObserveRun(kind, result string, burnt uint64) {
	m.Runs.WithLabelValues(kind, result).Inc()
	m.BurntGas.WithLabelValues(kind).Observe(float64(burnt))
}

// ObserveCompile 记录一个编译阶段的耗时，phase 取 PhasePrepare 或 PhaseCompile
func (m *Metrics) ObserveCompile(kind, phase string, d time.Duration) {
	m.CompileSeconds.WithLabelValues(kind, phase).Observe(d.Seconds())
}

// CacheHit 缓存命中
func (m *Metrics) CacheHit(layer string) { m.CacheHits.WithLabelValues(layer).Inc() }

// CacheMiss 缓存未命中
func (m *Metrics) CacheMiss(layer string) { m.CacheMisses.WithLabelValues(layer).Inc() }

// CacheError 缓存读写失败
func (m *Metrics) CacheError(op string) { m.CacheErrors.WithLabelValues(op).Inc() }

// ==================== 组件内存上报 ====================

type reporterCollector struct {
	objects *prometheus.Desc
	bytes   *prometheus.Desc
	items   *prometheus.Desc
	queue   *prometheus.Desc
}

// NewReporterCollector 导出所有 MemoryReporter 的统计
//
// 模块缓存、预编译调度器等组件通过 metricsutil.RegisterMemoryReporter 注册。
func NewReporterCollector() prometheus.Collector {
	labels := []string{"component"}
	return &reporterCollector{
		objects: prometheus.NewDesc(namespace+"_component_objects", "Objects held by a component", labels, nil),
		bytes:   prometheus.NewDesc(namespace+"_component_approx_bytes", "Approximate bytes held by a component", labels, nil),
		items:   prometheus.NewDesc(namespace+"_component_cache_items", "Cache entries held by a component", labels, nil),
		queue:   prometheus.NewDesc(namespace+"_component_queue_length", "Queued work of a component", labels, nil),
	}
}

func (c *reporterCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.objects
	ch <- c.bytes
	ch <- c.items
	ch <- c.queue
}

func (c *reporterCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range metricsutil.CollectAllModuleStats() {
		ch <- prometheus.MustNewConstMetric(c.objects, prometheus.GaugeValue, float64(s.Objects), s.Module)
		ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, float64(s.ApproxBytes), s.Module)
		ch <- prometheus.MustNewConstMetric(c.items, prometheus.GaugeValue, float64(s.CacheItems), s.Module)
		ch <- prometheus.MustNewConstMetric(c.queue, prometheus.GaugeValue, float64(s.QueueLength), s.Module)
	}
}
