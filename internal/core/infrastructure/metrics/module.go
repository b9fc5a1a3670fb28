// Package metrics 提供统一的内存监控与 Prometheus 导出
//
// 📋 **内存监控基础设施模块**
//
// 本模块提供：
//   - MemoryDoctor: 周期性采样内存状态，内存持续增长时收缩模块缓存
//   - 组件内存统计的 Prometheus 采集器
package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	corelog "github.com/weisyn/vmrunner/internal/core/infrastructure/log"
	vmmetrics "github.com/weisyn/vmrunner/internal/core/vm/metrics"
)

// Module 返回 metrics 模块
//
// 依赖：
//   - *zap.Logger（可选）
//   - prometheus.Registerer（可选，缺省使用 prometheus.DefaultRegisterer）
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(NewMemoryDoctorProvider),
		fx.Invoke(RegisterReporterCollector),
		fx.Invoke(StartMemoryDoctor),
	)
}

// MemoryDoctorProviderInput MemoryDoctor 的输入依赖
type MemoryDoctorProviderInput struct {
	fx.In

	Logger *zap.Logger `optional:"true"`
}

// NewMemoryDoctorProvider 创建 MemoryDoctor 实例
func NewMemoryDoctorProvider(input MemoryDoctorProviderInput) *MemoryDoctor {
	logger := corelog.NewModuleZapLogger(input.Logger, "metrics")
	return NewMemoryDoctor(DefaultMemoryDoctorConfig(), logger)
}

// ReporterCollectorInput 采集器注册的输入依赖
type ReporterCollectorInput struct {
	fx.In

	Registerer prometheus.Registerer `optional:"true"`
}

// RegisterReporterCollector 把组件内存统计注册到 Prometheus
func RegisterReporterCollector(input ReporterCollectorInput) error {
	reg := input.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	err := reg.Register(vmmetrics.NewReporterCollector())
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}

// StartMemoryDoctor 把 MemoryDoctor 挂到应用生命周期
func StartMemoryDoctor(lifecycle fx.Lifecycle, doctor *MemoryDoctor) {
	// OnStart 的 ctx 在钩子返回后即失效，采样循环使用独立的 ctx
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				doctor.SampleOnce()
				doctor.Start(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
