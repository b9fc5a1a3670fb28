// Package log 定义合约执行核心使用的日志接口
//
// 运行器、编译缓存、预编译调度器和宿主状态实现都只依赖本接口，
// 具体实现位于 internal/core/infrastructure/log（zap + lumberjack）。
//
// ⚠️ 所有组件都允许传入 nil Logger，表示静默运行。
package log

import "go.uber.org/zap"

// Logger 日志记录器接口
type Logger interface {
	Debug(msg string)
	Debugf(format string, args ...interface{})
	Info(msg string)
	Infof(format string, args ...interface{})
	Warn(msg string)
	Warnf(format string, args ...interface{})
	Error(msg string)
	Errorf(format string, args ...interface{})

	// Fatal 记录后退出进程，只允许在 cmd 层使用
	Fatal(msg string)
	Fatalf(format string, args ...interface{})

	// With 返回附带键值对字段的 Logger（key1, value1, key2, value2...）
	With(args ...interface{}) Logger

	// Sync 刷新缓冲区
	Sync() error

	// GetZapLogger 获取底层 zap 记录器，供需要强类型字段的热路径使用
	GetZapLogger() *zap.Logger
}
