// Package testutil 提供执行核心测试共用的辅助工具
//
// 🧪 **测试辅助工具包**：日志、默认执行环境和常用合约字节码。
package testutil

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	corelog "github.com/weisyn/vmrunner/internal/core/infrastructure/log"
	"github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/log"
)

// NewTestLogger 输出到 t.Log 的日志记录器
func NewTestLogger(t testing.TB) log.Logger {
	return corelog.NewFromZap(zaptest.NewLogger(t, zaptest.Level(zap.DebugLevel)))
}

// NewObservedLogger 可检查日志条目的记录器
func NewObservedLogger() (log.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return corelog.NewFromZap(zap.New(core)), logs
}
