package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	logconfig "github.com/weisyn/vmrunner/internal/config/log"
	"github.com/weisyn/vmrunner/pkg/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func fileConfig(t *testing.T, level string) (*logconfig.Config, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vm.log")
	cfg := logconfig.New(&types.UserLogConfig{
		Level:    types.StringPtr(level),
		FilePath: types.StringPtr(path),
	})
	return cfg, path
}

// TestLogLevels 文件输出遵守日志级别
func TestLogLevels(t *testing.T) {
	cfg, path := fileConfig(t, WarnLevel)
	assert.False(t, cfg.IsConsoleEnabled())

	logger, err := New(cfg)
	require.NoError(t, err)

	logger.Debug("调试日志")
	logger.Info("信息日志")
	logger.Warn("警告日志")
	logger.Errorf("错误日志 %d", 7)
	_ = logger.Sync()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "调试日志")
	assert.NotContains(t, string(content), "信息日志")
	assert.Contains(t, string(content), "警告日志")
	assert.Contains(t, string(content), "错误日志 7")
}

// TestStructuredLogging 键值对参数转换为结构化字段
func TestStructuredLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewFromZap(zap.New(core))

	logger.With("code_hash", "abcd", "gas", 42, "dangling").Info("编译完成")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "abcd", fields["code_hash"])
	assert.EqualValues(t, 42, fields["gas"])
	assert.NotContains(t, fields, "dangling")
	assert.Equal(t, "编译完成", entries[0].Message)
}

// TestMultiFileRouting 多文件模式下按模块写入不同文件
func TestMultiFileRouting(t *testing.T) {
	dir := t.TempDir()
	opts := logconfig.New(&types.UserLogConfig{
		Level:    types.StringPtr(DebugLevel),
		FilePath: types.StringPtr(filepath.Join(dir, "vm.log")),
	}).GetOptions()
	opts.EnableMultiFile = true
	cfg := logconfig.NewFromProvider(optionsProvider{opts})
	require.True(t, cfg.IsMultiFileEnabled())

	logger, err := New(cfg)
	require.NoError(t, err)

	NewModuleLogger(logger, ModuleEngine).Info("compiled module")
	NewModuleLogger(logger, ModuleRunner).Info("ran method")
	_ = logger.Sync()

	compileLog, err := os.ReadFile(filepath.Join(dir, opts.CompileLogFile))
	require.NoError(t, err)
	execLog, err := os.ReadFile(filepath.Join(dir, opts.ExecLogFile))
	require.NoError(t, err)

	assert.Contains(t, string(compileLog), "compiled module")
	assert.NotContains(t, string(compileLog), "ran method")
	assert.Contains(t, string(execLog), "ran method")
	assert.NotContains(t, string(execLog), "compiled module")
}

// TestSetLogger 设置和切换全局日志记录器
func TestSetLogger(t *testing.T) {
	original := GetLogger()
	defer SetLogger(original)

	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(NewFromZap(zap.New(core)))

	Infof("global %s", "info")
	Debug("dropped")
	SetLogger(nil)
	Warn("still routed")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "global info", logs.All()[0].Message)
}

// TestResetDefault 重置后全局记录器被替换
func TestResetDefault(t *testing.T) {
	original := GetLogger()
	defer SetLogger(original)

	custom := NewNop()
	SetLogger(custom)
	ResetDefault()

	assert.NotSame(t, custom, GetLogger())
}

func TestNewModuleLoggerNilBase(t *testing.T) {
	logger := NewModuleLogger(nil, ModuleCache)
	require.NotNil(t, logger)
	logger.Info("silent")
	assert.NotNil(t, NewModuleZapLogger(nil, ModuleCache))
}

type optionsProvider struct {
	opts *logconfig.LogOptions
}

func (p optionsProvider) GetLog() *logconfig.LogOptions { return p.opts }
