// Package log 提供基于 zap 的日志实现
// 支持结构化字段、按模块分文件以及 lumberjack 日志轮转
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	logconfig "github.com/weisyn/vmrunner/internal/config/log"
	logInterface "github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 日志级别定义
const (
	DebugLevel = string(logInterface.DebugLevel)
	InfoLevel  = string(logInterface.InfoLevel)
	WarnLevel  = string(logInterface.WarnLevel)
	ErrorLevel = string(logInterface.ErrorLevel)
	FatalLevel = string(logInterface.FatalLevel)
)

// 模块名（写入 module 字段，决定多文件模式下的落盘位置）
const (
	ModuleVM      = "vm"
	ModuleRunner  = "runner"
	ModulePreload = "preload"
	ModuleCache   = "cache"
	ModuleState   = "state"
	ModuleEngine  = "engine"
	ModuleLogic   = "logic"
	ModuleStorage = "storage"
	ModuleCLI     = "cli"
)

var (
	// 全局日志实例
	globalLogger logInterface.Logger
	mu           sync.RWMutex
)

// Logger 实现 log.Logger 接口
type Logger struct {
	zapLogger *zap.Logger
	sugar     *zap.SugaredLogger
}

func init() {
	ResetDefault()
}

// ResetDefault 重置全局日志记录器为默认配置
func ResetDefault() {
	logger, err := New(logconfig.New(nil))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize default logger: %v\n", err)
		return
	}
	SetLogger(logger)
}

// ============================================================================
//                           按模块路由的 Core
// ============================================================================

// moduleRoutingCore 根据 module 字段把日志写入编译侧或执行侧文件
//
// 📋 **路由规则**：
//   - engine / cache / preload → compileCore
//   - runner / logic / state / vm → execCore
//   - 没有 module 字段或未知模块 → 两边都写
type moduleRoutingCore struct {
	compileCore zapcore.Core
	execCore    zapcore.Core
	// module 通过 With 绑定时记录在这里，Write 阶段的字段里就不再出现
	module string
}

func (c *moduleRoutingCore) Enabled(level zapcore.Level) bool {
	return c.compileCore.Enabled(level) || c.execCore.Enabled(level)
}

func (c *moduleRoutingCore) With(fields []zapcore.Field) zapcore.Core {
	module := c.module
	if m := moduleFromFields(fields); m != "" {
		module = m
	}
	return &moduleRoutingCore{
		compileCore: c.compileCore.With(fields),
		execCore:    c.execCore.With(fields),
		module:      module,
	}
}

// Check 阶段拿不到字段，路由推迟到 Write
func (c *moduleRoutingCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *moduleRoutingCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	module := c.module
	if m := moduleFromFields(fields); m != "" {
		module = m
	}

	switch {
	case isCompileModule(module):
		return c.compileCore.Write(entry, fields)
	case isExecModule(module):
		return c.execCore.Write(entry, fields)
	default:
		var errs []error
		if err := c.compileCore.Write(entry, fields); err != nil {
			errs = append(errs, err)
		}
		if err := c.execCore.Write(entry, fields); err != nil {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			return fmt.Errorf("写入日志失败: %v", errs)
		}
		return nil
	}
}

func (c *moduleRoutingCore) Sync() error {
	var errs []error
	if err := c.compileCore.Sync(); err != nil {
		errs = append(errs, err)
	}
	if err := c.execCore.Sync(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("同步日志文件失败: %v", errs)
	}
	return nil
}

func moduleFromFields(fields []zapcore.Field) string {
	for _, field := range fields {
		if field.Key != "module" {
			continue
		}
		// zap.String 写入 field.String；zap.Any(string) 走 Interface
		switch field.Type {
		case zapcore.StringType:
			return field.String
		case zapcore.StringerType:
			if s, ok := field.Interface.(fmt.Stringer); ok && s != nil {
				return s.String()
			}
		default:
			if str, ok := field.Interface.(string); ok {
				return str
			}
		}
	}
	return ""
}

func isCompileModule(module string) bool {
	switch module {
	case ModuleEngine, ModuleCache, ModulePreload:
		return true
	}
	return false
}

func isExecModule(module string) bool {
	switch module {
	case ModuleVM, ModuleRunner, ModuleLogic, ModuleState:
		return true
	}
	return false
}

// ============================================================================
//                              构造
// ============================================================================

// createFileWriter 创建带轮转的文件写入器
func createFileWriter(logPath string, config *logconfig.Config) zapcore.WriteSyncer {
	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "创建日志目录失败 %s: %v\n", logDir, err)
		return zapcore.AddSync(os.Stderr)
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    config.GetMaxSize(),
		MaxBackups: config.GetMaxBackups(),
		MaxAge:     config.GetMaxAge(),
		Compress:   config.IsCompressionEnabled(),
	})
}

// New 根据配置创建日志记录器
func New(config *logconfig.Config) (logInterface.Logger, error) {
	level := zap.NewAtomicLevelAt(config.GetZapLevel())
	fileEncoder := config.CreateFileEncoder()

	var cores []zapcore.Core

	outputPath := config.GetFilePath()
	if outputPath == "stdout" || outputPath == "stderr" || config.IsConsoleEnabled() {
		output := zapcore.AddSync(os.Stdout)
		if outputPath == "stderr" {
			output = zapcore.AddSync(os.Stderr)
		}
		cores = append(cores, zapcore.NewCore(config.CreateConsoleEncoder(), output, level))
	}

	if outputPath != "" && outputPath != "stdout" && outputPath != "stderr" {
		absPath, err := filepath.Abs(outputPath)
		if err != nil {
			return nil, fmt.Errorf("获取日志文件绝对路径失败: %w", err)
		}

		if config.IsMultiFileEnabled() {
			logDir := filepath.Dir(absPath)
			opts := config.GetOptions()
			compileCore := zapcore.NewCore(fileEncoder, createFileWriter(filepath.Join(logDir, opts.CompileLogFile), config), level)
			execCore := zapcore.NewCore(fileEncoder, createFileWriter(filepath.Join(logDir, opts.ExecLogFile), config), level)
			cores = append(cores, &moduleRoutingCore{compileCore: compileCore, execCore: execCore})
		} else {
			cores = append(cores, zapcore.NewCore(fileEncoder, createFileWriter(absPath, config), level))
		}
	}

	zapOptions := []zap.Option{}
	if config.IsCallerEnabled() {
		// 跳过一层封装，调用位置指向真实业务代码
		zapOptions = append(zapOptions, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	if config.IsStacktraceEnabled() {
		zapOptions = append(zapOptions, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	zapLogger := zap.New(zapcore.NewTee(cores...), zapOptions...)
	return &Logger{
		zapLogger: zapLogger,
		sugar:     zapLogger.Sugar(),
	}, nil
}

// NewFromZap 包装已有的 zap.Logger（测试中配合 zaptest/observer 使用）
func NewFromZap(zapLogger *zap.Logger) logInterface.Logger {
	return &Logger{
		zapLogger: zapLogger,
		sugar:     zapLogger.Sugar(),
	}
}

// NewNop 返回丢弃所有输出的日志记录器
func NewNop() logInterface.Logger {
	return NewFromZap(zap.NewNop())
}

// GetZapLogger 获取底层的 zap 日志记录器
func (l *Logger) GetZapLogger() *zap.Logger {
	return l.zapLogger
}

// SetLogger 设置全局日志记录器
func SetLogger(logger logInterface.Logger) {
	if logger == nil {
		return
	}
	mu.Lock()
	globalLogger = logger
	mu.Unlock()
}

// GetLogger 获取全局日志记录器
func GetLogger() logInterface.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}

// ==================== 全局日志函数 ====================

func Debug(msg string) {
	if l := GetLogger(); l != nil {
		l.Debug(msg)
	}
}

func Debugf(format string, args ...interface{}) {
	if l := GetLogger(); l != nil {
		l.Debugf(format, args...)
	}
}

func Info(msg string) {
	if l := GetLogger(); l != nil {
		l.Info(msg)
	}
}

func Infof(format string, args ...interface{}) {
	if l := GetLogger(); l != nil {
		l.Infof(format, args...)
	}
}

func Warn(msg string) {
	if l := GetLogger(); l != nil {
		l.Warn(msg)
	}
}

func Warnf(format string, args ...interface{}) {
	if l := GetLogger(); l != nil {
		l.Warnf(format, args...)
	}
}

func Error(msg string) {
	if l := GetLogger(); l != nil {
		l.Error(msg)
	}
}

func Errorf(format string, args ...interface{}) {
	if l := GetLogger(); l != nil {
		l.Errorf(format, args...)
	}
}

// With 基于全局日志记录器创建带字段的记录器
func With(args ...interface{}) logInterface.Logger {
	l := GetLogger()
	if l == nil {
		ResetDefault()
		l = GetLogger()
		if l == nil {
			return NewNop()
		}
	}
	return l.With(args...)
}

// toZapFields 将键值对参数转换为 zap 字段，奇数个参数时丢弃最后一个
func toZapFields(args ...interface{}) []zap.Field {
	if len(args)%2 != 0 {
		args = args[:len(args)-1]
	}

	fields := make([]zap.Field, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		fields = append(fields, zap.Any(key, args[i+1]))
	}
	return fields
}

func (l *Logger) Debug(msg string) {
	l.sugar.Debug(msg)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *Logger) Info(msg string) {
	l.sugar.Info(msg)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *Logger) Warn(msg string) {
	l.sugar.Warn(msg)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *Logger) Error(msg string) {
	l.sugar.Error(msg)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Fatal 记录致命日志后退出进程
func (l *Logger) Fatal(msg string) {
	l.sugar.Fatal(msg)
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.sugar.Fatalf(format, args...)
}

// With 返回带有额外字段的 Logger
func (l *Logger) With(args ...interface{}) logInterface.Logger {
	zl := l.zapLogger.With(toZapFields(args...)...)
	return &Logger{
		zapLogger: zl,
		sugar:     zl.Sugar(),
	}
}

// Sync 同步日志缓冲区
func (l *Logger) Sync() error {
	return l.zapLogger.Sync()
}
