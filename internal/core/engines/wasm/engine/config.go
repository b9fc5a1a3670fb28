package engine

import (
	"fmt"
)

// Mode wazero 执行模式
type Mode uint8

const (
	// ModeCompiler 编译为本机代码（仅 amd64/arm64）
	ModeCompiler Mode = iota + 1
	// ModeInterpreter 解释执行（全平台）
	ModeInterpreter
)

// String 模式名称
func (m Mode) String() string {
	switch m {
	case ModeCompiler:
		return "compiler"
	case ModeInterpreter:
		return "interpreter"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// maxMemoryPages wasm32 线性内存的理论上限
const maxMemoryPages = 65536

// Config 引擎配置
// 控制 wazero 运行时行为，与适配器的模块缓存协同工作
type Config struct {
	// ========== 基础配置 ==========

	// Mode 执行模式
	Mode Mode `json:"mode"`

	// ========== 内存配置 ==========

	// MemoryLimitPages 运行时线性内存硬上限（64KiB/页）
	//
	// 合约自身的上限已在预处理阶段按 VMConfig 收紧，这里只是兜底。
	MemoryLimitPages uint32 `json:"memoryLimitPages"`

	// ========== 编译配置 ==========

	// CompilationCacheDir wazero 机器码缓存目录，为空表示只在内存中编译
	CompilationCacheDir string `json:"compilationCacheDir"`
}

// DefaultConfig 默认引擎配置
func DefaultConfig(mode Mode) Config {
	return Config{
		Mode:             mode,
		MemoryLimitPages: maxMemoryPages,
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Mode != ModeCompiler && c.Mode != ModeInterpreter {
		return fmt.Errorf("未知的执行模式: %s", c.Mode)
	}
	if c.MemoryLimitPages == 0 || c.MemoryLimitPages > maxMemoryPages {
		return fmt.Errorf("内存上限超出范围: %d 页", c.MemoryLimitPages)
	}
	return nil
}
