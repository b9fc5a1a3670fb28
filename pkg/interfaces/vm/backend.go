package vm

import (
	"context"

	"github.com/weisyn/vmrunner/pkg/types"
)

// Module 已编译、可实例化执行的合约模块
//
// 同一个 Module 可被多个调用并发实例化；每次调用拥有独立的线性内存。
type Module interface {
	// Kind 产生该模块的后端
	Kind() types.VMKind

	// Close 释放编译结果
	Close(ctx context.Context) error
}

// Invocation 单次方法调用的全部输入
type Invocation struct {
	Method         string
	Ext            External
	Context        *types.VMContext
	Config         *types.VMConfig
	Fees           *types.RuntimeFeesConfig
	PromiseResults []types.PromiseResult
	// CodeLen 原始合约字节长度，用于收取编译费用
	CodeLen uint64
	// Profile 可选；非 nil 时累加剖析数据
	Profile *types.ProfileData
}

// Backend 沙箱后端适配器
//
// 🎯 **职责**：
//   - Prepare: 校验并插桩原始字节码（与后端无关的确定性变换）
//   - Compile / Lookup: 把插桩后的字节码编译为 Module，并按键复用
//   - Run: 实例化 Module 并执行导出方法
//
// ⚠️ Run 的返回值恰好一个非 nil；失败时错误为 *types.VMError，执行期错误携带 GasReport。
type Backend interface {
	Kind() types.VMKind

	Prepare(code []byte, cfg *types.VMConfig) ([]byte, error)

	// Lookup 查询进程内已编译模块（key 与 Compile 相同）
	Lookup(key string) (Module, bool)

	// Compile 编译并登记到进程内模块缓存
	Compile(ctx context.Context, key string, prepared []byte) (Module, error)

	Run(ctx context.Context, module Module, inv *Invocation) (*types.VMOutcome, error)

	Close(ctx context.Context) error
}
