// Package logic 合约宿主层
//
// 🎯 **职责**：实现合约可导入的全部宿主函数（模块 "env"），并维护单次调用的执行状态：
//   - 燃料计数（指令计量、宿主函数计费、动作费用）
//   - 寄存器、日志、返回值
//   - 回执镜像（调用内下标 0,1,2,…）与 promise 表
//   - 迭代器登记（写入/删除使已打开的迭代器失效）
//   - 只读调用限制、存储占用统计、各类上限
//
// 📋 **使用方式**：后端为每次调用创建一个 VMLogic，实例化合约后通过 Imports()
// 中的处理函数把宿主调用转发进来；调用结束后用 Outcome() 或 GasReport() 取结果。
//
// ⚠️ VMLogic 不是并发安全的，一次调用只在一个协程上执行。
package logic

import (
	"github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/crypto"
	"github.com/weisyn/vmrunner/pkg/interfaces/vm"
	"github.com/weisyn/vmrunner/pkg/types"
)

// StorageNumExtraBytesRecord 每条存储记录额外计入的字节数
const StorageNumExtraBytesRecord = 40

// Params 构造 VMLogic 的输入
type Params struct {
	Ext            vm.External
	Context        *types.VMContext
	Config         *types.VMConfig
	Fees           *types.RuntimeFeesConfig
	PromiseResults []types.PromiseResult
	Profile        *types.ProfileData
	// Hasher 提供 keccak256 / ripemd160；为 nil 时这两个宿主函数不可用
	Hasher crypto.HashManager
}

type promiseKind uint8

const (
	promiseReceipt promiseKind = iota
	promiseJoint
)

// promise 合约可见的 promise：单个回执或多个回执的合并
type promise struct {
	kind         promiseKind
	receiptIndex uint64
	joint        []uint64 // 合并的回执下标
}

// VMLogic 单次调用的宿主状态
type VMLogic struct {
	ext            vm.External
	ctx            *types.VMContext
	cfg            *types.VMConfig
	fees           *types.RuntimeFeesConfig
	promiseResults []types.PromiseResult
	hasher         crypto.HashManager

	memory Memory
	gas    *GasCounter

	registers      map[uint64][]byte
	registersTotal uint64

	returnData     types.ReturnData
	logs           []string
	totalLogLength uint64

	initialStorageUsage uint64
	storageUsage        uint64
	balance             types.Balance

	promises []promise
	receipts []types.Receipt

	validIterators   map[uint64]struct{}
	invalidIterators map[uint64]struct{}

	// abort 宿主函数失败时记录的错误，后端据此分类 trap
	abort error
}

// New 创建宿主状态
func New(p Params) *VMLogic {
	return &VMLogic{
		ext:                 p.Ext,
		ctx:                 p.Context,
		cfg:                 p.Config,
		fees:                p.Fees,
		promiseResults:      p.PromiseResults,
		hasher:              p.Hasher,
		gas:                 NewGasCounter(p.Config, p.Context.PrepaidGas, p.Context.IsView, p.Profile),
		registers:           make(map[uint64][]byte),
		returnData:          types.ReturnNone(),
		initialStorageUsage: p.Context.StorageUsage,
		storageUsage:        p.Context.StorageUsage,
		balance:             p.Context.AccountBalance,
		validIterators:      make(map[uint64]struct{}),
		invalidIterators:    make(map[uint64]struct{}),
	}
}

// BindMemory 绑定合约线性内存（实例化之后调用）
func (l *VMLogic) BindMemory(m Memory) {
	l.memory = m
}

// Gas 燃料计数器
func (l *VMLogic) Gas() *GasCounter { return l.gas }

// ChargeContractCompile 收取合约编译费用（在执行第一条指令前）
func (l *VMLogic) ChargeContractCompile(codeLen uint64) error {
	if err := l.gas.PayBase(types.ExtContractCompileBase); err != nil {
		return err
	}
	return l.gas.PayPerByte(types.ExtContractCompileBytes, codeLen)
}

// Abort 记录宿主函数错误并返回它
func (l *VMLogic) Abort(err error) error {
	if l.abort == nil {
		l.abort = err
	}
	return err
}

// AbortError 宿主函数记录的第一个错误
func (l *VMLogic) AbortError() error { return l.abort }

// Logs 已记录的日志
func (l *VMLogic) Logs() []string {
	return append([]string(nil), l.logs...)
}

// GasReport 失败调用的燃料报告
func (l *VMLogic) GasReport() types.GasReport {
	return types.GasReport{
		BurntGas: l.gas.Burnt(),
		UsedGas:  l.gas.Used(),
		Logs:     l.Logs(),
	}
}

// Outcome 成功调用的执行结果
func (l *VMLogic) Outcome() *types.VMOutcome {
	receipts := make([]types.Receipt, len(l.receipts))
	for i := range l.receipts {
		receipts[i] = l.receipts[i].Clone()
	}
	logs := l.Logs()
	if logs == nil {
		logs = []string{}
	}
	return &types.VMOutcome{
		BurntGas:          l.gas.Burnt(),
		UsedGas:           l.gas.Used(),
		Logs:              logs,
		ReturnData:        l.returnData,
		StorageUsageDelta: int64(l.storageUsage) - int64(l.initialStorageUsage),
		StorageUsage:      l.storageUsage,
		Balance:           l.balance,
		Receipts:          receipts,
	}
}
