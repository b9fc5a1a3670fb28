package preload

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/weisyn/vmrunner/pkg/interfaces/vm"
	"github.com/weisyn/vmrunner/pkg/types"
)

var (
	// ErrInvalidHandle 句柄不属于该上下文、越界或已释放
	ErrInvalidHandle = errors.New("preload: invalid handle")
	// ErrContextClosed 上下文已关闭
	ErrContextClosed = errors.New("preload: context closed")
	// ErrSlotAbandoned 上下文关闭时任务尚未开始，编译被放弃
	ErrSlotAbandoned = errors.New("preload: slot abandoned before compilation")
	// ErrNotReady 等待编译完成时调用方 ctx 到期；任务本身仍在进行
	ErrNotReady = errors.New("preload: slot not ready")
)

// ContractCallPrepareRequest 待预编译的合约调用
type ContractCallPrepareRequest struct {
	// CodeHash 为空时由运行器计算
	CodeHash   []byte
	Code       []byte
	MethodName string
}

// Handle 预编译句柄：所属上下文 + 槽位下标
type Handle struct {
	ContextID uuid.UUID
	Index     int
}

func (h Handle) String() string {
	return fmt.Sprintf("%s/%d", h.ContextID, h.Index)
}

// PrepareResult Preload 的逐条结果
//
// 提交时 Err 总是 nil，编译错误在 RunPreloaded 时返回；只有上下文已关闭时 Err 为 ErrContextClosed。
type PrepareResult struct {
	Handle Handle
	Err    error
}

// CallParams RunPreloaded 的执行参数
//
// 执行配置沿用预编译时的 VMConfig，保证模块与配置指纹一致。
type CallParams struct {
	Ext             vm.External
	Context         *types.VMContext
	Fees            *types.RuntimeFeesConfig
	PromiseResults  []types.PromiseResult
	ProtocolVersion uint32
	// Profile 可选
	Profile *types.ProfileData
}

type notReadyError struct {
	cause error
}

func (e *notReadyError) Error() string {
	return ErrNotReady.Error() + ": " + e.cause.Error()
}

func (e *notReadyError) Is(target error) bool { return target == ErrNotReady }

func (e *notReadyError) Unwrap() error { return e.cause }
