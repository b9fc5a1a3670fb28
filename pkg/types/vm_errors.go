package types

import (
	"errors"
	"fmt"
)

// ============================================================================
//                           合约执行错误分类
// ============================================================================

// ErrorClass 错误大类
type ErrorClass uint8

const (
	// ClassCompilation 预处理/编译错误：字节码非法、导入不允许、模块超限
	ClassCompilation ErrorClass = iota + 1
	// ClassResourceLimit 资源限制：燃料耗尽、栈溢出、内存与各类上限
	ClassResourceLimit
	// ClassExecution 合约自身执行失败：panic、trap、方法解析、宿主调用参数错误
	ClassExecution
	// ClassHostContract 宿主接口被越界驱动（运行时缺陷，而非合约问题）
	ClassHostContract
	// ClassBackendUnavailable 请求的后端未编译进当前二进制
	ClassBackendUnavailable
	// ClassCache 编译缓存读写失败（只记录，永不中断调用）
	ClassCache
)

var errorClassNames = map[ErrorClass]string{
	ClassCompilation:        "CompilationError",
	ClassResourceLimit:      "ResourceLimitError",
	ClassExecution:          "ExecutionError",
	ClassHostContract:       "HostContractViolation",
	ClassBackendUnavailable: "BackendUnavailable",
	ClassCache:              "CacheError",
}

func (c ErrorClass) String() string {
	if n, ok := errorClassNames[c]; ok {
		return n
	}
	return fmt.Sprintf("ErrorClass(%d)", uint8(c))
}

// ErrorCode 具体错误码
type ErrorCode string

// 编译类
const (
	CodeDeserialization      ErrorCode = "Deserialization"
	CodeUnsupportedFeature   ErrorCode = "UnsupportedFeature"
	CodeMemory               ErrorCode = "Memory"
	CodeTooManyFunctions     ErrorCode = "TooManyFunctions"
	CodeTooManyLocals        ErrorCode = "TooManyLocals"
	CodeContractSizeExceeded ErrorCode = "ContractSizeExceeded"
	CodeDisallowedImport     ErrorCode = "DisallowedImport"
	CodeCompileError         ErrorCode = "CompileError"
	CodeLinkError            ErrorCode = "LinkError"
	CodeInstantiate          ErrorCode = "Instantiate"
)

// 资源限制类
const (
	CodeGasExceeded             ErrorCode = "GasExceeded"
	CodeGasLimitExceeded        ErrorCode = "GasLimitExceeded"
	CodeStackHeightExceeded     ErrorCode = "StackHeightExceeded"
	CodeMemoryLimit             ErrorCode = "MemoryLimit"
	CodeTooManyRegisters        ErrorCode = "MaxNumberOfRegistersExceeded"
	CodeRegisterSizeExceeded    ErrorCode = "RegisterSizeExceeded"
	CodeRegistersMemoryExceeded ErrorCode = "RegistersMemoryLimitExceeded"
	CodeNumberOfLogsExceeded    ErrorCode = "NumberOfLogsExceeded"
	CodeTotalLogLengthExceeded  ErrorCode = "TotalLogLengthExceeded"
	CodeReturnedValueTooLong    ErrorCode = "ReturnedValueLengthExceeded"
	CodeKeyLengthExceeded       ErrorCode = "KeyLengthExceeded"
	CodeValueLengthExceeded     ErrorCode = "ValueLengthExceeded"
	CodeMethodNameTooLong       ErrorCode = "MethodNameLengthExceeded"
	CodeArgumentsTooLong        ErrorCode = "ArgumentsLengthExceeded"
	CodeNumberActionsExceeded   ErrorCode = "NumberPromisesExceeded"
	CodeTotalPrepaidGasExceeded ErrorCode = "TotalPrepaidGasExceeded"
)

// 执行类
const (
	CodeMethodEmptyName           ErrorCode = "MethodEmptyName"
	CodeMethodNotFound            ErrorCode = "MethodNotFound"
	CodeMethodInvalidSignature    ErrorCode = "MethodInvalidSignature"
	CodeGuestPanic                ErrorCode = "GuestPanic"
	CodeWasmUnreachable           ErrorCode = "Unreachable"
	CodeWasmMemoryOutOfBounds     ErrorCode = "MemoryOutOfBounds"
	CodeWasmIllegalArithmetic     ErrorCode = "IllegalArithmetic"
	CodeWasmIndirectCall          ErrorCode = "IncorrectCallIndirectSignature"
	CodeWasmTableOutOfBounds      ErrorCode = "CallIndirectOOB"
	CodeWasmGenericTrap           ErrorCode = "GenericTrap"
	CodeMemoryAccessViolation     ErrorCode = "MemoryAccessViolation"
	CodeInvalidRegisterID         ErrorCode = "InvalidRegisterId"
	CodeInvalidPromiseIndex       ErrorCode = "InvalidPromiseIndex"
	CodeInvalidPromiseResultIndex ErrorCode = "InvalidPromiseResultIndex"
	CodeInvalidGuestIteratorIndex ErrorCode = "InvalidIteratorIndex"
	CodeIteratorWasInvalidated    ErrorCode = "IteratorWasInvalidated"
	CodeInvalidAccountID          ErrorCode = "InvalidAccountId"
	CodeInvalidMethodName         ErrorCode = "InvalidMethodName"
	CodeInvalidPublicKey          ErrorCode = "InvalidPublicKey"
	CodeBadUTF8                   ErrorCode = "BadUTF8"
	CodeProhibitedInView          ErrorCode = "ProhibitedInView"
	CodeBalanceExceeded           ErrorCode = "BalanceExceeded"
	CodeIntegerOverflow           ErrorCode = "IntegerOverflow"
	CodeCannotAppendActionToJoint ErrorCode = "CannotAppendActionToJointPromise"
	CodeCannotReturnJointPromise  ErrorCode = "CannotReturnJointPromise"
	CodeInvalidContext            ErrorCode = "InvalidContext"
)

// 宿主契约类
const (
	CodeInvalidIteratorIndex ErrorCode = "InvalidIteratorIndex"
	CodeInvalidReceiptIndex  ErrorCode = "InvalidReceiptIndex"
	CodeExternalError        ErrorCode = "ExternalError"
	// CodeInterrupted 调用方取消或超时导致执行中断
	CodeInterrupted ErrorCode = "Interrupted"
)

// 其他
const (
	CodeBackendUnavailable ErrorCode = "BackendUnavailable"
	CodeCacheError         ErrorCode = "CacheError"
)

// GasReport 失败调用时仍需上报的燃料消耗
type GasReport struct {
	BurntGas Gas      `json:"burnt_gas"`
	UsedGas  Gas      `json:"used_gas"`
	Logs     []string `json:"logs,omitempty"`
}

// VMError 合约执行错误
//
// 🎯 **设计要点**：
//   - Class + Code 决定 errors.Is 的匹配结果，与 Message 无关
//   - Gas 在函数调用失败时携带已燃烧的燃料，编译类错误为 nil
//   - Err 为底层原因（可选）
type VMError struct {
	Class   ErrorClass `json:"class"`
	Code    ErrorCode  `json:"code"`
	Message string     `json:"message,omitempty"`
	Gas     *GasReport `json:"gas,omitempty"`
	Err     error      `json:"-"`
}

// Error 实现 error 接口
func (e *VMError) Error() string {
	msg := fmt.Sprintf("%s(%s)", e.Class, e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap 返回底层错误
func (e *VMError) Unwrap() error {
	return e.Err
}

// Is 按 Class 和 Code 匹配
func (e *VMError) Is(target error) bool {
	t, ok := target.(*VMError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithGas 返回附带燃料报告的副本
func (e *VMError) WithGas(report GasReport) *VMError {
	out := *e
	out.Gas = &report
	return &out
}

// NewVMError 构造错误
func NewVMError(class ErrorClass, code ErrorCode, format string, args ...interface{}) *VMError {
	return &VMError{Class: class, Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapVMError 以底层原因构造错误
func WrapVMError(class ErrorClass, code ErrorCode, err error) *VMError {
	return &VMError{Class: class, Code: code, Err: err}
}

// AsVMError 提取 *VMError
func AsVMError(err error) (*VMError, bool) {
	var vmErr *VMError
	if errors.As(err, &vmErr) {
		return vmErr, true
	}
	return nil, false
}

// ErrorClassOf 返回错误的大类，非 VMError 返回 0
func ErrorClassOf(err error) ErrorClass {
	if vmErr, ok := AsVMError(err); ok {
		return vmErr.Class
	}
	return 0
}

// ==================== 常用哨兵错误 ====================

var (
	ErrGasExceeded          = &VMError{Class: ClassResourceLimit, Code: CodeGasExceeded}
	ErrGasLimitExceeded     = &VMError{Class: ClassResourceLimit, Code: CodeGasLimitExceeded}
	ErrStackHeightExceeded  = &VMError{Class: ClassResourceLimit, Code: CodeStackHeightExceeded}
	ErrMethodEmptyName      = &VMError{Class: ClassExecution, Code: CodeMethodEmptyName}
	ErrMethodNotFound       = &VMError{Class: ClassExecution, Code: CodeMethodNotFound}
	ErrMethodInvalidSig     = &VMError{Class: ClassExecution, Code: CodeMethodInvalidSignature}
	ErrGuestPanic           = &VMError{Class: ClassExecution, Code: CodeGuestPanic}
	ErrProhibitedInView     = &VMError{Class: ClassExecution, Code: CodeProhibitedInView}
	ErrInvalidIteratorIndex = &VMError{Class: ClassHostContract, Code: CodeInvalidIteratorIndex}
	ErrInvalidReceiptIndex  = &VMError{Class: ClassHostContract, Code: CodeInvalidReceiptIndex}
	ErrBackendUnavailable   = &VMError{Class: ClassBackendUnavailable, Code: CodeBackendUnavailable}
)
