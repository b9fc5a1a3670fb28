// Package runtime 把 wazero 返回的错误归类为 types.VMError
package runtime

import (
	"errors"
	"strings"

	"github.com/tetratelabs/wazero/sys"

	"github.com/weisyn/vmrunner/pkg/types"
)

// trapPattern wazero 运行时 trap 文本与错误码的对应关系
//
// wazero 的 trap 错误类型位于 internal 包，只能按错误文本匹配。
type trapPattern struct {
	text  string
	class types.ErrorClass
	code  types.ErrorCode
}

var trapPatterns = []trapPattern{
	{"unreachable", types.ClassExecution, types.CodeWasmUnreachable},
	{"out of bounds memory access", types.ClassExecution, types.CodeWasmMemoryOutOfBounds},
	{"integer divide by zero", types.ClassExecution, types.CodeWasmIllegalArithmetic},
	{"integer overflow", types.ClassExecution, types.CodeWasmIllegalArithmetic},
	{"invalid conversion to integer", types.ClassExecution, types.CodeWasmIllegalArithmetic},
	{"indirect call type mismatch", types.ClassExecution, types.CodeWasmIndirectCall},
	{"invalid table access", types.ClassExecution, types.CodeWasmTableOutOfBounds},
	// 插桩的深度检查先于 wazero 自身的调用栈上限触发，这里只是兜底
	{"stack overflow", types.ClassResourceLimit, types.CodeStackHeightExceeded},
}

const wasmErrorPrefix = "wasm error: "

// ClassifyTrap 归类合约执行期间的错误
//
// 📋 **优先级**：
//  1. abort：宿主函数记录的错误（燃料耗尽、panic、参数错误……）原样返回
//  2. context 取消/超时：Interrupted
//  3. wazero trap：按 trapPatterns 映射
//  4. 其他：GenericTrap
func ClassifyTrap(abort, err error) *types.VMError {
	if abort != nil {
		if vmErr, ok := types.AsVMError(abort); ok {
			return vmErr
		}
		return types.WrapVMError(types.ClassHostContract, types.CodeExternalError, abort)
	}
	if err == nil {
		return nil
	}
	if vmErr, ok := types.AsVMError(err); ok {
		return vmErr
	}

	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case sys.ExitCodeContextCanceled, sys.ExitCodeDeadlineExceeded:
			return types.WrapVMError(types.ClassHostContract, types.CodeInterrupted, err)
		}
		return types.NewVMError(types.ClassExecution, types.CodeWasmGenericTrap, "module exited with code %d", exitErr.ExitCode())
	}

	msg := err.Error()
	if i := strings.Index(msg, wasmErrorPrefix); i >= 0 {
		trap := msg[i+len(wasmErrorPrefix):]
		if nl := strings.IndexByte(trap, '\n'); nl >= 0 {
			trap = trap[:nl]
		}
		for _, p := range trapPatterns {
			if strings.HasPrefix(trap, p.text) {
				return types.NewVMError(p.class, p.code, "%s", trap)
			}
		}
		return types.NewVMError(types.ClassExecution, types.CodeWasmGenericTrap, "%s", trap)
	}
	return types.WrapVMError(types.ClassExecution, types.CodeWasmGenericTrap, err)
}

// ClassifyInstantiate 归类实例化错误：start 段中的 trap 按执行错误处理，其余为链接失败
func ClassifyInstantiate(abort, err error) *types.VMError {
	if abort != nil || strings.Contains(err.Error(), wasmErrorPrefix) {
		return ClassifyTrap(abort, err)
	}
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		return ClassifyTrap(nil, err)
	}
	return types.WrapVMError(types.ClassCompilation, types.CodeInstantiate, err)
}
