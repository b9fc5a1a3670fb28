package engine

import (
	"context"
	"errors"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/weisyn/vmrunner/internal/core/vm/logic"
	"github.com/weisyn/vmrunner/internal/core/vm/prepare"
	"github.com/weisyn/vmrunner/internal/core/vm/wasm"
)

type logicKey struct{}

// errNoLogic 宿主函数在没有绑定 VMLogic 的 context 中被调用
var errNoLogic = errors.New("host function called without vm logic in context")

// WithLogic 把本次调用的宿主状态放入 context
func WithLogic(ctx context.Context, l *logic.VMLogic) context.Context {
	return context.WithValue(ctx, logicKey{}, l)
}

// LogicFrom 取出 context 中的宿主状态
func LogicFrom(ctx context.Context) (*logic.VMLogic, bool) {
	l, ok := ctx.Value(logicKey{}).(*logic.VMLogic)
	return l, ok && l != nil
}

func valueTypes(ts []wasm.ValueType) []api.ValueType {
	out := make([]api.ValueType, len(ts))
	for i, t := range ts {
		// wasm 二进制编码与 wazero 的 api.ValueType 取值一致
		out[i] = api.ValueType(t)
	}
	return out
}

// hostFunction 把 logic.HostFunc 适配为 wazero 的栈式调用约定
//
// 宿主函数出错时先记录到 VMLogic 再 panic，wazero 会展开合约调用栈，
// 适配器随后通过 VMLogic.AbortError 取回原始错误。
func hostFunction(imp logic.Import) api.GoModuleFunc {
	nparams := len(imp.Type.Params)
	hasResult := len(imp.Type.Results) > 0
	call := imp.Call
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		l, ok := LogicFrom(ctx)
		if !ok {
			panic(errNoLogic)
		}
		var mem logic.Memory
		if m := mod.Memory(); m != nil {
			mem = m
		}
		l.BindMemory(mem)

		ret, err := call(l, stack[:nparams])
		if err != nil {
			panic(l.Abort(err))
		}
		if hasResult {
			stack[0] = ret
		}
	}
}

// instantiateHost 注册宿主模块 "env"
func instantiateHost(ctx context.Context, runtime wazero.Runtime) error {
	builder := runtime.NewHostModuleBuilder(prepare.HostModule)
	for _, imp := range logic.Imports() {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(hostFunction(imp), valueTypes(imp.Type.Params), valueTypes(imp.Type.Results)).
			WithName(imp.Name).
			Export(imp.Name)
	}
	_, err := builder.Instantiate(ctx)
	return err
}
