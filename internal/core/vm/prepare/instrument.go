package prepare

import (
	"github.com/weisyn/vmrunner/internal/core/vm/wasm"
)

// instrumenter 函数体改写器
//
// 🔧 **插桩规则**：
//   - 燃料：每个线性片段开头插入 `i32.const n; call $gas`，n 为片段指令数
//   - 深度：对定义函数的 call 与所有 call_indirect 前后维护深度全局变量
//   - 下标：定义函数下标整体后移 2（两个注入导入）
type instrumenter struct {
	numImports     uint32
	numFuncs       uint32
	numTypes       uint32
	gasFunc        uint32
	stackFunc      uint32
	depthGlobal    uint32
	maxStackHeight uint32
}

// shiftFunc 平移函数下标
func (in *instrumenter) shiftFunc(idx uint32) uint32 {
	if idx < in.numImports {
		return idx
	}
	return idx + injectedImports
}

// rewriteBody 改写一个函数体（不含局部变量声明）
func (in *instrumenter) rewriteBody(fn int, expr []byte) ([]byte, error) {
	instrs, err := in.decodeBody(fn, expr)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(expr)*2+16)
	segStart := true
	for i, ins := range instrs {
		if segStart {
			n := int32(0)
			for j := i; j < len(instrs); j++ {
				n++
				if instrs[j].IsControl() {
					break
				}
			}
			out = in.appendGasCharge(out, n)
			segStart = false
		}
		out = in.appendInstr(out, expr, ins)
		if ins.IsControl() {
			segStart = true
		}
	}
	return out, nil
}

// decodeBody 解码并校验指令序列
func (in *instrumenter) decodeBody(fn int, expr []byte) ([]wasm.Instr, error) {
	r := wasm.NewReader(expr)
	var instrs []wasm.Instr
	depth := 0
	for {
		if r.Len() == 0 {
			return nil, deserializationError("function %d body is not terminated", fn)
		}
		ins, err := wasm.DecodeInstr(r)
		if err != nil {
			return nil, wrapDecode(err)
		}
		if err := in.checkInstr(fn, ins); err != nil {
			return nil, err
		}
		instrs = append(instrs, ins)

		switch ins.Op {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			depth++
		case wasm.OpEnd:
			if depth == 0 {
				if r.Len() != 0 {
					return nil, deserializationError("function %d has %d bytes after final end", fn, r.Len())
				}
				return instrs, nil
			}
			depth--
		}
	}
}

func (in *instrumenter) checkInstr(fn int, ins wasm.Instr) error {
	if wasm.IsFloatOpcode(ins.Op) {
		return unsupportedError("floating point opcode 0x%x in function %d", ins.Op, fn)
	}
	for _, t := range ins.Types {
		if wasm.IsFloat(t) {
			return unsupportedError("floating point block or select type in function %d", fn)
		}
	}
	switch ins.Op {
	case wasm.OpCall, wasm.OpRefFunc:
		if ins.Index >= in.numFuncs {
			return deserializationError("function %d references missing function %d", fn, ins.Index)
		}
	case wasm.OpCallIndirect:
		if ins.Index >= in.numTypes {
			return deserializationError("function %d references missing type %d", fn, ins.Index)
		}
	case wasm.OpPrefixMisc:
		switch ins.Sub {
		case wasm.MiscMemoryCopy, wasm.MiscMemoryFill:
		default:
			if ins.Sub <= wasm.MiscI64TruncSatF64U {
				return unsupportedError("saturating float conversion in function %d", fn)
			}
			return unsupportedError("bulk operation 0xfc %d in function %d", ins.Sub, fn)
		}
	}
	return nil
}

func (in *instrumenter) appendGasCharge(out []byte, n int32) []byte {
	out = append(out, wasm.OpI32Const)
	out = wasm.AppendS32(out, n)
	out = append(out, wasm.OpCall)
	return wasm.AppendU32(out, in.gasFunc)
}

func (in *instrumenter) appendInstr(out, expr []byte, ins wasm.Instr) []byte {
	raw := expr[ins.Start:ins.End]
	switch ins.Op {
	case wasm.OpCall:
		if ins.Index < in.numImports {
			return append(out, raw...)
		}
		out = in.appendDepthEnter(out)
		out = append(out, wasm.OpCall)
		out = wasm.AppendU32(out, in.shiftFunc(ins.Index))
		return in.appendDepthLeave(out)
	case wasm.OpCallIndirect:
		out = in.appendDepthEnter(out)
		out = append(out, raw...)
		return in.appendDepthLeave(out)
	case wasm.OpRefFunc:
		out = append(out, wasm.OpRefFunc)
		return wasm.AppendU32(out, in.shiftFunc(ins.Index))
	}
	return append(out, raw...)
}

// appendDepthEnter 深度 +1，超限时调用 stack_exceeded
func (in *instrumenter) appendDepthEnter(out []byte) []byte {
	out = append(out, wasm.OpGlobalGet)
	out = wasm.AppendU32(out, in.depthGlobal)
	out = append(out, wasm.OpI32Const, 1, wasm.OpI32Add, wasm.OpGlobalSet)
	out = wasm.AppendU32(out, in.depthGlobal)

	out = append(out, wasm.OpGlobalGet)
	out = wasm.AppendU32(out, in.depthGlobal)
	out = append(out, wasm.OpI32Const)
	out = wasm.AppendS32(out, int32(in.maxStackHeight))
	out = append(out, wasm.OpI32GtU, wasm.OpIf, wasm.BlockTypeEmpty, wasm.OpCall)
	out = wasm.AppendU32(out, in.stackFunc)
	return append(out, wasm.OpEnd)
}

func (in *instrumenter) appendDepthLeave(out []byte) []byte {
	out = append(out, wasm.OpGlobalGet)
	out = wasm.AppendU32(out, in.depthGlobal)
	out = append(out, wasm.OpI32Const, 1, wasm.OpI32Sub, wasm.OpGlobalSet)
	return wasm.AppendU32(out, in.depthGlobal)
}
