package wasmtest

import (
	"github.com/weisyn/vmrunner/internal/core/vm/wasm"
)

// Code 拼接指令序列
func Code(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func op(b ...byte) []byte { return b }

func End() []byte         { return op(wasm.OpEnd) }
func Nop() []byte         { return op(wasm.OpNop) }
func Drop() []byte        { return op(wasm.OpDrop) }
func Return() []byte      { return op(wasm.OpReturn) }
func Unreachable() []byte { return op(wasm.OpUnreachable) }
func Else() []byte        { return op(wasm.OpElse) }

// Block / Loop / If 空块类型
func Block() []byte { return op(wasm.OpBlock, wasm.BlockTypeEmpty) }
func Loop() []byte  { return op(wasm.OpLoop, wasm.BlockTypeEmpty) }
func If() []byte    { return op(wasm.OpIf, wasm.BlockTypeEmpty) }

// Br 跳转到外层第 depth 个标签
func Br(depth uint32) []byte   { return wasm.AppendU32(op(wasm.OpBr), depth) }
func BrIf(depth uint32) []byte { return wasm.AppendU32(op(wasm.OpBrIf), depth) }

func Call(idx uint32) []byte { return wasm.AppendU32(op(wasm.OpCall), idx) }

// CallIndirect 通过 0 号表调用
func CallIndirect(typeIdx uint32) []byte {
	return append(wasm.AppendU32(op(wasm.OpCallIndirect), typeIdx), 0x00)
}

func LocalGet(idx uint32) []byte  { return wasm.AppendU32(op(wasm.OpLocalGet), idx) }
func LocalSet(idx uint32) []byte  { return wasm.AppendU32(op(wasm.OpLocalSet), idx) }
func LocalTee(idx uint32) []byte  { return wasm.AppendU32(op(wasm.OpLocalTee), idx) }
func GlobalGet(idx uint32) []byte { return wasm.AppendU32(op(wasm.OpGlobalGet), idx) }
func GlobalSet(idx uint32) []byte { return wasm.AppendU32(op(wasm.OpGlobalSet), idx) }

func I32Const(v int32) []byte { return wasm.AppendS32(op(wasm.OpI32Const), v) }
func I64Const(v int64) []byte { return wasm.AppendS64(op(wasm.OpI64Const), v) }

// F32Const 浮点常量（用于拒绝路径测试）
func F32Const() []byte { return op(wasm.OpF32Const, 0, 0, 0, 0) }

func I32Add() []byte  { return op(wasm.OpI32Add) }
func I32Sub() []byte  { return op(wasm.OpI32Sub) }
func I32DivU() []byte { return op(wasm.OpI32DivU) }
func I32Eqz() []byte  { return op(wasm.OpI32Eqz) }
func I64Add() []byte  { return op(wasm.OpI64Add) }
func I64Sub() []byte  { return op(wasm.OpI64Sub) }
func I64Eqz() []byte  { return op(wasm.OpI64Eqz) }

// I64Load / I64Store 以 8 字节对齐、0 偏移访问内存
func I64Load() []byte   { return op(wasm.OpI64Load, 0x03, 0x00) }
func I64Store() []byte  { return op(wasm.OpI64Store, 0x03, 0x00) }
func I32Load8U() []byte { return op(wasm.OpI32Load8U, 0x00, 0x00) }
func I32Store() []byte  { return op(wasm.OpI32Store, 0x02, 0x00) }
