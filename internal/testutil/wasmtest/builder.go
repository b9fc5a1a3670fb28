// Package wasmtest 测试用的 wasm 模块构造器
//
// 🧪 用于在测试中手工拼装合约字节码，避免仓库中出现二进制测试文件。
//
// 示例：
//
//	b := wasmtest.NewBuilder()
//	t := b.Type(nil, nil)
//	f := b.Func(t, nil, wasmtest.Code(wasmtest.End()))
//	b.ExportFunc("hello", f)
//	code := b.Bytes()
package wasmtest

import (
	"github.com/weisyn/vmrunner/internal/core/vm/wasm"
)

// I32 / I64 值类型简写
const (
	I32 = wasm.ValueTypeI32
	I64 = wasm.ValueTypeI64
	F32 = wasm.ValueTypeF32
	F64 = wasm.ValueTypeF64
)

// Local 局部变量声明
type Local struct {
	Count uint32
	Type  wasm.ValueType
}

type importEntry struct {
	module, name string
	typeIdx      uint32
}

type function struct {
	typeIdx uint32
	locals  []Local
	body    []byte
}

type exportEntry struct {
	name  string
	kind  wasm.ExternalKind
	index uint32
}

type dataSegment struct {
	offset int32
	data   []byte
}

type elemSegment struct {
	offset int32
	funcs  []uint32
}

type custom struct {
	name    string
	payload []byte
}

// Builder 模块构造器
//
// ⚠️ 所有导入必须在第一个 Func 之前声明，否则函数下标会错位。
type Builder struct {
	types    []wasm.FuncType
	imports  []importEntry
	funcs    []function
	memory   []byte
	table    *uint32
	globals  [][]byte
	exports  []exportEntry
	start    *uint32
	elems    []elemSegment
	data     []dataSegment
	customs  []custom
	rawAfter map[wasm.SectionID][]byte
}

// NewBuilder 创建空模块构造器
func NewBuilder() *Builder {
	return &Builder{rawAfter: make(map[wasm.SectionID][]byte)}
}

// Type 声明函数签名（同签名复用）
func (b *Builder) Type(params, results []wasm.ValueType) uint32 {
	ft := wasm.FuncType{Params: params, Results: results}
	for i, t := range b.types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	b.types = append(b.types, ft)
	return uint32(len(b.types) - 1)
}

// Import 声明函数导入，返回函数下标
func (b *Builder) Import(module, name string, params, results []wasm.ValueType) uint32 {
	if len(b.funcs) > 0 {
		panic("wasmtest: imports must be declared before functions")
	}
	t := b.Type(params, results)
	b.imports = append(b.imports, importEntry{module: module, name: name, typeIdx: t})
	return uint32(len(b.imports) - 1)
}

// Func 定义函数，body 必须以 end 结尾；返回函数下标
func (b *Builder) Func(typeIdx uint32, locals []Local, body []byte) uint32 {
	b.funcs = append(b.funcs, function{typeIdx: typeIdx, locals: locals, body: body})
	return uint32(len(b.imports) + len(b.funcs) - 1)
}

// NextFunc 下一个 Func 将获得的函数下标（用于递归调用）
func (b *Builder) NextFunc() uint32 {
	return uint32(len(b.imports) + len(b.funcs))
}

// Memory 定义线性内存，max 为 nil 表示不设上限
func (b *Builder) Memory(min uint32, max *uint32) {
	mem := wasm.AppendU32(nil, 1)
	if max == nil {
		mem = append(mem, 0x00)
		mem = wasm.AppendU32(mem, min)
	} else {
		mem = append(mem, 0x01)
		mem = wasm.AppendU32(mem, min)
		mem = wasm.AppendU32(mem, *max)
	}
	b.memory = mem
}

// SharedMemory 定义共享内存（用于拒绝路径测试）
func (b *Builder) SharedMemory(min, max uint32) {
	mem := wasm.AppendU32(nil, 1)
	mem = append(mem, 0x03)
	mem = wasm.AppendU32(mem, min)
	b.memory = wasm.AppendU32(mem, max)
}

// Table 定义 funcref 表
func (b *Builder) Table(min uint32) {
	b.table = &min
}

// Global 定义 i32/i64 全局变量
func (b *Builder) Global(t wasm.ValueType, mutable bool, init int64) uint32 {
	g := []byte{t}
	if mutable {
		g = append(g, 0x01)
	} else {
		g = append(g, 0x00)
	}
	if t == I64 {
		g = append(g, wasm.OpI64Const)
		g = wasm.AppendS64(g, init)
	} else {
		g = append(g, wasm.OpI32Const)
		g = wasm.AppendS32(g, int32(init))
	}
	b.globals = append(b.globals, append(g, wasm.OpEnd))
	return uint32(len(b.globals) - 1)
}

// ExportFunc 导出函数
func (b *Builder) ExportFunc(name string, idx uint32) {
	b.exports = append(b.exports, exportEntry{name: name, kind: wasm.ExternalFunc, index: idx})
}

// ExportMemory 导出 0 号内存
func (b *Builder) ExportMemory(name string) {
	b.exports = append(b.exports, exportEntry{name: name, kind: wasm.ExternalMemory})
}

// Start 设置启动函数
func (b *Builder) Start(idx uint32) {
	b.start = &idx
}

// Elem 添加活跃元素段
func (b *Builder) Elem(offset int32, funcs ...uint32) {
	b.elems = append(b.elems, elemSegment{offset: offset, funcs: funcs})
}

// Data 添加活跃数据段
func (b *Builder) Data(offset int32, data []byte) {
	b.data = append(b.data, dataSegment{offset: offset, data: data})
}

// Custom 添加自定义段（输出在模块末尾）
func (b *Builder) Custom(name string, payload []byte) {
	b.customs = append(b.customs, custom{name: name, payload: payload})
}

// RawSection 在指定段之后追加一个原样输出的段（用于构造非法模块）
func (b *Builder) RawSection(after wasm.SectionID, id wasm.SectionID, payload []byte) {
	b.rawAfter[after] = wasm.AppendSection(b.rawAfter[after], id, payload)
}

// Bytes 输出模块字节码
func (b *Builder) Bytes() []byte {
	out := append(append([]byte{}, wasm.Magic...), wasm.Version...)
	emit := func(id wasm.SectionID, present bool, payload []byte) {
		if present {
			out = wasm.AppendSection(out, id, payload)
		}
		out = append(out, b.rawAfter[id]...)
	}

	types := make([][]byte, len(b.types))
	for i, t := range b.types {
		types[i] = t.Encode()
	}
	emit(wasm.SectionType, len(types) > 0, wasm.AppendVec(nil, types))

	imports := wasm.AppendU32(nil, uint32(len(b.imports)))
	for _, imp := range b.imports {
		imports = wasm.AppendName(imports, imp.module)
		imports = wasm.AppendName(imports, imp.name)
		imports = append(imports, wasm.ExternalFunc)
		imports = wasm.AppendU32(imports, imp.typeIdx)
	}
	emit(wasm.SectionImport, len(b.imports) > 0, imports)

	funcs := wasm.AppendU32(nil, uint32(len(b.funcs)))
	for _, f := range b.funcs {
		funcs = wasm.AppendU32(funcs, f.typeIdx)
	}
	emit(wasm.SectionFunction, len(b.funcs) > 0, funcs)

	var table []byte
	if b.table != nil {
		table = wasm.AppendU32(nil, 1)
		table = append(table, wasm.ValueTypeFuncref, 0x00)
		table = wasm.AppendU32(table, *b.table)
	}
	emit(wasm.SectionTable, b.table != nil, table)

	emit(wasm.SectionMemory, b.memory != nil, b.memory)

	globals := wasm.AppendVec(nil, b.globals)
	emit(wasm.SectionGlobal, len(b.globals) > 0, globals)

	exports := wasm.AppendU32(nil, uint32(len(b.exports)))
	for _, e := range b.exports {
		exports = wasm.AppendName(exports, e.name)
		exports = append(exports, e.kind)
		exports = wasm.AppendU32(exports, e.index)
	}
	emit(wasm.SectionExport, len(b.exports) > 0, exports)

	var start []byte
	if b.start != nil {
		start = wasm.AppendU32(nil, *b.start)
	}
	emit(wasm.SectionStart, b.start != nil, start)

	elems := wasm.AppendU32(nil, uint32(len(b.elems)))
	for _, e := range b.elems {
		elems = wasm.AppendU32(elems, 0)
		elems = append(elems, I32Const(e.offset)...)
		elems = append(elems, wasm.OpEnd)
		elems = wasm.AppendU32(elems, uint32(len(e.funcs)))
		for _, f := range e.funcs {
			elems = wasm.AppendU32(elems, f)
		}
	}
	emit(wasm.SectionElement, len(b.elems) > 0, elems)

	bodies := make([][]byte, len(b.funcs))
	for i, f := range b.funcs {
		body := wasm.AppendU32(nil, uint32(len(f.locals)))
		for _, l := range f.locals {
			body = wasm.AppendU32(body, l.Count)
			body = append(body, l.Type)
		}
		body = append(body, f.body...)
		bodies[i] = append(wasm.AppendU32(nil, uint32(len(body))), body...)
	}
	emit(wasm.SectionCode, len(b.funcs) > 0, wasm.AppendVec(nil, bodies))

	data := wasm.AppendU32(nil, uint32(len(b.data)))
	for _, d := range b.data {
		data = wasm.AppendU32(data, 0)
		data = append(data, I32Const(d.offset)...)
		data = append(data, wasm.OpEnd)
		data = wasm.AppendU32(data, uint32(len(d.data)))
		data = append(data, d.data...)
	}
	emit(wasm.SectionData, len(b.data) > 0, data)

	for _, c := range b.customs {
		out = wasm.AppendSection(out, wasm.SectionCustom, append(wasm.AppendName(nil, c.name), c.payload...))
	}
	return out
}
