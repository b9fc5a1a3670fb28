package prepare

import (
	"github.com/weisyn/vmrunner/internal/core/vm/wasm"
)

type importEntry struct {
	module  string
	name    string
	typeIdx uint32
}

type limits struct {
	min    uint32
	max    uint32
	hasMax bool
}

type global struct {
	valType wasm.ValueType
	mutable bool
	init    []byte // 已重写的常量表达式（含 end）
}

type export struct {
	name  string
	kind  wasm.ExternalKind
	index uint32
}

// element 元素段（仅支持函数下标列表形式，flags 0..3）
type element struct {
	flags  uint32
	table  uint32
	offset []byte // 常量表达式（含 end），被动/声明式为 nil
	kind   byte
	funcs  []uint32
}

type localDecl struct {
	count   uint32
	valType wasm.ValueType
}

type body struct {
	locals []localDecl
	expr   []byte
}

// module 解码后的模块（只保留插桩需要改写的段，其余段保存原始字节）
type module struct {
	types    []wasm.FuncType
	imports  []importEntry
	funcs    []uint32
	tableRaw []byte
	memory   *limits
	globals  []global
	exports  []export
	start    *uint32
	elements []element
	// dataCount 段内容原样保留
	dataCountRaw []byte
	codes        []body
	dataRaw      []byte

	seen map[wasm.SectionID]bool
}

// numFuncs 函数下标空间大小（导入 + 定义）
func (m *module) numFuncs() uint32 {
	return uint32(len(m.imports) + len(m.funcs))
}

// funcType 返回函数下标对应的签名
func (m *module) funcType(idx uint32) (wasm.FuncType, bool) {
	var typeIdx uint32
	switch {
	case idx < uint32(len(m.imports)):
		typeIdx = m.imports[idx].typeIdx
	case idx < m.numFuncs():
		typeIdx = m.funcs[idx-uint32(len(m.imports))]
	default:
		return wasm.FuncType{}, false
	}
	if typeIdx >= uint32(len(m.types)) {
		return wasm.FuncType{}, false
	}
	return m.types[typeIdx], true
}
