// Package wasm WebAssembly 二进制格式的底层读写原语
//
// 只覆盖插桩器和测试模块构造器需要的部分：LEB128、段结构、指令立即数。
// 完整的类型校验由 wazero 在编译阶段完成。
package wasm

// Magic 与版本号
var (
	Magic   = []byte{0x00, 0x61, 0x73, 0x6D}
	Version = []byte{0x01, 0x00, 0x00, 0x00}
)

// SectionID 段标识
type SectionID = byte

const (
	SectionCustom    SectionID = 0
	SectionType      SectionID = 1
	SectionImport    SectionID = 2
	SectionFunction  SectionID = 3
	SectionTable     SectionID = 4
	SectionMemory    SectionID = 5
	SectionGlobal    SectionID = 6
	SectionExport    SectionID = 7
	SectionStart     SectionID = 8
	SectionElement   SectionID = 9
	SectionCode      SectionID = 10
	SectionData      SectionID = 11
	SectionDataCount SectionID = 12
)

// SectionOrder 非自定义段的规范顺序（DataCount 位于 Element 与 Code 之间）
var SectionOrder = []SectionID{
	SectionType, SectionImport, SectionFunction, SectionTable, SectionMemory,
	SectionGlobal, SectionExport, SectionStart, SectionElement, SectionDataCount,
	SectionCode, SectionData,
}

// SectionRank 返回段在规范顺序中的位置，未知段返回 -1
func SectionRank(id SectionID) int {
	for i, s := range SectionOrder {
		if s == id {
			return i
		}
	}
	return -1
}

// ValueType 值类型
type ValueType = byte

const (
	ValueTypeI32       ValueType = 0x7F
	ValueTypeI64       ValueType = 0x7E
	ValueTypeF32       ValueType = 0x7D
	ValueTypeF64       ValueType = 0x7C
	ValueTypeV128      ValueType = 0x7B
	ValueTypeFuncref   ValueType = 0x70
	ValueTypeExternref ValueType = 0x6F
)

// IsFloat 浮点或向量类型
func IsFloat(t ValueType) bool {
	return t == ValueTypeF32 || t == ValueTypeF64 || t == ValueTypeV128
}

// IsValueType 是否为已知值类型
func IsValueType(t ValueType) bool {
	switch t {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64, ValueTypeV128, ValueTypeFuncref, ValueTypeExternref:
		return true
	}
	return false
}

// ExternalKind 导入导出类别
type ExternalKind = byte

const (
	ExternalFunc   ExternalKind = 0x00
	ExternalTable  ExternalKind = 0x01
	ExternalMemory ExternalKind = 0x02
	ExternalGlobal ExternalKind = 0x03
)

// FuncTypeForm 函数类型前缀
const FuncTypeForm = 0x60

// BlockTypeEmpty 空块类型
const BlockTypeEmpty = 0x40

// 操作码
const (
	OpUnreachable        byte = 0x00
	OpNop                byte = 0x01
	OpBlock              byte = 0x02
	OpLoop               byte = 0x03
	OpIf                 byte = 0x04
	OpElse               byte = 0x05
	OpEnd                byte = 0x0B
	OpBr                 byte = 0x0C
	OpBrIf               byte = 0x0D
	OpBrTable            byte = 0x0E
	OpReturn             byte = 0x0F
	OpCall               byte = 0x10
	OpCallIndirect       byte = 0x11
	OpReturnCall         byte = 0x12
	OpReturnCallIndirect byte = 0x13
	OpDrop               byte = 0x1A
	OpSelect             byte = 0x1B
	OpSelectTyped        byte = 0x1C
	OpLocalGet           byte = 0x20
	OpLocalSet           byte = 0x21
	OpLocalTee           byte = 0x22
	OpGlobalGet          byte = 0x23
	OpGlobalSet          byte = 0x24
	OpTableGet           byte = 0x25
	OpTableSet           byte = 0x26
	OpI32Load            byte = 0x28
	OpI64Load            byte = 0x29
	OpI32Load8U          byte = 0x2D
	OpI32Store           byte = 0x36
	OpI64Store           byte = 0x37
	OpI64Store32         byte = 0x3E
	OpMemorySize         byte = 0x3F
	OpMemoryGrow         byte = 0x40
	OpI32Const           byte = 0x41
	OpI64Const           byte = 0x42
	OpF32Const           byte = 0x43
	OpF64Const           byte = 0x44
	OpI32Eqz             byte = 0x45
	OpI32GtU             byte = 0x4B
	OpI64Eqz             byte = 0x50
	OpI32Add             byte = 0x6A
	OpI32Sub             byte = 0x6B
	OpI32DivU            byte = 0x6E
	OpI64Add             byte = 0x7C
	OpI64Sub             byte = 0x7D
	OpI64Extend32S       byte = 0xC4
	OpRefNull            byte = 0xD0
	OpRefIsNull          byte = 0xD1
	OpRefFunc            byte = 0xD2
	OpPrefixMisc         byte = 0xFC
	OpPrefixSIMD         byte = 0xFD
	OpPrefixAtomic       byte = 0xFE
)

// 0xFC 前缀子操作码
const (
	MiscI32TruncSatF32S uint32 = 0
	MiscI64TruncSatF64U uint32 = 7
	MiscMemoryInit      uint32 = 8
	MiscDataDrop        uint32 = 9
	MiscMemoryCopy      uint32 = 10
	MiscMemoryFill      uint32 = 11
	MiscTableInit       uint32 = 12
	MiscElemDrop        uint32 = 13
	MiscTableCopy       uint32 = 14
	MiscTableGrow       uint32 = 15
	MiscTableSize       uint32 = 16
	MiscTableFill       uint32 = 17
)

// IsFloatOpcode 单字节操作码是否涉及浮点
func IsFloatOpcode(op byte) bool {
	switch {
	case op == 0x2A || op == 0x2B || op == 0x38 || op == 0x39: // f32/f64 load/store
		return true
	case op == OpF32Const || op == OpF64Const:
		return true
	case op >= 0x5B && op <= 0x66: // f32/f64 比较
		return true
	case op >= 0x8B && op <= 0xA6: // f32/f64 算术
		return true
	case op >= 0xA8 && op <= 0xAB: // i32.trunc_f*
		return true
	case op >= 0xAE && op <= 0xBF: // i64.trunc_f*、浮点转换与重解释
		return true
	}
	return false
}
