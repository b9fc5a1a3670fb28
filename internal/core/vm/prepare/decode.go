package prepare

import (
	"bytes"

	"github.com/weisyn/vmrunner/internal/core/vm/wasm"
	"github.com/weisyn/vmrunner/pkg/types"
)

// decodeModule 按段解码模块，自定义段被丢弃
func decodeModule(code []byte, limits *types.VMLimitConfig) (*module, error) {
	if len(code) < 8 || !bytes.Equal(code[:4], wasm.Magic) {
		return nil, deserializationError("missing wasm magic header")
	}
	if !bytes.Equal(code[4:8], wasm.Version) {
		return nil, deserializationError("unsupported wasm version %x", code[4:8])
	}

	m := &module{seen: make(map[wasm.SectionID]bool)}
	r := wasm.NewReader(code[8:])
	lastRank := -1
	for r.Len() > 0 {
		id, err := r.Byte()
		if err != nil {
			return nil, wrapDecode(err)
		}
		size, err := r.U32()
		if err != nil {
			return nil, wrapDecode(err)
		}
		payload, err := r.Bytes(int(size))
		if err != nil {
			return nil, wrapDecode(err)
		}
		if id == wasm.SectionCustom {
			continue
		}
		rank := wasm.SectionRank(id)
		if rank < 0 {
			return nil, deserializationError("unknown section id %d", id)
		}
		if rank <= lastRank {
			return nil, deserializationError("section %d out of order or duplicated", id)
		}
		lastRank = rank
		m.seen[id] = true

		sr := wasm.NewReader(payload)
		if err := m.decodeSection(id, sr, payload, limits); err != nil {
			return nil, err
		}
		if sr.Len() != 0 && id != wasm.SectionTable && id != wasm.SectionData && id != wasm.SectionDataCount {
			return nil, deserializationError("section %d has %d trailing bytes", id, sr.Len())
		}
	}

	if len(m.funcs) != len(m.codes) {
		return nil, deserializationError("function and code section counts differ: %d != %d", len(m.funcs), len(m.codes))
	}
	return m, nil
}

func (m *module) decodeSection(id wasm.SectionID, r *wasm.Reader, payload []byte, lim *types.VMLimitConfig) error {
	switch id {
	case wasm.SectionType:
		return m.decodeTypes(r)
	case wasm.SectionImport:
		return m.decodeImports(r)
	case wasm.SectionFunction:
		return m.decodeFuncs(r)
	case wasm.SectionTable:
		if err := decodeTables(r); err != nil {
			return err
		}
		m.tableRaw = payload
		return nil
	case wasm.SectionMemory:
		return m.decodeMemory(r)
	case wasm.SectionGlobal:
		return m.decodeGlobals(r)
	case wasm.SectionExport:
		return m.decodeExports(r)
	case wasm.SectionStart:
		idx, err := r.U32()
		if err != nil {
			return wrapDecode(err)
		}
		m.start = &idx
		return nil
	case wasm.SectionElement:
		return m.decodeElements(r)
	case wasm.SectionDataCount:
		m.dataCountRaw = payload
		return nil
	case wasm.SectionCode:
		return m.decodeCodes(r, lim)
	case wasm.SectionData:
		m.dataRaw = payload
		return nil
	}
	return nil
}

func (m *module) decodeTypes(r *wasm.Reader) error {
	n, err := r.U32()
	if err != nil {
		return wrapDecode(err)
	}
	for i := uint32(0); i < n; i++ {
		ft, err := wasm.ReadFuncType(r)
		if err != nil {
			return wrapDecode(err)
		}
		for _, t := range append(append([]wasm.ValueType{}, ft.Params...), ft.Results...) {
			if wasm.IsFloat(t) {
				return unsupportedError("floating point or vector type in signature %d", i)
			}
		}
		m.types = append(m.types, ft)
	}
	return nil
}

func (m *module) decodeImports(r *wasm.Reader) error {
	n, err := r.U32()
	if err != nil {
		return wrapDecode(err)
	}
	for i := uint32(0); i < n; i++ {
		mod, err := r.Name()
		if err != nil {
			return wrapDecode(err)
		}
		name, err := r.Name()
		if err != nil {
			return wrapDecode(err)
		}
		kind, err := r.Byte()
		if err != nil {
			return wrapDecode(err)
		}
		if kind != wasm.ExternalFunc {
			return types.NewVMError(types.ClassCompilation, types.CodeDisallowedImport,
				"import %s.%s: only function imports are allowed", mod, name)
		}
		typeIdx, err := r.U32()
		if err != nil {
			return wrapDecode(err)
		}
		if typeIdx >= uint32(len(m.types)) {
			return deserializationError("import %s.%s references missing type %d", mod, name, typeIdx)
		}
		m.imports = append(m.imports, importEntry{module: mod, name: name, typeIdx: typeIdx})
	}
	return nil
}

func (m *module) decodeFuncs(r *wasm.Reader) error {
	n, err := r.U32()
	if err != nil {
		return wrapDecode(err)
	}
	if uint64(n) > uint64(r.Len()) {
		return deserializationError("function count %d exceeds section size", n)
	}
	for i := uint32(0); i < n; i++ {
		typeIdx, err := r.U32()
		if err != nil {
			return wrapDecode(err)
		}
		if typeIdx >= uint32(len(m.types)) {
			return deserializationError("function %d references missing type %d", i, typeIdx)
		}
		m.funcs = append(m.funcs, typeIdx)
	}
	return nil
}

func decodeTables(r *wasm.Reader) error {
	n, err := r.U32()
	if err != nil {
		return wrapDecode(err)
	}
	if n > 1 {
		return unsupportedError("multiple tables")
	}
	for i := uint32(0); i < n; i++ {
		t, err := r.Byte()
		if err != nil {
			return wrapDecode(err)
		}
		if t != wasm.ValueTypeFuncref && t != wasm.ValueTypeExternref {
			return deserializationError("table element type 0x%x", t)
		}
		if _, err := readLimits(r); err != nil {
			return err
		}
	}
	return nil
}

func readLimits(r *wasm.Reader) (limits, error) {
	flags, err := r.Byte()
	if err != nil {
		return limits{}, wrapDecode(err)
	}
	switch flags {
	case 0x00, 0x01:
	case 0x02, 0x03:
		return limits{}, unsupportedError("shared memory")
	default:
		return limits{}, unsupportedError("limits flags 0x%x", flags)
	}
	var l limits
	if l.min, err = r.U32(); err != nil {
		return limits{}, wrapDecode(err)
	}
	if flags == 0x01 {
		if l.max, err = r.U32(); err != nil {
			return limits{}, wrapDecode(err)
		}
		l.hasMax = true
		if l.max < l.min {
			return limits{}, deserializationError("limits max %d below min %d", l.max, l.min)
		}
	}
	return l, nil
}

func (m *module) decodeMemory(r *wasm.Reader) error {
	n, err := r.U32()
	if err != nil {
		return wrapDecode(err)
	}
	if n > 1 {
		return unsupportedError("multiple memories")
	}
	if n == 1 {
		l, err := readLimits(r)
		if err != nil {
			return err
		}
		m.memory = &l
	}
	return nil
}

func (m *module) decodeGlobals(r *wasm.Reader) error {
	n, err := r.U32()
	if err != nil {
		return wrapDecode(err)
	}
	for i := uint32(0); i < n; i++ {
		t, err := r.Byte()
		if err != nil {
			return wrapDecode(err)
		}
		if !wasm.IsValueType(t) {
			return deserializationError("global %d value type 0x%x", i, t)
		}
		if wasm.IsFloat(t) {
			return unsupportedError("floating point global %d", i)
		}
		mut, err := r.Byte()
		if err != nil {
			return wrapDecode(err)
		}
		if mut > 1 {
			return deserializationError("global %d mutability 0x%x", i, mut)
		}
		m.globals = append(m.globals, global{valType: t, mutable: mut == 1})
		// 初始化表达式在 ref.func 下标确定后重写
		init, err := m.constExpr(r)
		if err != nil {
			return err
		}
		m.globals[len(m.globals)-1].init = init
	}
	return nil
}

func (m *module) decodeExports(r *wasm.Reader) error {
	n, err := r.U32()
	if err != nil {
		return wrapDecode(err)
	}
	for i := uint32(0); i < n; i++ {
		name, err := r.Name()
		if err != nil {
			return wrapDecode(err)
		}
		kind, err := r.Byte()
		if err != nil {
			return wrapDecode(err)
		}
		if kind > wasm.ExternalGlobal {
			return deserializationError("export %q kind 0x%x", name, kind)
		}
		idx, err := r.U32()
		if err != nil {
			return wrapDecode(err)
		}
		m.exports = append(m.exports, export{name: name, kind: kind, index: idx})
	}
	return nil
}

func (m *module) decodeElements(r *wasm.Reader) error {
	n, err := r.U32()
	if err != nil {
		return wrapDecode(err)
	}
	for i := uint32(0); i < n; i++ {
		flags, err := r.U32()
		if err != nil {
			return wrapDecode(err)
		}
		e := element{flags: flags}
		switch flags {
		case 0:
			if e.offset, err = m.constExpr(r); err != nil {
				return err
			}
		case 1, 3:
			if e.kind, err = r.Byte(); err != nil {
				return wrapDecode(err)
			}
		case 2:
			if e.table, err = r.U32(); err != nil {
				return wrapDecode(err)
			}
			if e.offset, err = m.constExpr(r); err != nil {
				return err
			}
			if e.kind, err = r.Byte(); err != nil {
				return wrapDecode(err)
			}
		case 4, 5, 6, 7:
			return unsupportedError("element segment expressions")
		default:
			return deserializationError("element segment flags %d", flags)
		}
		if flags != 0 && e.kind != 0x00 {
			return deserializationError("element kind 0x%x", e.kind)
		}
		count, err := r.U32()
		if err != nil {
			return wrapDecode(err)
		}
		if uint64(count) > uint64(r.Len()) {
			return deserializationError("element count %d exceeds section size", count)
		}
		for j := uint32(0); j < count; j++ {
			idx, err := r.U32()
			if err != nil {
				return wrapDecode(err)
			}
			e.funcs = append(e.funcs, idx)
		}
		m.elements = append(m.elements, e)
	}
	return nil
}

func (m *module) decodeCodes(r *wasm.Reader, lim *types.VMLimitConfig) error {
	n, err := r.U32()
	if err != nil {
		return wrapDecode(err)
	}
	if int(n) != len(m.funcs) {
		return deserializationError("code count %d does not match function count %d", n, len(m.funcs))
	}
	for i := uint32(0); i < n; i++ {
		size, err := r.U32()
		if err != nil {
			return wrapDecode(err)
		}
		raw, err := r.Bytes(int(size))
		if err != nil {
			return wrapDecode(err)
		}
		br := wasm.NewReader(raw)

		groups, err := br.U32()
		if err != nil {
			return wrapDecode(err)
		}
		total := uint64(len(m.types[m.funcs[i]].Params))
		b := body{}
		for g := uint32(0); g < groups; g++ {
			count, err := br.U32()
			if err != nil {
				return wrapDecode(err)
			}
			t, err := br.Byte()
			if err != nil {
				return wrapDecode(err)
			}
			if !wasm.IsValueType(t) {
				return deserializationError("local type 0x%x", t)
			}
			if wasm.IsFloat(t) {
				return unsupportedError("floating point local in function %d", i)
			}
			total += uint64(count)
			if total > lim.MaxLocalsPerFunction {
				return types.NewVMError(types.ClassCompilation, types.CodeTooManyLocals,
					"function %d declares more than %d locals", i, lim.MaxLocalsPerFunction)
			}
			b.locals = append(b.locals, localDecl{count: count, valType: t})
		}
		b.expr = raw[br.Offset():]
		m.codes = append(m.codes, b)
	}
	return nil
}

// constExpr 读取常量表达式，ref.func 的函数下标在编码阶段统一平移
func (m *module) constExpr(r *wasm.Reader) ([]byte, error) {
	start := r.Offset()
	for {
		in, err := wasm.DecodeInstr(r)
		if err != nil {
			return nil, wrapDecode(err)
		}
		switch in.Op {
		case wasm.OpEnd:
			return append([]byte(nil), r.Slice(start)...), nil
		case wasm.OpI32Const, wasm.OpI64Const, wasm.OpGlobalGet, wasm.OpRefNull, wasm.OpRefFunc:
		case wasm.OpF32Const, wasm.OpF64Const:
			return nil, unsupportedError("floating point constant expression")
		default:
			return nil, deserializationError("opcode 0x%x in constant expression", in.Op)
		}
	}
}
