package prepare

import (
	"github.com/weisyn/vmrunner/internal/core/vm/wasm"
)

func encodeBody(locals []localDecl, expr []byte) []byte {
	var b []byte
	b = wasm.AppendU32(b, uint32(len(locals)))
	for _, l := range locals {
		b = wasm.AppendU32(b, l.count)
		b = append(b, l.valType)
	}
	b = append(b, expr...)

	out := wasm.AppendU32(nil, uint32(len(b)))
	return append(out, b...)
}

// shiftConstExpr 平移常量表达式中的 ref.func 下标
func shiftConstExpr(ins *instrumenter, expr []byte) []byte {
	r := wasm.NewReader(expr)
	var out []byte
	for r.Len() > 0 {
		in, err := wasm.DecodeInstr(r)
		if err != nil {
			// 解码阶段已校验
			return expr
		}
		if in.Op == wasm.OpRefFunc {
			out = append(out, wasm.OpRefFunc)
			out = wasm.AppendU32(out, ins.shiftFunc(in.Index))
			continue
		}
		out = append(out, expr[in.Start:in.End]...)
	}
	return out
}

// encodeModule 按规范段顺序输出
func encodeModule(m *module, ins *instrumenter, bodies [][]byte) ([]byte, error) {
	out := append(append([]byte{}, wasm.Magic...), wasm.Version...)

	for _, id := range wasm.SectionOrder {
		var payload []byte
		present := true
		switch id {
		case wasm.SectionType:
			items := make([][]byte, len(m.types))
			for i, t := range m.types {
				items[i] = t.Encode()
			}
			payload = wasm.AppendVec(nil, items)
		case wasm.SectionImport:
			payload = wasm.AppendU32(nil, uint32(len(m.imports)))
			for _, imp := range m.imports {
				payload = wasm.AppendName(payload, imp.module)
				payload = wasm.AppendName(payload, imp.name)
				payload = append(payload, wasm.ExternalFunc)
				payload = wasm.AppendU32(payload, imp.typeIdx)
			}
		case wasm.SectionFunction:
			present = len(m.funcs) > 0
			payload = wasm.AppendU32(nil, uint32(len(m.funcs)))
			for _, t := range m.funcs {
				payload = wasm.AppendU32(payload, t)
			}
		case wasm.SectionTable:
			present = m.tableRaw != nil
			payload = m.tableRaw
		case wasm.SectionMemory:
			payload = wasm.AppendU32(nil, 1)
			payload = append(payload, 0x01)
			payload = wasm.AppendU32(payload, m.memory.min)
			payload = wasm.AppendU32(payload, m.memory.max)
		case wasm.SectionGlobal:
			payload = wasm.AppendU32(nil, uint32(len(m.globals)))
			for _, g := range m.globals {
				payload = append(payload, g.valType)
				if g.mutable {
					payload = append(payload, 0x01)
				} else {
					payload = append(payload, 0x00)
				}
				payload = append(payload, shiftConstExpr(ins, g.init)...)
			}
		case wasm.SectionExport:
			present = len(m.exports) > 0
			payload = wasm.AppendU32(nil, uint32(len(m.exports)))
			for _, e := range m.exports {
				idx := e.index
				if e.kind == wasm.ExternalFunc {
					idx = ins.shiftFunc(idx)
				}
				payload = wasm.AppendName(payload, e.name)
				payload = append(payload, e.kind)
				payload = wasm.AppendU32(payload, idx)
			}
		case wasm.SectionStart:
			present = m.start != nil
			if present {
				payload = wasm.AppendU32(nil, ins.shiftFunc(*m.start))
			}
		case wasm.SectionElement:
			present = len(m.elements) > 0
			payload = encodeElements(m.elements, ins)
		case wasm.SectionDataCount:
			present = m.dataCountRaw != nil
			payload = m.dataCountRaw
		case wasm.SectionCode:
			present = len(bodies) > 0
			payload = wasm.AppendVec(nil, bodies)
		case wasm.SectionData:
			present = m.dataRaw != nil
			payload = m.dataRaw
		}
		if present {
			out = wasm.AppendSection(out, id, payload)
		}
	}
	return out, nil
}

func encodeElements(elems []element, ins *instrumenter) []byte {
	out := wasm.AppendU32(nil, uint32(len(elems)))
	for _, e := range elems {
		out = wasm.AppendU32(out, e.flags)
		switch e.flags {
		case 0:
			out = append(out, shiftConstExpr(ins, e.offset)...)
		case 1, 3:
			out = append(out, e.kind)
		case 2:
			out = wasm.AppendU32(out, e.table)
			out = append(out, shiftConstExpr(ins, e.offset)...)
			out = append(out, e.kind)
		}
		out = wasm.AppendU32(out, uint32(len(e.funcs)))
		for _, f := range e.funcs {
			out = wasm.AppendU32(out, ins.shiftFunc(f))
		}
	}
	return out
}
