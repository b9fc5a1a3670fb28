package wasm

// Instr 解码后的单条指令
type Instr struct {
	Op  byte
	Sub uint32 // 0xFC 前缀的子操作码

	// Index call / ref.func 的函数下标；call_indirect 的类型下标
	Index uint32
	// Types 块类型或 select 显式类型中出现的值类型
	Types []ValueType

	// Start/End 指令在函数体中的字节区间（含操作码）
	Start int
	End   int
}

// IsControl 是否结束一个直线代码段
func (in *Instr) IsControl() bool {
	switch in.Op {
	case OpUnreachable, OpBlock, OpLoop, OpIf, OpElse, OpEnd,
		OpBr, OpBrIf, OpBrTable, OpReturn:
		return true
	}
	return false
}

// DecodeInstr 从 r 读取一条指令
func DecodeInstr(r *Reader) (Instr, error) {
	in := Instr{Start: r.Offset()}
	op, err := r.Byte()
	if err != nil {
		return in, err
	}
	in.Op = op

	switch {
	case op == OpUnreachable, op == OpNop, op == OpElse, op == OpEnd, op == OpReturn,
		op == OpDrop, op == OpSelect, op == OpRefIsNull:
		// 无立即数

	case op == OpBlock, op == OpLoop, op == OpIf:
		if err := readBlockType(r, &in); err != nil {
			return in, err
		}

	case op == OpBr, op == OpBrIf,
		op == OpLocalGet, op == OpLocalSet, op == OpLocalTee,
		op == OpGlobalGet, op == OpGlobalSet,
		op == OpTableGet, op == OpTableSet:
		if in.Index, err = r.U32(); err != nil {
			return in, err
		}

	case op == OpBrTable:
		n, err := r.U32()
		if err != nil {
			return in, err
		}
		for i := uint32(0); i <= n; i++ { // n 个目标加一个默认目标
			if _, err := r.U32(); err != nil {
				return in, err
			}
		}

	case op == OpCall, op == OpRefFunc:
		if in.Index, err = r.U32(); err != nil {
			return in, err
		}

	case op == OpCallIndirect:
		if in.Index, err = r.U32(); err != nil {
			return in, err
		}
		if _, err := r.U32(); err != nil { // table index
			return in, err
		}

	case op == OpReturnCall, op == OpReturnCallIndirect:
		return in, errUnsupported("tail call")

	case op == OpSelectTyped:
		n, err := r.U32()
		if err != nil {
			return in, err
		}
		b, err := r.Bytes(int(n))
		if err != nil {
			return in, err
		}
		for _, t := range b {
			if !IsValueType(t) {
				return in, errInvalid("select type 0x%x", t)
			}
		}
		in.Types = append(in.Types, b...)

	case op >= OpI32Load && op <= OpI64Store32:
		if _, err := r.U32(); err != nil { // align
			return in, err
		}
		if _, err := r.U32(); err != nil { // offset
			return in, err
		}

	case op == OpMemorySize, op == OpMemoryGrow:
		b, err := r.Byte()
		if err != nil {
			return in, err
		}
		if b != 0 {
			return in, errUnsupported("multiple memories")
		}

	case op == OpI32Const:
		if _, err := r.S32(); err != nil {
			return in, err
		}
	case op == OpI64Const:
		if _, err := r.S64(); err != nil {
			return in, err
		}
	case op == OpF32Const:
		if _, err := r.Bytes(4); err != nil {
			return in, err
		}
	case op == OpF64Const:
		if _, err := r.Bytes(8); err != nil {
			return in, err
		}

	case op >= 0x45 && op <= OpI64Extend32S:
		// 数值运算，无立即数

	case op == OpRefNull:
		t, err := r.Byte()
		if err != nil {
			return in, err
		}
		if t != ValueTypeFuncref && t != ValueTypeExternref {
			return in, errInvalid("ref.null type 0x%x", t)
		}

	case op == OpPrefixMisc:
		if err := readMisc(r, &in); err != nil {
			return in, err
		}

	case op == OpPrefixSIMD:
		return in, errUnsupported("simd")
	case op == OpPrefixAtomic:
		return in, errUnsupported("threads")

	case op >= 0x06 && op <= 0x09, op == 0x18, op == 0x19:
		return in, errUnsupported("exception handling")
	case op == 0x14, op == 0x15:
		return in, errUnsupported("typed function references")

	default:
		return in, errInvalid("opcode 0x%x", op)
	}

	in.End = r.Offset()
	return in, nil
}

func readBlockType(r *Reader, in *Instr) error {
	if r.Len() == 0 {
		return ErrUnexpectedEOF
	}
	b := r.buf[r.off]
	if b == BlockTypeEmpty {
		r.off++
		return nil
	}
	if IsValueType(b) {
		r.off++
		in.Types = append(in.Types, b)
		return nil
	}
	idx, err := r.S33()
	if err != nil {
		return err
	}
	if idx < 0 {
		return errInvalid("block type %d", idx)
	}
	// 多值块类型引用类型段，类型本身在类型段中检查
	return nil
}

func readMisc(r *Reader, in *Instr) error {
	sub, err := r.U32()
	if err != nil {
		return err
	}
	in.Sub = sub
	switch {
	case sub <= MiscI64TruncSatF64U:
		// 无立即数
	case sub == MiscMemoryInit:
		if _, err := r.U32(); err != nil {
			return err
		}
		if _, err := r.Byte(); err != nil {
			return err
		}
	case sub == MiscDataDrop, sub == MiscElemDrop,
		sub == MiscTableGrow, sub == MiscTableSize, sub == MiscTableFill:
		if _, err := r.U32(); err != nil {
			return err
		}
	case sub == MiscMemoryCopy:
		if _, err := r.Bytes(2); err != nil {
			return err
		}
	case sub == MiscMemoryFill:
		if _, err := r.Byte(); err != nil {
			return err
		}
	case sub == MiscTableInit, sub == MiscTableCopy:
		if _, err := r.U32(); err != nil {
			return err
		}
		if _, err := r.U32(); err != nil {
			return err
		}
	default:
		return errInvalid("0xfc sub-opcode %d", sub)
	}
	return nil
}
