package wasm

// AppendU32 追加无符号 LEB128
func AppendU32(dst []byte, v uint32) []byte {
	return AppendU64(dst, uint64(v))
}

// AppendU64 追加无符号 LEB128
func AppendU64(dst []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			dst = append(dst, b|0x80)
			continue
		}
		return append(dst, b)
	}
}

// AppendS32 追加有符号 LEB128
func AppendS32(dst []byte, v int32) []byte {
	return AppendS64(dst, int64(v))
}

// AppendS64 追加有符号 LEB128
func AppendS64(dst []byte, v int64) []byte {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(dst, b)
		}
		dst = append(dst, b|0x80)
	}
}

// AppendName 追加长度前缀名称
func AppendName(dst []byte, name string) []byte {
	dst = AppendU32(dst, uint32(len(name)))
	return append(dst, name...)
}

// AppendSection 追加一个完整段（id + 长度 + 内容）
func AppendSection(dst []byte, id SectionID, payload []byte) []byte {
	dst = append(dst, id)
	dst = AppendU32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// AppendVec 追加 vec 前缀计数与已编码元素
func AppendVec(dst []byte, items [][]byte) []byte {
	dst = AppendU32(dst, uint32(len(items)))
	for _, it := range items {
		dst = append(dst, it...)
	}
	return dst
}

// FuncType 函数签名
type FuncType struct {
	Params  []ValueType
	Results []ValueType
}

// Equal 签名是否相同
func (t FuncType) Equal(o FuncType) bool {
	return string(t.Params) == string(o.Params) && string(t.Results) == string(o.Results)
}

// Encode 编码为类型段条目
func (t FuncType) Encode() []byte {
	out := []byte{FuncTypeForm}
	out = AppendU32(out, uint32(len(t.Params)))
	out = append(out, t.Params...)
	out = AppendU32(out, uint32(len(t.Results)))
	return append(out, t.Results...)
}

// ReadFuncType 读取类型段条目
func ReadFuncType(r *Reader) (FuncType, error) {
	form, err := r.Byte()
	if err != nil {
		return FuncType{}, err
	}
	if form != FuncTypeForm {
		return FuncType{}, errInvalid("type form 0x%x", form)
	}
	params, err := readValueTypes(r)
	if err != nil {
		return FuncType{}, err
	}
	results, err := readValueTypes(r)
	if err != nil {
		return FuncType{}, err
	}
	return FuncType{Params: params, Results: results}, nil
}

func readValueTypes(r *Reader) ([]ValueType, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	b, err := r.Bytes(int(n))
	if err != nil {
		return nil, err
	}
	for _, t := range b {
		if !IsValueType(t) {
			return nil, errInvalid("value type 0x%x", t)
		}
	}
	return append([]ValueType(nil), b...), nil
}
