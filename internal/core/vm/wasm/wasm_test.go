package wasm

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLEB128RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 127, 128, 624485, math.MaxUint32} {
		got, err := NewReader(AppendU32(nil, v)).U32()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	for _, v := range []int32{0, 1, -1, 63, 64, -64, -65, math.MaxInt32, math.MinInt32} {
		got, err := NewReader(AppendS32(nil, v)).S32()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	for _, v := range []int64{0, -1, 1 << 40, math.MaxInt64, math.MinInt64} {
		got, err := NewReader(AppendS64(nil, v)).S64()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestLEB128KnownEncodings(t *testing.T) {
	assert.Equal(t, []byte{0xE5, 0x8E, 0x26}, AppendU32(nil, 624485))
	assert.Equal(t, []byte{0x7F}, AppendS32(nil, -1))
	assert.Equal(t, []byte{0xC0, 0xBB, 0x78}, AppendS32(nil, -123456))
}

func TestLEB128Malformed(t *testing.T) {
	_, err := NewReader([]byte{0x80, 0x80}).U32()
	assert.ErrorIs(t, err, ErrUnexpectedEOF)

	_, err = NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}).U32()
	assert.Error(t, err)

	// 第 5 字节携带超出 32 位的有效位
	_, err = NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x7F}).U32()
	assert.Error(t, err)
}

func TestNameRejectsInvalidUTF8(t *testing.T) {
	_, err := NewReader([]byte{0x02, 0xC3, 0x28}).Name()
	assert.Error(t, err)

	name, err := NewReader(AppendName(nil, "env")).Name()
	require.NoError(t, err)
	assert.Equal(t, "env", name)
}

func TestFuncTypeEncodeDecode(t *testing.T) {
	ft := FuncType{Params: []ValueType{ValueTypeI64, ValueTypeI64}, Results: []ValueType{ValueTypeI64}}
	got, err := ReadFuncType(NewReader(ft.Encode()))
	require.NoError(t, err)
	assert.True(t, ft.Equal(got))
	assert.False(t, ft.Equal(FuncType{Params: ft.Params}))
}

func TestDecodeInstr(t *testing.T) {
	body := []byte{
		OpI32Const, 0x7F, // i32.const -1
		OpCall, 0x05,
		OpCallIndirect, 0x02, 0x00,
		OpBrTable, 0x02, 0x00, 0x01, 0x02,
		OpBlock, ValueTypeI32,
		OpPrefixMisc, 0x0A, 0x00, 0x00, // memory.copy
		OpI32Load, 0x02, 0x10,
		OpEnd,
	}
	r := NewReader(body)
	var ops []byte
	var instrs []Instr
	for r.Len() > 0 {
		in, err := DecodeInstr(r)
		require.NoError(t, err)
		ops = append(ops, in.Op)
		instrs = append(instrs, in)
	}
	assert.Equal(t, []byte{OpI32Const, OpCall, OpCallIndirect, OpBrTable, OpBlock, OpPrefixMisc, OpI32Load, OpEnd}, ops)
	assert.Equal(t, uint32(5), instrs[1].Index)
	assert.Equal(t, uint32(2), instrs[2].Index)
	assert.Equal(t, []ValueType{ValueTypeI32}, instrs[4].Types)
	assert.Equal(t, MiscMemoryCopy, instrs[5].Sub)
	assert.Equal(t, body[instrs[3].Start:instrs[3].End], []byte{OpBrTable, 0x02, 0x00, 0x01, 0x02})
	assert.True(t, instrs[3].IsControl())
	assert.False(t, instrs[1].IsControl())
}

func TestDecodeInstrUnsupported(t *testing.T) {
	for name, body := range map[string][]byte{
		"tail call": {OpReturnCall, 0x00},
		"simd":      {OpPrefixSIMD, 0x00},
		"atomics":   {OpPrefixAtomic, 0x00},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeInstr(NewReader(body))
			var unsupported *UnsupportedError
			assert.True(t, errors.As(err, &unsupported), "got %v", err)
		})
	}

	_, err := DecodeInstr(NewReader([]byte{0xFF}))
	var invalid *InvalidError
	assert.True(t, errors.As(err, &invalid), "got %v", err)
}

func TestSectionRank(t *testing.T) {
	assert.Less(t, SectionRank(SectionElement), SectionRank(SectionDataCount))
	assert.Less(t, SectionRank(SectionDataCount), SectionRank(SectionCode))
	assert.Equal(t, -1, SectionRank(0x20))
	assert.True(t, IsFloatOpcode(OpF64Const))
	assert.False(t, IsFloatOpcode(OpI64Extend32S))
}
