package logic

import (
	"math"

	"github.com/weisyn/vmrunner/pkg/types"
)

// Memory 合约线性内存
//
// wazero 的 api.Memory 直接满足该接口。
type Memory interface {
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
}

func memoryViolation(offset, n uint64) error {
	return executionError(types.CodeMemoryAccessViolation, "memory access [%d, +%d) out of bounds", offset, n)
}

func (l *VMLogic) memoryGet(offset, n uint64) ([]byte, error) {
	if err := l.gas.PayBase(types.ExtReadMemoryBase); err != nil {
		return nil, err
	}
	if err := l.gas.PayPerByte(types.ExtReadMemoryByte, n); err != nil {
		return nil, err
	}
	if l.memory == nil || offset > math.MaxUint32 || n > math.MaxUint32 || offset+n > math.MaxUint32+1 {
		return nil, memoryViolation(offset, n)
	}
	view, ok := l.memory.Read(uint32(offset), uint32(n))
	if !ok {
		return nil, memoryViolation(offset, n)
	}
	return append([]byte(nil), view...), nil
}

func (l *VMLogic) memorySet(offset uint64, data []byte) error {
	if err := l.gas.PayBase(types.ExtWriteMemoryBase); err != nil {
		return err
	}
	if err := l.gas.PayPerByte(types.ExtWriteMemoryByte, uint64(len(data))); err != nil {
		return err
	}
	if l.memory == nil || offset > math.MaxUint32 || offset+uint64(len(data)) > math.MaxUint32+1 {
		return memoryViolation(offset, uint64(len(data)))
	}
	if !l.memory.Write(uint32(offset), data) {
		return memoryViolation(offset, uint64(len(data)))
	}
	return nil
}

func (l *VMLogic) memoryGetBalance(offset uint64) (types.Balance, error) {
	b, err := l.memoryGet(offset, types.BalanceSize)
	if err != nil {
		return types.Balance{}, err
	}
	return types.BalanceFromLE(b)
}

func (l *VMLogic) memorySetBalance(offset uint64, v *types.Balance) error {
	return l.memorySet(offset, types.BalanceToLE(v))
}

// memoryGetU64s 读取连续的小端 u64 数组
func (l *VMLogic) memoryGetU64s(offset, count uint64) ([]uint64, error) {
	if count > math.MaxUint32/8 {
		return nil, memoryViolation(offset, count)
	}
	b, err := l.memoryGet(offset, count*8)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, count)
	for i := range out {
		for j := 7; j >= 0; j-- {
			out[i] = out[i]<<8 | uint64(b[i*8+j])
		}
	}
	return out, nil
}
