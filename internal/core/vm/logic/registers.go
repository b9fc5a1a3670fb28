package logic

import (
	"math"

	"github.com/weisyn/vmrunner/pkg/types"
)

// RegisterLenAbsent register_len 对不存在寄存器的返回值
const RegisterLenAbsent = math.MaxUint64

func (l *VMLogic) writeRegister(id uint64, data []byte) error {
	if err := l.gas.PayBase(types.ExtWriteRegisterBase); err != nil {
		return err
	}
	if err := l.gas.PayPerByte(types.ExtWriteRegisterByte, uint64(len(data))); err != nil {
		return err
	}
	lim := &l.cfg.Limits
	if uint64(len(data)) > lim.MaxRegisterSize {
		return limitError(types.CodeRegisterSizeExceeded, "register %d: %d bytes exceed %d", id, len(data), lim.MaxRegisterSize)
	}
	prev, exists := l.registers[id]
	if !exists && uint64(len(l.registers)) >= lim.MaxNumberRegisters {
		return limitError(types.CodeTooManyRegisters, "more than %d registers", lim.MaxNumberRegisters)
	}
	total := l.registersTotal - uint64(len(prev)) + uint64(len(data))
	if total > lim.RegistersMemoryLimit {
		return limitError(types.CodeRegistersMemoryExceeded, "registers hold %d bytes, limit %d", total, lim.RegistersMemoryLimit)
	}
	l.registers[id] = append([]byte(nil), data...)
	l.registersTotal = total
	return nil
}

// ReadRegister read_register(register_id, ptr)
func (l *VMLogic) ReadRegister(id, ptr uint64) error {
	if err := l.gas.PayBase(types.ExtBase); err != nil {
		return err
	}
	data, ok := l.registers[id]
	if !ok {
		return executionError(types.CodeInvalidRegisterID, "register %d is not set", id)
	}
	if err := l.gas.PayBase(types.ExtReadRegisterBase); err != nil {
		return err
	}
	if err := l.gas.PayPerByte(types.ExtReadRegisterByte, uint64(len(data))); err != nil {
		return err
	}
	return l.memorySet(ptr, data)
}

// RegisterLen register_len(register_id)
func (l *VMLogic) RegisterLen(id uint64) (uint64, error) {
	if err := l.gas.PayBase(types.ExtBase); err != nil {
		return 0, err
	}
	data, ok := l.registers[id]
	if !ok {
		return RegisterLenAbsent, nil
	}
	return uint64(len(data)), nil
}

// WriteRegister write_register(register_id, data_len, data_ptr)
func (l *VMLogic) WriteRegister(id, dataLen, dataPtr uint64) error {
	if err := l.gas.PayBase(types.ExtBase); err != nil {
		return err
	}
	data, err := l.memoryGet(dataPtr, dataLen)
	if err != nil {
		return err
	}
	return l.writeRegister(id, data)
}

// Register 返回寄存器内容（测试与调试用）
func (l *VMLogic) Register(id uint64) ([]byte, bool) {
	data, ok := l.registers[id]
	return data, ok
}
