package logic

import (
	"math"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/weisyn/vmrunner/pkg/types"
)

// ============================================================================
//                         返回值、panic、日志、哈希
// ============================================================================

// readUTF8 读取 UTF-8 字符串；n 为 MaxUint64 时按 NUL 结尾读取
func (l *VMLogic) readUTF8(n, ptr uint64) (string, error) {
	if err := l.gas.PayBase(types.ExtUTF8DecodingBase); err != nil {
		return "", err
	}
	var buf []byte
	if n != math.MaxUint64 {
		b, err := l.memoryGet(ptr, n)
		if err != nil {
			return "", err
		}
		buf = b
	} else {
		for i := uint64(0); ; i++ {
			b, err := l.memoryGet(ptr+i, 1)
			if err != nil {
				return "", err
			}
			if b[0] == 0 {
				break
			}
			buf = append(buf, b[0])
		}
	}
	if err := l.gas.PayPerByte(types.ExtUTF8DecodingByte, uint64(len(buf))); err != nil {
		return "", err
	}
	if !utf8.Valid(buf) {
		return "", executionError(types.CodeBadUTF8, "string at %d is not valid UTF-8", ptr)
	}
	return string(buf), nil
}

// ValueReturn value_return(value_len, value_ptr)
func (l *VMLogic) ValueReturn(n, ptr uint64) error {
	if err := l.gas.PayBase(types.ExtBase); err != nil {
		return err
	}
	if n > l.cfg.Limits.MaxLengthReturnedData {
		return limitError(types.CodeReturnedValueTooLong, "returned value of %d bytes exceeds %d", n, l.cfg.Limits.MaxLengthReturnedData)
	}
	value, err := l.memoryGet(ptr, n)
	if err != nil {
		return err
	}
	l.returnData = types.ReturnValue(value)
	return nil
}

// Panic panic()
func (l *VMLogic) Panic() error {
	if err := l.gas.PayBase(types.ExtBase); err != nil {
		return err
	}
	return executionError(types.CodeGuestPanic, "explicit guest panic")
}

// PanicUTF8 panic_utf8(len, ptr)
func (l *VMLogic) PanicUTF8(n, ptr uint64) error {
	if err := l.gas.PayBase(types.ExtBase); err != nil {
		return err
	}
	msg, err := l.readUTF8(n, ptr)
	if err != nil {
		return err
	}
	return executionError(types.CodeGuestPanic, "%s", msg)
}

func (l *VMLogic) appendLog(msg string) error {
	lim := &l.cfg.Limits
	if uint64(len(l.logs)) >= lim.MaxNumberLogs {
		return limitError(types.CodeNumberOfLogsExceeded, "more than %d logs", lim.MaxNumberLogs)
	}
	total := l.totalLogLength + uint64(len(msg))
	if total > lim.MaxTotalLogLength {
		return limitError(types.CodeTotalLogLengthExceeded, "logs total %d bytes, limit %d", total, lim.MaxTotalLogLength)
	}
	if err := l.gas.PayBase(types.ExtLogBase); err != nil {
		return err
	}
	if err := l.gas.PayPerByte(types.ExtLogByte, uint64(len(msg))); err != nil {
		return err
	}
	l.totalLogLength = total
	l.logs = append(l.logs, msg)
	return nil
}

// LogUTF8 log_utf8(len, ptr)
func (l *VMLogic) LogUTF8(n, ptr uint64) error {
	if err := l.gas.PayBase(types.ExtBase); err != nil {
		return err
	}
	msg, err := l.readUTF8(n, ptr)
	if err != nil {
		return err
	}
	return l.appendLog(msg)
}

// LogUTF16 log_utf16(len, ptr)，len 为字节数
func (l *VMLogic) LogUTF16(n, ptr uint64) error {
	if err := l.gas.PayBase(types.ExtBase); err != nil {
		return err
	}
	if err := l.gas.PayBase(types.ExtUTF8DecodingBase); err != nil {
		return err
	}
	if n%2 != 0 {
		return executionError(types.CodeBadUTF8, "utf-16 string has odd length %d", n)
	}
	raw, err := l.memoryGet(ptr, n)
	if err != nil {
		return err
	}
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
	}
	for i := 0; i < len(units); i++ {
		if !utf16.IsSurrogate(rune(units[i])) {
			continue
		}
		// 高代理项后必须紧跟低代理项
		if units[i] < 0xDC00 && i+1 < len(units) && units[i+1] >= 0xDC00 && units[i+1] <= 0xDFFF {
			i++
			continue
		}
		return executionError(types.CodeBadUTF8, "unpaired surrogate in utf-16 string")
	}
	msg := string(utf16.Decode(units))
	if err := l.gas.PayPerByte(types.ExtUTF8DecodingByte, n); err != nil {
		return err
	}
	return l.appendLog(msg)
}

// Sha256 sha256(value_len, value_ptr, register_id)
func (l *VMLogic) Sha256(n, ptr, reg uint64) error {
	if err := l.gas.PayBase(types.ExtSha256Base); err != nil {
		return err
	}
	value, err := l.memoryGet(ptr, n)
	if err != nil {
		return err
	}
	if err := l.gas.PayPerByte(types.ExtSha256Byte, n); err != nil {
		return err
	}
	digest, err := l.ext.Sha256(value)
	if err != nil {
		return externalError(err)
	}
	return l.writeRegister(reg, digest)
}

// Keccak256 keccak256(value_len, value_ptr, register_id)
func (l *VMLogic) Keccak256(n, ptr, reg uint64) error {
	if err := l.gas.PayBase(types.ExtKeccak256Base); err != nil {
		return err
	}
	value, err := l.memoryGet(ptr, n)
	if err != nil {
		return err
	}
	if err := l.gas.PayPerByte(types.ExtKeccak256Byte, n); err != nil {
		return err
	}
	if l.hasher == nil {
		return types.NewVMError(types.ClassHostContract, types.CodeExternalError, "no hasher configured for keccak256")
	}
	return l.writeRegister(reg, l.hasher.Keccak256(value))
}

// Ripemd160 ripemd160(value_len, value_ptr, register_id)，按 64 字节消息块计费
func (l *VMLogic) Ripemd160(n, ptr, reg uint64) error {
	if err := l.gas.PayBase(types.ExtRipemd160Base); err != nil {
		return err
	}
	value, err := l.memoryGet(ptr, n)
	if err != nil {
		return err
	}
	// 填充至少 9 字节（0x80 + 8 字节长度）
	blocks := (n + 9 + 63) / 64
	if err := l.gas.PayPerByte(types.ExtRipemd160Block, blocks); err != nil {
		return err
	}
	if l.hasher == nil {
		return types.NewVMError(types.ClassHostContract, types.CodeExternalError, "no hasher configured for ripemd160")
	}
	return l.writeRegister(reg, l.hasher.RIPEMD160(value))
}

// ============================================================================
//                              插桩注入的导入
// ============================================================================

// WasmGas gas(opcodes)
func (l *VMLogic) WasmGas(opcodes uint32) error {
	return l.gas.PayWasmOps(opcodes)
}

// StackExceeded stack_exceeded()
func (l *VMLogic) StackExceeded() error {
	return types.NewVMError(types.ClassResourceLimit, types.CodeStackHeightExceeded,
		"call depth exceeds %d", l.cfg.Limits.MaxStackHeight)
}
