package wasm

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrUnexpectedEOF 输入提前结束
var ErrUnexpectedEOF = errors.New("unexpected end of wasm binary")

// Reader 字节切片上的顺序读取器
type Reader struct {
	buf []byte
	off int
}

// NewReader 创建读取器
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Offset 当前偏移
func (r *Reader) Offset() int { return r.off }

// Len 剩余字节数
func (r *Reader) Len() int { return len(r.buf) - r.off }

// Slice 返回 [from, 当前偏移) 的原始字节
func (r *Reader) Slice(from int) []byte { return r.buf[from:r.off] }

// Byte 读取单字节
func (r *Reader) Byte() (byte, error) {
	if r.off >= len(r.buf) {
		return 0, ErrUnexpectedEOF
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

// Bytes 读取 n 字节（不复制）
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, ErrUnexpectedEOF
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// U32 读取无符号 LEB128（最多 5 字节）
func (r *Reader) U32() (uint32, error) {
	v, err := r.uleb(32)
	return uint32(v), err
}

// U64 读取无符号 LEB128（最多 10 字节）
func (r *Reader) U64() (uint64, error) {
	return r.uleb(64)
}

// S32 读取有符号 LEB128
func (r *Reader) S32() (int32, error) {
	v, err := r.sleb(32)
	return int32(v), err
}

// S33 读取块类型中的有符号 33 位整数
func (r *Reader) S33() (int64, error) {
	return r.sleb(33)
}

// S64 读取有符号 LEB128
func (r *Reader) S64() (int64, error) {
	return r.sleb(64)
}

func (r *Reader) uleb(bits uint) (uint64, error) {
	var (
		result uint64
		shift  uint
	)
	maxBytes := int((bits + 6) / 7)
	for i := 0; i < maxBytes; i++ {
		b, err := r.Byte()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			if bits < 64 && result>>bits != 0 {
				return 0, fmt.Errorf("leb128 value overflows u%d", bits)
			}
			return result, nil
		}
		shift += 7
	}
	return 0, fmt.Errorf("leb128 encoding longer than %d bytes", maxBytes)
}

func (r *Reader) sleb(bits uint) (int64, error) {
	var (
		result int64
		shift  uint
		b      byte
		err    error
	)
	maxBytes := int((bits + 6) / 7)
	for i := 0; ; i++ {
		if i >= maxBytes {
			return 0, fmt.Errorf("leb128 encoding longer than %d bytes", maxBytes)
		}
		b, err = r.Byte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, nil
}

// Name 读取长度前缀的 UTF-8 名称
func (r *Reader) Name() (string, error) {
	n, err := r.U32()
	if err != nil {
		return "", err
	}
	b, err := r.Bytes(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.New("name is not valid utf-8")
	}
	return string(b), nil
}
