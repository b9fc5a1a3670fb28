package wasm

import "fmt"

// InvalidError 结构非法
type InvalidError struct {
	msg string
}

func (e *InvalidError) Error() string { return "invalid wasm: " + e.msg }

func errInvalid(format string, args ...interface{}) error {
	return &InvalidError{msg: fmt.Sprintf(format, args...)}
}

// UnsupportedError 结构合法但使用了不支持的特性
type UnsupportedError struct {
	Feature string
}

func (e *UnsupportedError) Error() string { return "unsupported wasm feature: " + e.Feature }

func errUnsupported(format string, args ...interface{}) error {
	return &UnsupportedError{Feature: fmt.Sprintf(format, args...)}
}
