package types

import "fmt"

// VMKind 合约执行后端类型（封闭枚举）
//
// 🎯 每个取值对应一种沙箱实现；某个取值被识别但未编译进当前二进制时，
// 运行器返回 BackendUnavailable 错误，而不是回退到其他后端。
type VMKind uint8

const (
	// VMKindWazeroCompiler wazero 编译器模式（仅 amd64/arm64）
	VMKindWazeroCompiler VMKind = iota + 1
	// VMKindWazeroInterpreter wazero 解释器模式（全平台）
	VMKindWazeroInterpreter
)

// DefaultVMKind 默认后端
const DefaultVMKind = VMKindWazeroCompiler

var vmKindNames = map[VMKind]string{
	VMKindWazeroCompiler:    "wazero-compiler",
	VMKindWazeroInterpreter: "wazero-interpreter",
}

// AllVMKinds 返回全部已知的后端类型（按固定顺序）
func AllVMKinds() []VMKind {
	return []VMKind{VMKindWazeroCompiler, VMKindWazeroInterpreter}
}

// String 返回后端名称
func (k VMKind) String() string {
	if name, ok := vmKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("vmkind(%d)", uint8(k))
}

// IsKnown 是否为已识别的后端类型
func (k VMKind) IsKnown() bool {
	_, ok := vmKindNames[k]
	return ok
}

// ParseVMKind 从名称解析后端类型
func ParseVMKind(name string) (VMKind, error) {
	for kind, n := range vmKindNames {
		if n == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("未知的VM类型: %q", name)
}

// MarshalText 实现 encoding.TextMarshaler
func (k VMKind) MarshalText() ([]byte, error) {
	if !k.IsKnown() {
		return nil, fmt.Errorf("未知的VM类型: %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (k *VMKind) UnmarshalText(text []byte) error {
	kind, err := ParseVMKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}
