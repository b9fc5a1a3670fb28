//go:build amd64 || arm64

package wasm

import (
	"github.com/weisyn/vmrunner/internal/core/engines"
	enginepkg "github.com/weisyn/vmrunner/internal/core/engines/wasm/engine"
	"github.com/weisyn/vmrunner/pkg/types"
)

// wazero 只在 amd64/arm64 上生成本机代码，其他平台不注册编译器后端
func init() {
	engines.Register(types.VMKindWazeroCompiler, factory(types.VMKindWazeroCompiler, enginepkg.ModeCompiler))
}
