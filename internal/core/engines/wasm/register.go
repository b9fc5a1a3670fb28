package wasm

import (
	"context"

	"github.com/weisyn/vmrunner/internal/core/engines"
	enginepkg "github.com/weisyn/vmrunner/internal/core/engines/wasm/engine"
	"github.com/weisyn/vmrunner/pkg/interfaces/vm"
	"github.com/weisyn/vmrunner/pkg/types"
)

func factory(kind types.VMKind, mode enginepkg.Mode) engines.Factory {
	return func(ctx context.Context, opts engines.Options) (vm.Backend, error) {
		cfg := enginepkg.DefaultConfig(mode)
		if opts.MemoryLimitPages != 0 {
			cfg.MemoryLimitPages = opts.MemoryLimitPages
		}
		cfg.CompilationCacheDir = opts.CompilationCacheDir
		return NewBackend(ctx, kind, cfg, opts.ModuleCacheSize, opts.Hasher, opts.Logger)
	}
}

func init() {
	engines.Register(types.VMKindWazeroInterpreter, factory(types.VMKindWazeroInterpreter, enginepkg.ModeInterpreter))
}
