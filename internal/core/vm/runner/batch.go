package runner

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/weisyn/vmrunner/pkg/interfaces/vm"
	"github.com/weisyn/vmrunner/pkg/types"
)

// PrecompileRequest 批量预编译的单个合约
type PrecompileRequest struct {
	CodeHash []byte
	Code     []byte
}

// PrecompileAll 并行预编译一批合约，parallelism ≤ 0 表示不限制
//
// 返回与 reqs 等长的错误切片；ctx 取消后尚未开始的条目记录 ctx.Err()。
func (r *Runner) PrecompileAll(ctx context.Context, kind types.VMKind, reqs []PrecompileRequest, cfg *types.VMConfig, cache vm.CompiledContractCache, parallelism int) []error {
	errs := make([]error, len(reqs))
	var g errgroup.Group
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i := range reqs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = r.Precompile(ctx, kind, reqs[i].Code, reqs[i].CodeHash, cfg, cache)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}
