package runner

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/weisyn/vmrunner/internal/core/vm/cache"
	vmmetrics "github.com/weisyn/vmrunner/internal/core/vm/metrics"
	"github.com/weisyn/vmrunner/pkg/interfaces/vm"
	"github.com/weisyn/vmrunner/pkg/types"
)

func (r *Runner) moduleKey(codeHash []byte, fp types.Fingerprint, kind types.VMKind) ([]byte, error) {
	key, err := cache.Key(r.hasher, codeHash, fp, kind)
	if err != nil {
		return nil, types.WrapVMError(types.ClassCache, types.CodeCacheError, err)
	}
	return key, nil
}

// loadModule 按查找链取得已编译模块，调用方用完后必须 Close
func (r *Runner) loadModule(ctx context.Context, b vm.Backend, code, codeHash []byte, cfg *types.VMConfig, artifacts vm.CompiledContractCache) (vm.Module, error) {
	if len(codeHash) == 0 {
		codeHash = r.hasher.SHA256(code)
	}
	kind := b.Kind()
	fp := cfg.Fingerprint()
	key, err := r.moduleKey(codeHash, fp, kind)
	if err != nil {
		return nil, err
	}
	skey := string(key)

	if module, ok := b.Lookup(skey); ok {
		r.metrics.CacheHit(vmmetrics.LayerModule)
		return module, nil
	}
	r.metrics.CacheMiss(vmmetrics.LayerModule)

	ctx, span := r.tracer.Start(ctx, "vm.compile", trace.WithAttributes(
		attribute.String("vm.kind", kind.String()),
		attribute.Int("vm.code_len", len(code)),
	))
	defer span.End()

	// 同一键上的并发请求只做一次 prepare；编译结果由后端模块缓存去重
	v, err, shared := r.compiles.Do(skey, func() (interface{}, error) {
		return r.prepared(b, key, fp, code, cfg, artifacts)
	})
	span.SetAttributes(attribute.Bool("vm.compile_shared", shared))
	if err != nil {
		if vmErr, ok := types.AsVMError(err); ok && shared {
			r.store(artifacts, key, cache.NewErrorArtifact(kind, fp, vmErr))
		}
		return nil, err
	}
	prepared := v.([]byte)
	if shared {
		// 合并的请求可能携带不同的产物缓存
		r.store(artifacts, key, cache.NewCodeArtifact(kind, fp, prepared))
	}

	start := time.Now()
	module, err := b.Compile(ctx, skey, prepared)
	r.metrics.ObserveCompile(kind.String(), vmmetrics.PhaseCompile, time.Since(start))
	if err != nil {
		if vmErr, ok := types.AsVMError(err); ok {
			r.store(artifacts, key, cache.NewErrorArtifact(kind, fp, vmErr))
		}
		return nil, err
	}
	return module, nil
}

// prepared 从产物缓存读取插桩后的字节码，未命中时现场 prepare 并写回
func (r *Runner) prepared(b vm.Backend, key []byte, fp types.Fingerprint, code []byte, cfg *types.VMConfig, artifacts vm.CompiledContractCache) ([]byte, error) {
	kind := b.Kind()
	if artifacts != nil {
		if a, ok := r.lookupArtifact(artifacts, key, kind, fp); ok {
			if vmErr := a.VMError(); vmErr != nil {
				return nil, vmErr
			}
			return a.Code, nil
		}
	}

	start := time.Now()
	prepared, err := b.Prepare(code, cfg)
	r.metrics.ObserveCompile(kind.String(), vmmetrics.PhasePrepare, time.Since(start))
	if err != nil {
		vmErr, ok := types.AsVMError(err)
		if !ok {
			vmErr = types.WrapVMError(types.ClassCompilation, types.CodeCompileError, err)
		}
		r.store(artifacts, key, cache.NewErrorArtifact(kind, fp, vmErr))
		return nil, vmErr
	}
	r.store(artifacts, key, cache.NewCodeArtifact(kind, fp, prepared))
	return prepared, nil
}

func (r *Runner) lookupArtifact(artifacts vm.CompiledContractCache, key []byte, kind types.VMKind, fp types.Fingerprint) (*cache.Artifact, bool) {
	value, ok, err := artifacts.Get(key)
	if err != nil {
		r.metrics.CacheError(vmmetrics.OpGet)
		r.logger.Warnf("读取编译产物缓存失败，将重新编译: %v", err)
		return nil, false
	}
	if !ok {
		r.metrics.CacheMiss(vmmetrics.LayerArtifact)
		return nil, false
	}
	a, err := cache.DecodeArtifact(value, kind, fp)
	if err != nil {
		r.metrics.CacheError(vmmetrics.OpDecode)
		r.logger.Warnf("编译产物无法使用，将重新编译: %v", err)
		return nil, false
	}
	r.metrics.CacheHit(vmmetrics.LayerArtifact)
	return a, true
}

func (r *Runner) store(artifacts vm.CompiledContractCache, key []byte, a *cache.Artifact) {
	if artifacts == nil {
		return
	}
	value, err := a.Encode()
	if err != nil {
		r.metrics.CacheError(vmmetrics.OpEncode)
		r.logger.Warnf("编码编译产物失败: %v", err)
		return
	}
	if err := artifacts.Put(key, value); err != nil {
		r.metrics.CacheError(vmmetrics.OpPut)
		r.logger.Warnf("写入编译产物缓存失败: %v", err)
	}
}
