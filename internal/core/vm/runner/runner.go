// Package runner 合约执行入口
//
// 🎯 **职责**：
//   - 按 (代码哈希, 配置指纹, 后端类型) 查找或构建已编译模块
//   - 在调用方 goroutine 上实例化并执行合约方法
//   - 预编译：只做 prepare + compile，把产物写入缓存
//
// 📋 **模块查找链**：
//  1. 后端进程内模块 LRU
//  2. 编译产物缓存（缓存的编译错误直接重放）
//  3. prepare + compile，结果写回产物缓存
//
// 缓存读写失败只记录日志和指标，退化为重新编译，不会让调用失败。
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/singleflight"

	"github.com/weisyn/vmrunner/internal/core/engines"
	_ "github.com/weisyn/vmrunner/internal/core/engines/wasm" // 注册 wazero 后端
	"github.com/weisyn/vmrunner/internal/core/infrastructure/crypto/hash"
	corelog "github.com/weisyn/vmrunner/internal/core/infrastructure/log"
	vmmetrics "github.com/weisyn/vmrunner/internal/core/vm/metrics"
	"github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/crypto"
	"github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/vmrunner/pkg/interfaces/vm"
	"github.com/weisyn/vmrunner/pkg/types"
)

// tracerName otel instrumentation 名称
const tracerName = "github.com/weisyn/vmrunner/internal/core/vm/runner"

// Config 运行器配置
type Config struct {
	// DefaultKind Run 使用的后端
	DefaultKind types.VMKind
	// ModuleCacheSize 每个后端的进程内模块 LRU 容量，0 使用默认值
	ModuleCacheSize int
	// CompilationCacheDir wazero 原生编译缓存目录，空表示不启用
	CompilationCacheDir string
	// EnableTracing 为 true 时通过全局 TracerProvider 创建 span
	EnableTracing bool
}

// DefaultConfig 默认配置：优先编译器后端，当前平台不可用时使用解释器
func DefaultConfig() Config {
	kind := types.VMKindWazeroInterpreter
	if engines.IsRegistered(types.VMKindWazeroCompiler) {
		kind = types.VMKindWazeroCompiler
	}
	return Config{DefaultKind: kind}
}

// Request 单次合约调用
type Request struct {
	// CodeHash 为空时由运行器对 Code 计算 SHA-256
	CodeHash []byte
	Code     []byte
	Method   string

	Ext            vm.External
	Context        *types.VMContext
	Config         *types.VMConfig
	Fees           *types.RuntimeFeesConfig
	PromiseResults []types.PromiseResult

	ProtocolVersion uint32
	// Cache 可选的编译产物缓存
	Cache vm.CompiledContractCache
}

func (req *Request) validate() error {
	switch {
	case req.Ext == nil:
		return invalidRequest("host state is nil")
	case req.Context == nil:
		return invalidRequest("execution context is nil")
	case req.Config == nil:
		return invalidRequest("vm config is nil")
	case req.Fees == nil:
		return invalidRequest("fees config is nil")
	}
	return nil
}

func invalidRequest(msg string) error {
	return types.NewVMError(types.ClassHostContract, types.CodeInvalidContext, "%s", msg)
}

// Runner 合约执行入口
//
// 并发安全；每次调用在调用方 goroutine 上单线程执行。
type Runner struct {
	cfg     Config
	hasher  crypto.HashManager
	logger  log.Logger
	metrics *vmmetrics.Metrics
	tracer  trace.Tracer

	// compiles 合并同一缓存键上的并发 prepare
	compiles singleflight.Group

	mu       sync.Mutex
	backends map[types.VMKind]vm.Backend
	closed   bool
}

// New 创建运行器
//
// hasher / logger / metrics 可为 nil：分别使用默认哈希服务、静默日志和未注册的指标。
func New(cfg Config, hasher crypto.HashManager, logger log.Logger, metrics *vmmetrics.Metrics) *Runner {
	if hasher == nil {
		hasher = hash.NewHashService()
	}
	if metrics == nil {
		metrics = vmmetrics.New(nil)
	}
	var tracer trace.Tracer
	if cfg.EnableTracing {
		tracer = otel.Tracer(tracerName)
	} else {
		tracer = noop.NewTracerProvider().Tracer(tracerName)
	}
	return &Runner{
		cfg:      cfg,
		hasher:   hasher,
		logger:   corelog.NewModuleLogger(logger, corelog.ModuleRunner),
		metrics:  metrics,
		tracer:   tracer,
		backends: make(map[types.VMKind]vm.Backend),
	}
}

// DefaultKind Run 使用的后端
func (r *Runner) DefaultKind() types.VMKind { return r.cfg.DefaultKind }

// Hasher 运行器使用的哈希服务
func (r *Runner) Hasher() crypto.HashManager { return r.hasher }

// Backend 获取（必要时创建）指定类型的后端
//
// 未编译进当前二进制的类型返回 BackendUnavailable，不会回退到其他后端。
func (r *Runner) Backend(ctx context.Context, kind types.VMKind) (vm.Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, types.NewVMError(types.ClassBackendUnavailable, types.CodeBackendUnavailable, "runner is closed")
	}
	if b, ok := r.backends[kind]; ok {
		return b, nil
	}
	b, err := engines.New(ctx, kind, engines.Options{
		ModuleCacheSize:     r.cfg.ModuleCacheSize,
		CompilationCacheDir: r.cfg.CompilationCacheDir,
		Hasher:              r.hasher,
		Logger:              r.logger,
	})
	if err != nil {
		if _, ok := types.AsVMError(err); ok {
			return nil, err
		}
		return nil, types.WrapVMError(types.ClassBackendUnavailable, types.CodeBackendUnavailable, err)
	}
	r.backends[kind] = b
	r.logger.Infof("已创建 %s 后端", kind)
	return b, nil
}

// ==================== 执行 ====================

// Run 使用默认后端执行合约方法
//
// 返回值恰好一个非 nil；错误均为 *types.VMError。
func (r *Runner) Run(ctx context.Context, req *Request) (*types.VMOutcome, error) {
	return r.run(ctx, r.cfg.DefaultKind, req, nil)
}

// RunVM 使用指定后端执行合约方法
func (r *Runner) RunVM(ctx context.Context, kind types.VMKind, req *Request) (*types.VMOutcome, error) {
	return r.run(ctx, kind, req, nil)
}

// RunProfiled 执行并累加剖析数据
//
// 无论成功与否，调用结束后把燃烧的燃料写入 profile。
func (r *Runner) RunProfiled(ctx context.Context, kind types.VMKind, req *Request, profile *types.ProfileData) (*types.VMOutcome, error) {
	if profile == nil {
		profile = types.NewProfileData()
	}
	return r.run(ctx, kind, req, profile)
}

// RunCompiled 在已编译模块上执行合约方法
//
// module 来自 Compile；req.Code 只用于计算编译费用，req.Cache 被忽略。
func (r *Runner) RunCompiled(ctx context.Context, module vm.Module, req *Request, profile *types.ProfileData) (*types.VMOutcome, error) {
	return r.execute(ctx, module.Kind(), req, profile, module)
}

func (r *Runner) run(ctx context.Context, kind types.VMKind, req *Request, profile *types.ProfileData) (*types.VMOutcome, error) {
	return r.execute(ctx, kind, req, profile, nil)
}

// execute module 为 nil 时按查找链加载
func (r *Runner) execute(ctx context.Context, kind types.VMKind, req *Request, profile *types.ProfileData, module vm.Module) (out *types.VMOutcome, err error) {
	ctx, span := r.tracer.Start(ctx, "vm.run", trace.WithAttributes(
		attribute.String("vm.kind", kind.String()),
		attribute.String("vm.method", req.Method),
		attribute.Int64("vm.protocol_version", int64(req.ProtocolVersion)),
		attribute.Bool("vm.precompiled", module != nil),
	))
	defer func() { r.finishRun(span, kind, out, err, profile) }()

	if err := req.validate(); err != nil {
		return nil, err
	}
	b, err := r.Backend(ctx, kind)
	if err != nil {
		return nil, err
	}
	if module == nil {
		module, err = r.loadModule(ctx, b, req.Code, req.CodeHash, req.Config, req.Cache)
		if err != nil {
			return nil, err
		}
		defer func() { _ = module.Close(ctx) }()
	}

	return b.Run(ctx, module, &vm.Invocation{
		Method:         req.Method,
		Ext:            req.Ext,
		Context:        req.Context,
		Config:         req.Config,
		Fees:           req.Fees,
		PromiseResults: req.PromiseResults,
		CodeLen:        uint64(len(req.Code)),
		Profile:        profile,
	})
}

func (r *Runner) finishRun(span trace.Span, kind types.VMKind, out *types.VMOutcome, err error, profile *types.ProfileData) {
	defer span.End()

	var burnt types.Gas
	result := "ok"
	if out != nil {
		burnt = out.BurntGas
	} else if vmErr, ok := types.AsVMError(err); ok {
		result = vmErr.Class.String()
		if vmErr.Gas != nil {
			burnt = vmErr.Gas.BurntGas
		}
	} else if err != nil {
		result = "unknown"
	}
	if profile != nil {
		profile.SetBurntGas(burnt)
	}
	r.metrics.ObserveRun(kind.String(), result, burnt)

	span.SetAttributes(attribute.Int64("vm.burnt_gas", int64(burnt)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
	}
}

// ==================== 预编译 ====================

// Compile 按查找链取得已编译模块，调用方用完后必须 Close
func (r *Runner) Compile(ctx context.Context, kind types.VMKind, code, codeHash []byte, cfg *types.VMConfig, cache vm.CompiledContractCache) (vm.Module, error) {
	if cfg == nil {
		return nil, invalidRequest("vm config is nil")
	}
	b, err := r.Backend(ctx, kind)
	if err != nil {
		return nil, err
	}
	return r.loadModule(ctx, b, code, codeHash, cfg, cache)
}

// Precompile 只做 prepare + compile，把产物（或编译错误）写入 cache
//
// 返回编译错误本身；缓存读写失败不会作为错误返回。
func (r *Runner) Precompile(ctx context.Context, kind types.VMKind, code, codeHash []byte, cfg *types.VMConfig, cache vm.CompiledContractCache) (err error) {
	ctx, span := r.tracer.Start(ctx, "vm.precompile", trace.WithAttributes(attribute.String("vm.kind", kind.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, types.ErrorClassOf(err).String())
		}
		span.End()
	}()

	module, err := r.Compile(ctx, kind, code, codeHash, cfg, cache)
	if err != nil {
		return err
	}
	return module.Close(ctx)
}

// CompileModule 不经缓存校验并编译合约
//
// 返回 (true, nil) 表示合约可以执行；编译类错误返回 (false, err)。
func (r *Runner) CompileModule(ctx context.Context, kind types.VMKind, code []byte, cfg *types.VMConfig) (bool, error) {
	if cfg == nil {
		return false, invalidRequest("vm config is nil")
	}
	b, err := r.Backend(ctx, kind)
	if err != nil {
		return false, err
	}
	prepared, err := b.Prepare(code, cfg)
	if err != nil {
		return false, err
	}
	key, err := r.moduleKey(r.hasher.SHA256(code), cfg.Fingerprint(), kind)
	if err != nil {
		return false, err
	}
	module, err := b.Compile(ctx, string(key), prepared)
	if err != nil {
		return false, err
	}
	return true, module.Close(ctx)
}

// Close 关闭全部后端，之后的调用返回 BackendUnavailable
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	var errs []error
	for kind, b := range r.backends {
		if err := b.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", kind, err))
		}
	}
	r.backends = nil
	return errors.Join(errs...)
}

// WithVMVariants 对当前二进制注册的每种后端依次执行 fn
func WithVMVariants(fn func(kind types.VMKind)) {
	for _, kind := range engines.Registered() {
		fn(kind)
	}
}
