// Package prepare 合约字节码预处理
//
// 🎯 **职责**：在编译前对合约做静态检查并注入确定性计量代码，
// 使不同后端对同一合约、同一配置产生完全一致的燃料消耗与栈深度行为。
//
// 📋 **处理流程**：
//  1. 大小检查 → 按段解码（丢弃自定义段，检查段顺序）
//  2. 导入检查：仅允许 "env" 模块中宿主提供的函数，签名必须一致
//  3. 资源检查：函数数、局部变量数、内存页数
//  4. 注入 env.gas / env.stack_exceeded 两个导入和一个深度全局变量
//  5. 改写函数体（燃料计量 + 调用深度）并按规范段顺序重新编码
package prepare

import (
	"github.com/weisyn/vmrunner/internal/core/vm/wasm"
	"github.com/weisyn/vmrunner/pkg/types"
)

const (
	// HostModule 宿主函数所在的导入模块名
	HostModule = "env"
	// GasImport 燃料计量导入，参数为本段指令数
	GasImport = "gas"
	// StackExceededImport 调用深度超限时调用的导入
	StackExceededImport = "stack_exceeded"

	injectedImports = 2
)

var (
	gasType   = wasm.FuncType{Params: []wasm.ValueType{wasm.ValueTypeI32}}
	emptyType = wasm.FuncType{}
)

// ImportResolver 按名称查询宿主函数签名
type ImportResolver func(name string) (wasm.FuncType, bool)

// InjectedImports 返回注入导入的签名，供后端注册宿主函数
func InjectedImports() map[string]wasm.FuncType {
	return map[string]wasm.FuncType{
		GasImport:           gasType,
		StackExceededImport: emptyType,
	}
}

// Prepare 检查并插桩合约字节码
//
// 返回的字节码可直接交给任何后端编译；所有错误均为 ClassCompilation 的 *types.VMError。
func Prepare(code []byte, cfg *types.VMConfig, resolve ImportResolver) ([]byte, error) {
	lim := &cfg.Limits
	if uint64(len(code)) > lim.MaxContractSize {
		return nil, types.NewVMError(types.ClassCompilation, types.CodeContractSizeExceeded,
			"contract size %d exceeds limit %d", len(code), lim.MaxContractSize)
	}

	m, err := decodeModule(code, lim)
	if err != nil {
		return nil, err
	}
	if err := checkImports(m, resolve); err != nil {
		return nil, err
	}
	if uint64(m.numFuncs()) > lim.MaxFunctionsNumberPerContract {
		return nil, types.NewVMError(types.ClassCompilation, types.CodeTooManyFunctions,
			"%d functions exceed limit %d", m.numFuncs(), lim.MaxFunctionsNumberPerContract)
	}
	if err := clampMemory(m, lim.MaxMemoryPages); err != nil {
		return nil, err
	}
	return instrumentModule(m, lim)
}

func checkImports(m *module, resolve ImportResolver) error {
	for _, imp := range m.imports {
		if imp.module != HostModule {
			return types.NewVMError(types.ClassCompilation, types.CodeDisallowedImport,
				"import module %q is not allowed", imp.module)
		}
		if imp.name == GasImport || imp.name == StackExceededImport {
			return types.NewVMError(types.ClassCompilation, types.CodeDisallowedImport,
				"import %s.%s is reserved", imp.module, imp.name)
		}
		want, ok := resolve(imp.name)
		if !ok {
			return types.NewVMError(types.ClassCompilation, types.CodeDisallowedImport,
				"unknown host function %s.%s", imp.module, imp.name)
		}
		if !want.Equal(m.types[imp.typeIdx]) {
			return types.NewVMError(types.ClassCompilation, types.CodeLinkError,
				"host function %s.%s signature mismatch", imp.module, imp.name)
		}
	}
	return nil
}

// clampMemory 将内存上限收紧到配置值，未定义内存时补一个
func clampMemory(m *module, maxPages uint32) error {
	if m.memory == nil {
		m.memory = &limits{min: 1, max: maxPages, hasMax: true}
		if maxPages == 0 {
			m.memory.min = 0
		}
		return nil
	}
	if m.memory.min > maxPages {
		return types.NewVMError(types.ClassCompilation, types.CodeMemory,
			"memory minimum %d pages exceeds limit %d", m.memory.min, maxPages)
	}
	if !m.memory.hasMax || m.memory.max > maxPages {
		m.memory.max = maxPages
		m.memory.hasMax = true
	}
	return nil
}

func typeIndex(m *module, ft wasm.FuncType) uint32 {
	for i, t := range m.types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	m.types = append(m.types, ft)
	return uint32(len(m.types) - 1)
}

func instrumentModule(m *module, lim *types.VMLimitConfig) ([]byte, error) {
	numImports := uint32(len(m.imports))
	ins := &instrumenter{
		numImports:     numImports,
		numFuncs:       m.numFuncs(),
		numTypes:       uint32(len(m.types)),
		gasFunc:        numImports,
		stackFunc:      numImports + 1,
		depthGlobal:    uint32(len(m.globals)),
		maxStackHeight: lim.MaxStackHeight,
	}

	bodies := make([][]byte, len(m.codes))
	for i, b := range m.codes {
		expr, err := ins.rewriteBody(i, b.expr)
		if err != nil {
			return nil, err
		}
		bodies[i] = encodeBody(b.locals, expr)
	}

	gasTypeIdx := typeIndex(m, gasType)
	emptyTypeIdx := typeIndex(m, emptyType)
	m.imports = append(m.imports,
		importEntry{module: HostModule, name: GasImport, typeIdx: gasTypeIdx},
		importEntry{module: HostModule, name: StackExceededImport, typeIdx: emptyTypeIdx},
	)
	m.globals = append(m.globals, global{
		valType: wasm.ValueTypeI32,
		mutable: true,
		init:    []byte{wasm.OpI32Const, 0x00, wasm.OpEnd},
	})

	return encodeModule(m, ins, bodies)
}
