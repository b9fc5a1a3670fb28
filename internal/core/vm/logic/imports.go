package logic

import (
	"sort"

	"github.com/weisyn/vmrunner/internal/core/vm/prepare"
	"github.com/weisyn/vmrunner/internal/core/vm/wasm"
)

// HostFunc 宿主函数处理器：参数按导入签名顺序传入，无返回值的函数忽略第一个返回值
type HostFunc func(l *VMLogic, a []uint64) (uint64, error)

// Import 一个 "env" 模块导出的宿主函数
type Import struct {
	Name string
	Type wasm.FuncType
	Call HostFunc
}

func sig(params, results int) wasm.FuncType {
	ft := wasm.FuncType{}
	for i := 0; i < params; i++ {
		ft.Params = append(ft.Params, wasm.ValueTypeI64)
	}
	for i := 0; i < results; i++ {
		ft.Results = append(ft.Results, wasm.ValueTypeI64)
	}
	return ft
}

func void(err error) (uint64, error) { return 0, err }

var imports = []Import{
	// ==================== 寄存器 ====================
	{"read_register", sig(2, 0), func(l *VMLogic, a []uint64) (uint64, error) { return void(l.ReadRegister(a[0], a[1])) }},
	{"register_len", sig(1, 1), func(l *VMLogic, a []uint64) (uint64, error) { return l.RegisterLen(a[0]) }},
	{"write_register", sig(3, 0), func(l *VMLogic, a []uint64) (uint64, error) { return void(l.WriteRegister(a[0], a[1], a[2])) }},

	// ==================== 执行环境 ====================
	{"current_account_id", sig(1, 0), func(l *VMLogic, a []uint64) (uint64, error) { return void(l.CurrentAccountID(a[0])) }},
	{"signer_account_id", sig(1, 0), func(l *VMLogic, a []uint64) (uint64, error) { return void(l.SignerAccountID(a[0])) }},
	{"signer_account_pk", sig(1, 0), func(l *VMLogic, a []uint64) (uint64, error) { return void(l.SignerAccountPK(a[0])) }},
	{"predecessor_account_id", sig(1, 0), func(l *VMLogic, a []uint64) (uint64, error) { return void(l.PredecessorAccountID(a[0])) }},
	{"input", sig(1, 0), func(l *VMLogic, a []uint64) (uint64, error) { return void(l.Input(a[0])) }},
	{"block_index", sig(0, 1), func(l *VMLogic, _ []uint64) (uint64, error) { return l.BlockIndex() }},
	{"block_timestamp", sig(0, 1), func(l *VMLogic, _ []uint64) (uint64, error) { return l.BlockTimestamp() }},
	{"epoch_height", sig(0, 1), func(l *VMLogic, _ []uint64) (uint64, error) { return l.EpochHeight() }},
	{"storage_usage", sig(0, 1), func(l *VMLogic, _ []uint64) (uint64, error) { return l.StorageUsage() }},

	// ==================== 经济 ====================
	{"account_balance", sig(1, 0), func(l *VMLogic, a []uint64) (uint64, error) { return void(l.AccountBalance(a[0])) }},
	{"account_locked_balance", sig(1, 0), func(l *VMLogic, a []uint64) (uint64, error) { return void(l.AccountLockedBalance(a[0])) }},
	{"attached_deposit", sig(1, 0), func(l *VMLogic, a []uint64) (uint64, error) { return void(l.AttachedDeposit(a[0])) }},
	{"prepaid_gas", sig(0, 1), func(l *VMLogic, _ []uint64) (uint64, error) { return l.PrepaidGas() }},
	{"used_gas", sig(0, 1), func(l *VMLogic, _ []uint64) (uint64, error) { return l.UsedGas() }},

	// ==================== 数学 ====================
	{"random_seed", sig(1, 0), func(l *VMLogic, a []uint64) (uint64, error) { return void(l.RandomSeed(a[0])) }},
	{"sha256", sig(3, 0), func(l *VMLogic, a []uint64) (uint64, error) { return void(l.Sha256(a[0], a[1], a[2])) }},
	{"keccak256", sig(3, 0), func(l *VMLogic, a []uint64) (uint64, error) { return void(l.Keccak256(a[0], a[1], a[2])) }},
	{"ripemd160", sig(3, 0), func(l *VMLogic, a []uint64) (uint64, error) { return void(l.Ripemd160(a[0], a[1], a[2])) }},

	// ==================== 其他 ====================
	{"value_return", sig(2, 0), func(l *VMLogic, a []uint64) (uint64, error) { return void(l.ValueReturn(a[0], a[1])) }},
	{"panic", sig(0, 0), func(l *VMLogic, _ []uint64) (uint64, error) { return void(l.Panic()) }},
	{"panic_utf8", sig(2, 0), func(l *VMLogic, a []uint64) (uint64, error) { return void(l.PanicUTF8(a[0], a[1])) }},
	{"log_utf8", sig(2, 0), func(l *VMLogic, a []uint64) (uint64, error) { return void(l.LogUTF8(a[0], a[1])) }},
	{"log_utf16", sig(2, 0), func(l *VMLogic, a []uint64) (uint64, error) { return void(l.LogUTF16(a[0], a[1])) }},

	// ==================== promise ====================
	{"promise_create", sig(8, 1), func(l *VMLogic, a []uint64) (uint64, error) {
		return l.PromiseCreate(a[0], a[1], a[2], a[3], a[4], a[5], a[6], a[7])
	}},
	{"promise_then", sig(9, 1), func(l *VMLogic, a []uint64) (uint64, error) {
		return l.PromiseThen(a[0], a[1], a[2], a[3], a[4], a[5], a[6], a[7], a[8])
	}},
	{"promise_and", sig(2, 1), func(l *VMLogic, a []uint64) (uint64, error) { return l.PromiseAnd(a[0], a[1]) }},
	{"promise_batch_create", sig(2, 1), func(l *VMLogic, a []uint64) (uint64, error) { return l.PromiseBatchCreate(a[0], a[1]) }},
	{"promise_batch_then", sig(3, 1), func(l *VMLogic, a []uint64) (uint64, error) { return l.PromiseBatchThen(a[0], a[1], a[2]) }},
	{"promise_batch_action_create_account", sig(1, 0), func(l *VMLogic, a []uint64) (uint64, error) {
		return void(l.PromiseBatchActionCreateAccount(a[0]))
	}},
	{"promise_batch_action_deploy_contract", sig(3, 0), func(l *VMLogic, a []uint64) (uint64, error) {
		return void(l.PromiseBatchActionDeployContract(a[0], a[1], a[2]))
	}},
	{"promise_batch_action_function_call", sig(7, 0), func(l *VMLogic, a []uint64) (uint64, error) {
		return void(l.PromiseBatchActionFunctionCall(a[0], a[1], a[2], a[3], a[4], a[5], a[6]))
	}},
	{"promise_batch_action_transfer", sig(2, 0), func(l *VMLogic, a []uint64) (uint64, error) {
		return void(l.PromiseBatchActionTransfer(a[0], a[1]))
	}},
	{"promise_batch_action_stake", sig(4, 0), func(l *VMLogic, a []uint64) (uint64, error) {
		return void(l.PromiseBatchActionStake(a[0], a[1], a[2], a[3]))
	}},
	{"promise_batch_action_add_key_with_full_access", sig(4, 0), func(l *VMLogic, a []uint64) (uint64, error) {
		return void(l.PromiseBatchActionAddKeyWithFullAccess(a[0], a[1], a[2], a[3]))
	}},
	{"promise_batch_action_add_key_with_function_call", sig(9, 0), func(l *VMLogic, a []uint64) (uint64, error) {
		return void(l.PromiseBatchActionAddKeyWithFunctionCall(a[0], a[1], a[2], a[3], a[4], a[5], a[6], a[7], a[8]))
	}},
	{"promise_batch_action_delete_key", sig(3, 0), func(l *VMLogic, a []uint64) (uint64, error) {
		return void(l.PromiseBatchActionDeleteKey(a[0], a[1], a[2]))
	}},
	{"promise_batch_action_delete_account", sig(3, 0), func(l *VMLogic, a []uint64) (uint64, error) {
		return void(l.PromiseBatchActionDeleteAccount(a[0], a[1], a[2]))
	}},
	{"promise_results_count", sig(0, 1), func(l *VMLogic, _ []uint64) (uint64, error) { return l.PromiseResultsCount() }},
	{"promise_result", sig(2, 1), func(l *VMLogic, a []uint64) (uint64, error) { return l.PromiseResult(a[0], a[1]) }},
	{"promise_return", sig(1, 0), func(l *VMLogic, a []uint64) (uint64, error) { return void(l.PromiseReturn(a[0])) }},

	// ==================== 存储 ====================
	{"storage_write", sig(5, 1), func(l *VMLogic, a []uint64) (uint64, error) { return l.StorageWrite(a[0], a[1], a[2], a[3], a[4]) }},
	{"storage_read", sig(3, 1), func(l *VMLogic, a []uint64) (uint64, error) { return l.StorageRead(a[0], a[1], a[2]) }},
	{"storage_remove", sig(3, 1), func(l *VMLogic, a []uint64) (uint64, error) { return l.StorageRemove(a[0], a[1], a[2]) }},
	{"storage_has_key", sig(2, 1), func(l *VMLogic, a []uint64) (uint64, error) { return l.StorageHasKey(a[0], a[1]) }},
	{"storage_iter_prefix", sig(2, 1), func(l *VMLogic, a []uint64) (uint64, error) { return l.StorageIterPrefix(a[0], a[1]) }},
	{"storage_iter_range", sig(4, 1), func(l *VMLogic, a []uint64) (uint64, error) {
		return l.StorageIterRange(a[0], a[1], a[2], a[3])
	}},
	{"storage_iter_next", sig(3, 1), func(l *VMLogic, a []uint64) (uint64, error) { return l.StorageIterNext(a[0], a[1], a[2]) }},
}

var injected = func() []Import {
	sigs := prepare.InjectedImports()
	return []Import{
		{prepare.GasImport, sigs[prepare.GasImport], func(l *VMLogic, a []uint64) (uint64, error) {
			return void(l.WasmGas(uint32(a[0])))
		}},
		{prepare.StackExceededImport, sigs[prepare.StackExceededImport], func(l *VMLogic, _ []uint64) (uint64, error) {
			return void(l.StackExceeded())
		}},
	}
}()

var importIndex = func() map[string]int {
	m := make(map[string]int, len(imports))
	for i, imp := range imports {
		m[imp.Name] = i
	}
	return m
}()

// Imports 返回后端需要注册的全部宿主函数（含插桩注入的两个），按名称排序
func Imports() []Import {
	out := make([]Import, 0, len(imports)+len(injected))
	out = append(out, imports...)
	out = append(out, injected...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve 合约可导入的宿主函数签名，作为 prepare.ImportResolver 使用
func Resolve(name string) (wasm.FuncType, bool) {
	i, ok := importIndex[name]
	if !ok {
		return wasm.FuncType{}, false
	}
	return imports[i].Type, true
}

var _ prepare.ImportResolver = Resolve
