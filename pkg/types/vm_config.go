package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// VMLimitConfig 合约执行资源上限
type VMLimitConfig struct {
	// MaxGasBurnt 单次调用可燃烧的最大燃料
	MaxGasBurnt Gas `json:"max_gas_burnt" cbor:"1,keyasint"`
	// MaxStackHeight 最大调用深度（由插桩计数，所有后端一致）
	MaxStackHeight uint32 `json:"max_stack_height" cbor:"2,keyasint"`
	// MaxMemoryPages 线性内存页数上限（64KiB/页）
	MaxMemoryPages uint32 `json:"max_memory_pages" cbor:"4,keyasint"`

	RegistersMemoryLimit uint64 `json:"registers_memory_limit" cbor:"5,keyasint"`
	MaxRegisterSize      uint64 `json:"max_register_size" cbor:"6,keyasint"`
	MaxNumberRegisters   uint64 `json:"max_number_registers" cbor:"7,keyasint"`

	MaxNumberLogs     uint64 `json:"max_number_logs" cbor:"8,keyasint"`
	MaxTotalLogLength uint64 `json:"max_total_log_length" cbor:"9,keyasint"`

	MaxTotalPrepaidGas            Gas    `json:"max_total_prepaid_gas" cbor:"10,keyasint"`
	MaxActionsPerReceipt          uint64 `json:"max_actions_per_receipt" cbor:"11,keyasint"`
	MaxNumberBytesMethodNames     uint64 `json:"max_number_bytes_method_names" cbor:"12,keyasint"`
	MaxLengthMethodName           uint64 `json:"max_length_method_name" cbor:"13,keyasint"`
	MaxArgumentsLength            uint64 `json:"max_arguments_length" cbor:"14,keyasint"`
	MaxLengthReturnedData         uint64 `json:"max_length_returned_data" cbor:"15,keyasint"`
	MaxContractSize               uint64 `json:"max_contract_size" cbor:"16,keyasint"`
	MaxLengthStorageKey           uint64 `json:"max_length_storage_key" cbor:"17,keyasint"`
	MaxLengthStorageValue         uint64 `json:"max_length_storage_value" cbor:"18,keyasint"`
	MaxFunctionsNumberPerContract uint64 `json:"max_functions_number_per_contract" cbor:"21,keyasint"`
	MaxLocalsPerFunction          uint64 `json:"max_locals_per_function" cbor:"22,keyasint"`
	MaxLengthAccountID            uint64 `json:"max_length_account_id" cbor:"23,keyasint"`
}

// VMConfig 合约执行配置（长期存在、调用间共享、调用中不可变）
//
// ⚠️ 编译产物内嵌了按本配置生成的计量插桩，因此缓存键必须包含 Fingerprint。
type VMConfig struct {
	ExtCosts      ExtCostsConfig `json:"ext_costs" cbor:"1,keyasint"`
	RegularOpCost uint32         `json:"regular_op_cost" cbor:"2,keyasint"`
	Limits        VMLimitConfig  `json:"limit_config" cbor:"3,keyasint"`
}

// Fingerprint 配置指纹（确定性 CBOR 编码后的 SHA-256）
type Fingerprint [32]byte

// String 十六进制表示
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

var deterministicEncMode cbor.EncMode

func init() {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("初始化CBOR编码器失败: %v", err))
	}
	deterministicEncMode = mode
}

// DeterministicCBOR 以核心确定性规则编码任意值
//
// 缓存键、配置指纹和编译产物都依赖这一编码，跨节点必须逐字节一致。
func DeterministicCBOR(v interface{}) ([]byte, error) {
	return deterministicEncMode.Marshal(v)
}

// Fingerprint 计算配置指纹
func (c *VMConfig) Fingerprint() Fingerprint {
	data, err := DeterministicCBOR(c)
	if err != nil {
		// 配置只包含定长数值字段，编码不会失败
		panic(fmt.Sprintf("VM配置编码失败: %v", err))
	}
	return sha256.Sum256(data)
}

// Clone 复制配置
func (c *VMConfig) Clone() *VMConfig {
	out := *c
	return &out
}

// DefaultVMLimitConfig 默认资源上限
func DefaultVMLimitConfig() VMLimitConfig {
	return VMLimitConfig{
		MaxGasBurnt:                   200_000_000_000_000,
		MaxStackHeight:                1000,
		MaxMemoryPages:                2048,
		RegistersMemoryLimit:          1 << 30,
		MaxRegisterSize:               100 << 20,
		MaxNumberRegisters:            100,
		MaxNumberLogs:                 100,
		MaxTotalLogLength:             16 << 10,
		MaxTotalPrepaidGas:            300_000_000_000_000,
		MaxActionsPerReceipt:          100,
		MaxNumberBytesMethodNames:     2000,
		MaxLengthMethodName:           256,
		MaxArgumentsLength:            4 << 20,
		MaxLengthReturnedData:         4 << 20,
		MaxContractSize:               4 << 20,
		MaxLengthStorageKey:           4 << 20,
		MaxLengthStorageValue:         4 << 20,
		MaxFunctionsNumberPerContract: 10000,
		MaxLocalsPerFunction:          50000,
		MaxLengthAccountID:            64,
	}
}

// DefaultVMConfig 默认执行配置
func DefaultVMConfig() *VMConfig {
	return &VMConfig{
		ExtCosts:      DefaultExtCosts(),
		RegularOpCost: 3856371,
		Limits:        DefaultVMLimitConfig(),
	}
}

// FreeVMConfig 零计费配置（仅保留资源上限），用于测试和离线分析
func FreeVMConfig() *VMConfig {
	return &VMConfig{
		Limits: DefaultVMLimitConfig(),
	}
}
