package types

// Fee 一类动作的燃料费用
//
// 发送方在创建回执时燃烧 Send 部分，并预留 Execution 部分（计入 used，不计入 burnt）。
// 接收方与发送方相同（sir = sender is receiver）时使用 SendSir。
type Fee struct {
	SendSir    Gas `json:"send_sir" cbor:"1,keyasint"`
	SendNotSir Gas `json:"send_not_sir" cbor:"2,keyasint"`
	Execution  Gas `json:"execution" cbor:"3,keyasint"`
}

// SendFee 按是否发给自己选择发送费用
func (f Fee) SendFee(sir bool) Gas {
	if sir {
		return f.SendSir
	}
	return f.SendNotSir
}

// ActionCreationConfig 各类动作的费用
type ActionCreationConfig struct {
	CreateAccountCost Fee `json:"create_account_cost" cbor:"1,keyasint"`

	DeployContractCost        Fee `json:"deploy_contract_cost" cbor:"2,keyasint"`
	DeployContractCostPerByte Fee `json:"deploy_contract_cost_per_byte" cbor:"3,keyasint"`

	FunctionCallCost        Fee `json:"function_call_cost" cbor:"4,keyasint"`
	FunctionCallCostPerByte Fee `json:"function_call_cost_per_byte" cbor:"5,keyasint"`

	TransferCost Fee `json:"transfer_cost" cbor:"6,keyasint"`
	StakeCost    Fee `json:"stake_cost" cbor:"7,keyasint"`

	AddKeyFullAccessCost          Fee `json:"add_key_full_access_cost" cbor:"8,keyasint"`
	AddKeyFunctionCallCost        Fee `json:"add_key_function_call_cost" cbor:"9,keyasint"`
	AddKeyFunctionCallCostPerByte Fee `json:"add_key_function_call_cost_per_byte" cbor:"10,keyasint"`

	DeleteKeyCost     Fee `json:"delete_key_cost" cbor:"11,keyasint"`
	DeleteAccountCost Fee `json:"delete_account_cost" cbor:"12,keyasint"`
}

// RuntimeFeesConfig 运行时费用配置
type RuntimeFeesConfig struct {
	// ActionReceiptCreation 创建一个动作回执的基础费用
	ActionReceiptCreation Fee                  `json:"action_receipt_creation" cbor:"1,keyasint"`
	ActionCreation        ActionCreationConfig `json:"action_creation" cbor:"2,keyasint"`

	// StorageAmountPerByte 每字节存储占用需锁定的余额
	StorageAmountPerByte Balance `json:"storage_amount_per_byte" cbor:"3,keyasint"`
}

func symmetricFee(send, exec Gas) Fee {
	return Fee{SendSir: send, SendNotSir: send, Execution: exec}
}

// DefaultRuntimeFeesConfig 默认费用表
func DefaultRuntimeFeesConfig() *RuntimeFeesConfig {
	return &RuntimeFeesConfig{
		ActionReceiptCreation: symmetricFee(108_059_500_000, 108_059_500_000),
		ActionCreation: ActionCreationConfig{
			CreateAccountCost:             symmetricFee(99_607_375_000, 99_607_375_000),
			DeployContractCost:            symmetricFee(184_765_750_000, 184_765_750_000),
			DeployContractCostPerByte:     symmetricFee(6_812_999, 6_812_999),
			FunctionCallCost:              symmetricFee(2_319_861_500_000, 2_319_861_500_000),
			FunctionCallCostPerByte:       symmetricFee(2_235_934, 2_235_934),
			TransferCost:                  symmetricFee(115_123_062_500, 115_123_062_500),
			StakeCost:                     symmetricFee(141_715_687_500, 102_217_625_000),
			AddKeyFullAccessCost:          symmetricFee(101_765_125_000, 101_765_125_000),
			AddKeyFunctionCallCost:        symmetricFee(102_217_625_000, 102_217_625_000),
			AddKeyFunctionCallCostPerByte: symmetricFee(1_925_331, 1_925_331),
			DeleteKeyCost:                 symmetricFee(94_946_625_000, 94_946_625_000),
			DeleteAccountCost:             symmetricFee(147_489_000_000, 147_489_000_000),
		},
		StorageAmountPerByte: NewBalance(10_000_000_000_000_000_000),
	}
}

// FreeRuntimeFeesConfig 零费用配置，测试使用
func FreeRuntimeFeesConfig() *RuntimeFeesConfig {
	return &RuntimeFeesConfig{}
}
