package types

// AccountID 账户标识
type AccountID = string

// Gas 燃料数量
type Gas = uint64

// VMContext 单次合约调用的执行环境
//
// 🎯 **不可变**：每次调用构造一次，执行期间不会被修改。
//
// 📋 **字段说明**：
//   - CurrentAccountID: 当前（被调用）合约账户
//   - SignerAccountID / SignerAccountPK: 原始交易签名者及其公钥
//   - PredecessorAccountID: 直接调用方
//   - Input: 方法参数
//   - IsView: 只读调用，禁止写存储和创建回执
//   - OutputDataReceivers: 等待本次调用结果的数据接收方
type VMContext struct {
	CurrentAccountID     AccountID `json:"current_account_id" cbor:"1,keyasint"`
	SignerAccountID      AccountID `json:"signer_account_id" cbor:"2,keyasint"`
	SignerAccountPK      []byte    `json:"signer_account_pk" cbor:"3,keyasint"`
	PredecessorAccountID AccountID `json:"predecessor_account_id" cbor:"4,keyasint"`
	Input                []byte    `json:"input" cbor:"5,keyasint"`

	BlockIndex     uint64 `json:"block_index" cbor:"6,keyasint"`
	BlockTimestamp uint64 `json:"block_timestamp" cbor:"7,keyasint"`
	EpochHeight    uint64 `json:"epoch_height" cbor:"8,keyasint"`

	AccountBalance       Balance `json:"account_balance" cbor:"9,keyasint"`
	AccountLockedBalance Balance `json:"account_locked_balance" cbor:"10,keyasint"`
	StorageUsage         uint64  `json:"storage_usage" cbor:"11,keyasint"`
	AttachedDeposit      Balance `json:"attached_deposit" cbor:"12,keyasint"`
	PrepaidGas           Gas     `json:"prepaid_gas" cbor:"13,keyasint"`

	RandomSeed          []byte      `json:"random_seed" cbor:"14,keyasint"`
	IsView              bool        `json:"is_view" cbor:"15,keyasint"`
	OutputDataReceivers []AccountID `json:"output_data_receivers" cbor:"16,keyasint"`
}

// Clone 深拷贝执行环境
func (c *VMContext) Clone() *VMContext {
	if c == nil {
		return nil
	}
	out := *c
	out.SignerAccountPK = cloneBytes(c.SignerAccountPK)
	out.Input = cloneBytes(c.Input)
	out.RandomSeed = cloneBytes(c.RandomSeed)
	if c.OutputDataReceivers != nil {
		out.OutputDataReceivers = append([]AccountID(nil), c.OutputDataReceivers...)
	}
	return &out
}

// PromiseResultStatus 前序回执执行结果状态
type PromiseResultStatus uint8

const (
	PromiseResultNotReady PromiseResultStatus = iota
	PromiseResultSuccessful
	PromiseResultFailed
)

// PromiseResult 前序回执结果（通过 promise_result 暴露给合约）
type PromiseResult struct {
	Status PromiseResultStatus `json:"status" cbor:"1,keyasint"`
	Data   []byte              `json:"data,omitempty" cbor:"2,keyasint,omitempty"`
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
