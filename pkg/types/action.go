package types

import "encoding/json"

// ActionKind 动作类型
type ActionKind string

const (
	ActionCreateAccount          ActionKind = "create_account"
	ActionDeployContract         ActionKind = "deploy_contract"
	ActionFunctionCall           ActionKind = "function_call"
	ActionTransfer               ActionKind = "transfer"
	ActionStake                  ActionKind = "stake"
	ActionAddKeyWithFullAccess   ActionKind = "add_key_with_full_access"
	ActionAddKeyWithFunctionCall ActionKind = "add_key_with_function_call"
	ActionDeleteKey              ActionKind = "delete_key"
	ActionDeleteAccount          ActionKind = "delete_account"
)

// Action 回执中的状态变更动作（封闭集合）
//
// 只有本包内定义的类型可以实现该接口。
type Action interface {
	Kind() ActionKind
	isAction()
}

// CreateAccountAction 创建账户
type CreateAccountAction struct{}

// DeployContractAction 部署合约
type DeployContractAction struct {
	Code []byte `json:"code"`
}

// FunctionCallAction 跨合约调用
type FunctionCallAction struct {
	MethodName string  `json:"method_name"`
	Args       []byte  `json:"args"`
	Gas        Gas     `json:"gas"`
	Deposit    Balance `json:"deposit"`
}

// TransferAction 转账
type TransferAction struct {
	Deposit Balance `json:"deposit"`
}

// StakeAction 质押
type StakeAction struct {
	Stake     Balance `json:"stake"`
	PublicKey []byte  `json:"public_key"`
}

// AddKeyWithFullAccessAction 添加全权限访问密钥
type AddKeyWithFullAccessAction struct {
	PublicKey []byte `json:"public_key"`
	Nonce     uint64 `json:"nonce"`
}

// AddKeyWithFunctionCallAction 添加受限（仅函数调用）访问密钥
//
// Allowance 为 nil 表示不限额度。
type AddKeyWithFunctionCallAction struct {
	PublicKey   []byte    `json:"public_key"`
	Nonce       uint64    `json:"nonce"`
	Allowance   *Balance  `json:"allowance,omitempty"`
	ReceiverID  AccountID `json:"receiver_id"`
	MethodNames []string  `json:"method_names"`
}

// DeleteKeyAction 删除访问密钥
type DeleteKeyAction struct {
	PublicKey []byte `json:"public_key"`
}

// DeleteAccountAction 删除账户，余额转给受益人
type DeleteAccountAction struct {
	BeneficiaryID AccountID `json:"beneficiary_id"`
}

func (CreateAccountAction) Kind() ActionKind          { return ActionCreateAccount }
func (DeployContractAction) Kind() ActionKind         { return ActionDeployContract }
func (FunctionCallAction) Kind() ActionKind           { return ActionFunctionCall }
func (TransferAction) Kind() ActionKind               { return ActionTransfer }
func (StakeAction) Kind() ActionKind                  { return ActionStake }
func (AddKeyWithFullAccessAction) Kind() ActionKind   { return ActionAddKeyWithFullAccess }
func (AddKeyWithFunctionCallAction) Kind() ActionKind { return ActionAddKeyWithFunctionCall }
func (DeleteKeyAction) Kind() ActionKind              { return ActionDeleteKey }
func (DeleteAccountAction) Kind() ActionKind          { return ActionDeleteAccount }

func (CreateAccountAction) isAction()          {}
func (DeployContractAction) isAction()         {}
func (FunctionCallAction) isAction()           {}
func (TransferAction) isAction()               {}
func (StakeAction) isAction()                  {}
func (AddKeyWithFullAccessAction) isAction()   {}
func (AddKeyWithFunctionCallAction) isAction() {}
func (DeleteKeyAction) isAction()              {}
func (DeleteAccountAction) isAction()          {}

// Receipt 合约调用产生的回执
//
// 📋 **不变量**：
//   - ReceiptIndices 只引用同一调用中更早创建的回执（DAG，而非树）
//   - Actions 按追加顺序排列
type Receipt struct {
	ReceiptIndices []uint64  `json:"receipt_indices"`
	ReceiverID     AccountID `json:"receiver_id"`
	Actions        []Action  `json:"actions"`
}

type taggedAction struct {
	Kind   ActionKind `json:"kind"`
	Action Action     `json:"action"`
}

// MarshalJSON 输出带类型标签的动作列表，供下游适配层使用
func (r Receipt) MarshalJSON() ([]byte, error) {
	actions := make([]taggedAction, 0, len(r.Actions))
	for _, a := range r.Actions {
		actions = append(actions, taggedAction{Kind: a.Kind(), Action: a})
	}
	return json.Marshal(struct {
		ReceiptIndices []uint64       `json:"receipt_indices"`
		ReceiverID     AccountID      `json:"receiver_id"`
		Actions        []taggedAction `json:"actions"`
	}{
		ReceiptIndices: r.ReceiptIndices,
		ReceiverID:     r.ReceiverID,
		Actions:        actions,
	})
}

// Clone 深拷贝回执（动作本身为值类型，切片字段共享只读数据）
func (r *Receipt) Clone() Receipt {
	out := Receipt{
		ReceiverID: r.ReceiverID,
	}
	if r.ReceiptIndices != nil {
		out.ReceiptIndices = append(make([]uint64, 0, len(r.ReceiptIndices)), r.ReceiptIndices...)
	}
	if r.Actions != nil {
		out.Actions = append(make([]Action, 0, len(r.Actions)), r.Actions...)
	}
	return out
}
