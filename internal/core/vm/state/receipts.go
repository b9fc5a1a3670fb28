package state

import (
	"fmt"

	"github.com/weisyn/vmrunner/pkg/types"
)

// ReceiptLog 单次调用内按创建顺序追加的回执列表
//
// 📋 **不变量**：
//   - 回执下标从 0 开始连续分配
//   - 新回执只能依赖下标更小的回执
//   - 动作只能追加到已存在的回执
type ReceiptLog struct {
	receipts []types.Receipt
}

// Create 创建回执并返回其下标
func (l *ReceiptLog) Create(receiptIndices []uint64, receiverID types.AccountID) (uint64, error) {
	next := uint64(len(l.receipts))
	for _, idx := range receiptIndices {
		if idx >= next {
			return 0, types.NewVMError(types.ClassHostContract, types.CodeInvalidReceiptIndex,
				"依赖的回执 %d 尚未创建（当前共 %d 个）", idx, next)
		}
	}
	l.receipts = append(l.receipts, types.Receipt{
		ReceiptIndices: append([]uint64{}, receiptIndices...),
		ReceiverID:     receiverID,
		Actions:        []types.Action{},
	})
	return next, nil
}

// Append 向回执追加动作
func (l *ReceiptLog) Append(receiptIndex uint64, action types.Action) error {
	if receiptIndex >= uint64(len(l.receipts)) {
		return types.NewVMError(types.ClassHostContract, types.CodeInvalidReceiptIndex,
			"回执 %d 不存在（当前共 %d 个）", receiptIndex, len(l.receipts))
	}
	r := &l.receipts[receiptIndex]
	r.Actions = append(r.Actions, action)
	return nil
}

// Len 已创建的回执数量
func (l *ReceiptLog) Len() int {
	return len(l.receipts)
}

// Snapshot 返回回执列表的副本
func (l *ReceiptLog) Snapshot() []types.Receipt {
	out := make([]types.Receipt, len(l.receipts))
	for i := range l.receipts {
		out[i] = l.receipts[i].Clone()
	}
	return out
}

// receiptWriter 各 External 实现共享的 AppendAction* 实现
type receiptWriter struct {
	log ReceiptLog
}

func (w *receiptWriter) CreateReceipt(receiptIndices []uint64, receiverID types.AccountID) (uint64, error) {
	return w.log.Create(receiptIndices, receiverID)
}

func (w *receiptWriter) AppendActionCreateAccount(receiptIndex uint64) error {
	return w.log.Append(receiptIndex, types.CreateAccountAction{})
}

func (w *receiptWriter) AppendActionDeployContract(receiptIndex uint64, code []byte) error {
	return w.log.Append(receiptIndex, types.DeployContractAction{Code: append([]byte(nil), code...)})
}

func (w *receiptWriter) AppendActionFunctionCall(receiptIndex uint64, methodName string, args []byte, attachedDeposit types.Balance, prepaidGas types.Gas) error {
	return w.log.Append(receiptIndex, types.FunctionCallAction{
		MethodName: methodName,
		Args:       append([]byte(nil), args...),
		Gas:        prepaidGas,
		Deposit:    attachedDeposit,
	})
}

func (w *receiptWriter) AppendActionTransfer(receiptIndex uint64, amount types.Balance) error {
	return w.log.Append(receiptIndex, types.TransferAction{Deposit: amount})
}

func (w *receiptWriter) AppendActionStake(receiptIndex uint64, stake types.Balance, publicKey []byte) error {
	return w.log.Append(receiptIndex, types.StakeAction{Stake: stake, PublicKey: append([]byte(nil), publicKey...)})
}

func (w *receiptWriter) AppendActionAddKeyWithFullAccess(receiptIndex uint64, publicKey []byte, nonce uint64) error {
	return w.log.Append(receiptIndex, types.AddKeyWithFullAccessAction{
		PublicKey: append([]byte(nil), publicKey...),
		Nonce:     nonce,
	})
}

func (w *receiptWriter) AppendActionAddKeyWithFunctionCall(receiptIndex uint64, publicKey []byte, nonce uint64, allowance *types.Balance, receiverID types.AccountID, methodNames []string) error {
	var allowanceCopy *types.Balance
	if allowance != nil {
		v := *allowance
		allowanceCopy = &v
	}
	return w.log.Append(receiptIndex, types.AddKeyWithFunctionCallAction{
		PublicKey:   append([]byte(nil), publicKey...),
		Nonce:       nonce,
		Allowance:   allowanceCopy,
		ReceiverID:  receiverID,
		MethodNames: append([]string{}, methodNames...),
	})
}

func (w *receiptWriter) AppendActionDeleteKey(receiptIndex uint64, publicKey []byte) error {
	return w.log.Append(receiptIndex, types.DeleteKeyAction{PublicKey: append([]byte(nil), publicKey...)})
}

func (w *receiptWriter) AppendActionDeleteAccount(receiptIndex uint64, beneficiaryID types.AccountID) error {
	return w.log.Append(receiptIndex, types.DeleteAccountAction{BeneficiaryID: beneficiaryID})
}

// Receipts 返回已创建回执的副本
func (w *receiptWriter) Receipts() []types.Receipt {
	return w.log.Snapshot()
}

func invalidIterator(iter uint64) error {
	return types.WrapVMError(types.ClassHostContract, types.CodeInvalidIteratorIndex,
		fmt.Errorf("迭代器 %d 不存在或已失效", iter))
}
