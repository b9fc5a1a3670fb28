package logic

import (
	"bytes"
	"math/bits"

	"github.com/weisyn/vmrunner/pkg/types"
)

// ============================================================================
//                          promise 与回执构造
// ============================================================================

const minAccountIDLen = 2

func isSeparator(c byte) bool { return c == '-' || c == '_' || c == '.' }

// validAccountID 账户名：小写字母数字，以 - _ . 分隔，分隔符不可相邻或位于首尾
func validAccountID(id string, maxLen uint64) bool {
	if len(id) < minAccountIDLen || uint64(len(id)) > maxLen {
		return false
	}
	prevSep := true
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			prevSep = false
		case isSeparator(c):
			if prevSep {
				return false
			}
			prevSep = true
		default:
			return false
		}
	}
	return !prevSep
}

func (l *VMLogic) readAccountID(n, ptr uint64) (types.AccountID, error) {
	buf, err := l.memoryGet(ptr, n)
	if err != nil {
		return "", err
	}
	if err := l.gas.PayBase(types.ExtUTF8DecodingBase); err != nil {
		return "", err
	}
	if err := l.gas.PayPerByte(types.ExtUTF8DecodingByte, n); err != nil {
		return "", err
	}
	id := string(buf)
	if !validAccountID(id, l.cfg.Limits.MaxLengthAccountID) {
		return "", executionError(types.CodeInvalidAccountID, "invalid account id %q", id)
	}
	return id, nil
}

// 公钥编码：1 字节曲线类型 + 公钥（ed25519 32 字节，secp256k1 64 字节）
func validPublicKey(pk []byte) bool {
	if len(pk) == 0 {
		return false
	}
	switch pk[0] {
	case 0:
		return len(pk) == 33
	case 1:
		return len(pk) == 65
	}
	return false
}

func (l *VMLogic) readPublicKey(n, ptr uint64) ([]byte, error) {
	pk, err := l.memoryGet(ptr, n)
	if err != nil {
		return nil, err
	}
	if !validPublicKey(pk) {
		return nil, executionError(types.CodeInvalidPublicKey, "invalid public key of %d bytes", len(pk))
	}
	return pk, nil
}

func (l *VMLogic) payReceiptCreation(receiver types.AccountID) error {
	fee := l.fees.ActionReceiptCreation
	sir := receiver == l.ctx.CurrentAccountID
	burn := fee.SendFee(sir)
	use, carry := bits.Add64(burn, fee.Execution, 0)
	if carry != 0 {
		return overflowError("receipt creation fee")
	}
	return l.gas.PayAction(burn, use)
}

func (l *VMLogic) payActionFee(fee types.Fee, sir bool, perByte *types.Fee, n uint64) error {
	burn, use := fee.SendFee(sir), fee.Execution
	if perByte != nil {
		hi1, b := bits.Mul64(perByte.SendFee(sir), n)
		hi2, u := bits.Mul64(perByte.Execution, n)
		var c1, c2 uint64
		burn, c1 = bits.Add64(burn, b, 0)
		use, c2 = bits.Add64(use, u, 0)
		if hi1|hi2|c1|c2 != 0 {
			return overflowError("action fee")
		}
	}
	use, carry := bits.Add64(use, burn, 0)
	if carry != 0 {
		return overflowError("action fee")
	}
	return l.gas.PayAction(burn, use)
}

// createReceipt 在宿主状态与回执镜像中同时创建回执，返回新的 promise 下标
func (l *VMLogic) createReceipt(indices []uint64, receiver types.AccountID) (uint64, error) {
	if err := l.payReceiptCreation(receiver); err != nil {
		return 0, err
	}
	idx, err := l.ext.CreateReceipt(indices, receiver)
	if err != nil {
		return 0, externalError(err)
	}
	if idx != uint64(len(l.receipts)) {
		return 0, types.NewVMError(types.ClassHostContract, types.CodeInvalidReceiptIndex,
			"state provider returned receipt %d, expected %d", idx, len(l.receipts))
	}
	l.receipts = append(l.receipts, types.Receipt{
		ReceiptIndices: append([]uint64{}, indices...),
		ReceiverID:     receiver,
		Actions:        []types.Action{},
	})
	l.promises = append(l.promises, promise{kind: promiseReceipt, receiptIndex: idx})
	return uint64(len(l.promises) - 1), nil
}

// receiptFor 解析可追加动作的 promise，返回回执下标与接收方
func (l *VMLogic) receiptFor(promiseIdx uint64) (uint64, types.AccountID, error) {
	if promiseIdx >= uint64(len(l.promises)) {
		return 0, "", executionError(types.CodeInvalidPromiseIndex, "promise %d does not exist", promiseIdx)
	}
	p := l.promises[promiseIdx]
	if p.kind == promiseJoint {
		return 0, "", executionError(types.CodeCannotAppendActionToJoint, "promise %d is a joint promise", promiseIdx)
	}
	receipt := &l.receipts[p.receiptIndex]
	if uint64(len(receipt.Actions)) >= l.cfg.Limits.MaxActionsPerReceipt {
		return 0, "", limitError(types.CodeNumberActionsExceeded, "receipt %d already has %d actions", p.receiptIndex, len(receipt.Actions))
	}
	return p.receiptIndex, receipt.ReceiverID, nil
}

func (l *VMLogic) appendAction(receiptIdx uint64, action types.Action) {
	l.receipts[receiptIdx].Actions = append(l.receipts[receiptIdx].Actions, action)
}

func (l *VMLogic) beginPromiseCall(method string) error {
	if l.ctx.IsView {
		return prohibitedInView(method)
	}
	return l.gas.PayBase(types.ExtBase)
}

// PromiseBatchCreate promise_batch_create(account_id_len, account_id_ptr)
func (l *VMLogic) PromiseBatchCreate(accLen, accPtr uint64) (uint64, error) {
	if err := l.beginPromiseCall("promise_batch_create"); err != nil {
		return 0, err
	}
	receiver, err := l.readAccountID(accLen, accPtr)
	if err != nil {
		return 0, err
	}
	return l.createReceipt(nil, receiver)
}

// PromiseBatchThen promise_batch_then(promise_index, account_id_len, account_id_ptr)
func (l *VMLogic) PromiseBatchThen(promiseIdx, accLen, accPtr uint64) (uint64, error) {
	if err := l.beginPromiseCall("promise_batch_then"); err != nil {
		return 0, err
	}
	receiver, err := l.readAccountID(accLen, accPtr)
	if err != nil {
		return 0, err
	}
	if promiseIdx >= uint64(len(l.promises)) {
		return 0, executionError(types.CodeInvalidPromiseIndex, "promise %d does not exist", promiseIdx)
	}
	p := l.promises[promiseIdx]
	deps := []uint64{p.receiptIndex}
	if p.kind == promiseJoint {
		deps = p.joint
	}
	return l.createReceipt(deps, receiver)
}

// PromiseAnd promise_and(promise_idx_ptr, promise_idx_count)
func (l *VMLogic) PromiseAnd(idxPtr, count uint64) (uint64, error) {
	if err := l.beginPromiseCall("promise_and"); err != nil {
		return 0, err
	}
	indices, err := l.memoryGetU64s(idxPtr, count)
	if err != nil {
		return 0, err
	}
	var receipts []uint64
	for _, idx := range indices {
		if idx >= uint64(len(l.promises)) {
			return 0, executionError(types.CodeInvalidPromiseIndex, "promise %d does not exist", idx)
		}
		p := l.promises[idx]
		if p.kind == promiseJoint {
			receipts = append(receipts, p.joint...)
		} else {
			receipts = append(receipts, p.receiptIndex)
		}
	}
	l.promises = append(l.promises, promise{kind: promiseJoint, joint: receipts})
	return uint64(len(l.promises) - 1), nil
}

// PromiseCreate promise_create(...) = promise_batch_create + function_call
func (l *VMLogic) PromiseCreate(accLen, accPtr, methodLen, methodPtr, argsLen, argsPtr, amountPtr, gas uint64) (uint64, error) {
	idx, err := l.PromiseBatchCreate(accLen, accPtr)
	if err != nil {
		return 0, err
	}
	if err := l.PromiseBatchActionFunctionCall(idx, methodLen, methodPtr, argsLen, argsPtr, amountPtr, gas); err != nil {
		return 0, err
	}
	return idx, nil
}

// PromiseThen promise_then(...) = promise_batch_then + function_call
func (l *VMLogic) PromiseThen(promiseIdx, accLen, accPtr, methodLen, methodPtr, argsLen, argsPtr, amountPtr, gas uint64) (uint64, error) {
	idx, err := l.PromiseBatchThen(promiseIdx, accLen, accPtr)
	if err != nil {
		return 0, err
	}
	if err := l.PromiseBatchActionFunctionCall(idx, methodLen, methodPtr, argsLen, argsPtr, amountPtr, gas); err != nil {
		return 0, err
	}
	return idx, nil
}

// ==================== 动作 ====================

// PromiseBatchActionCreateAccount promise_batch_action_create_account(promise_index)
func (l *VMLogic) PromiseBatchActionCreateAccount(promiseIdx uint64) error {
	if err := l.beginPromiseCall("promise_batch_action_create_account"); err != nil {
		return err
	}
	receipt, receiver, err := l.receiptFor(promiseIdx)
	if err != nil {
		return err
	}
	if err := l.payActionFee(l.fees.ActionCreation.CreateAccountCost, receiver == l.ctx.CurrentAccountID, nil, 0); err != nil {
		return err
	}
	if err := l.ext.AppendActionCreateAccount(receipt); err != nil {
		return externalError(err)
	}
	l.appendAction(receipt, types.CreateAccountAction{})
	return nil
}

// PromiseBatchActionDeployContract promise_batch_action_deploy_contract(promise_index, code_len, code_ptr)
func (l *VMLogic) PromiseBatchActionDeployContract(promiseIdx, codeLen, codePtr uint64) error {
	if err := l.beginPromiseCall("promise_batch_action_deploy_contract"); err != nil {
		return err
	}
	code, err := l.memoryGet(codePtr, codeLen)
	if err != nil {
		return err
	}
	receipt, receiver, err := l.receiptFor(promiseIdx)
	if err != nil {
		return err
	}
	cost := &l.fees.ActionCreation
	if err := l.payActionFee(cost.DeployContractCost, receiver == l.ctx.CurrentAccountID, &cost.DeployContractCostPerByte, codeLen); err != nil {
		return err
	}
	if err := l.ext.AppendActionDeployContract(receipt, code); err != nil {
		return externalError(err)
	}
	l.appendAction(receipt, types.DeployContractAction{Code: code})
	return nil
}

// PromiseBatchActionFunctionCall promise_batch_action_function_call(promise_index, method_name_len,
// method_name_ptr, arguments_len, arguments_ptr, amount_ptr, gas)
func (l *VMLogic) PromiseBatchActionFunctionCall(promiseIdx, methodLen, methodPtr, argsLen, argsPtr, amountPtr, gas uint64) error {
	if err := l.beginPromiseCall("promise_batch_action_function_call"); err != nil {
		return err
	}
	lim := &l.cfg.Limits
	if methodLen > lim.MaxLengthMethodName {
		return limitError(types.CodeMethodNameTooLong, "method name of %d bytes exceeds %d", methodLen, lim.MaxLengthMethodName)
	}
	if argsLen > lim.MaxArgumentsLength {
		return limitError(types.CodeArgumentsTooLong, "arguments of %d bytes exceed %d", argsLen, lim.MaxArgumentsLength)
	}
	amount, err := l.memoryGetBalance(amountPtr)
	if err != nil {
		return err
	}
	method, err := l.memoryGet(methodPtr, methodLen)
	if err != nil {
		return err
	}
	if len(method) == 0 {
		return executionError(types.CodeInvalidMethodName, "empty method name")
	}
	args, err := l.memoryGet(argsPtr, argsLen)
	if err != nil {
		return err
	}
	receipt, receiver, err := l.receiptFor(promiseIdx)
	if err != nil {
		return err
	}
	cost := &l.fees.ActionCreation
	if err := l.payActionFee(cost.FunctionCallCost, receiver == l.ctx.CurrentAccountID, &cost.FunctionCallCostPerByte, methodLen+argsLen); err != nil {
		return err
	}
	if gas > lim.MaxTotalPrepaidGas {
		return limitError(types.CodeTotalPrepaidGasExceeded, "attached gas %d exceeds %d", gas, lim.MaxTotalPrepaidGas)
	}
	if err := l.gas.Prepay(gas); err != nil {
		return err
	}
	if err := l.deductBalance(&amount); err != nil {
		return err
	}
	if err := l.ext.AppendActionFunctionCall(receipt, string(method), args, amount, gas); err != nil {
		return externalError(err)
	}
	l.appendAction(receipt, types.FunctionCallAction{MethodName: string(method), Args: args, Gas: gas, Deposit: amount})
	return nil
}

// PromiseBatchActionTransfer promise_batch_action_transfer(promise_index, amount_ptr)
func (l *VMLogic) PromiseBatchActionTransfer(promiseIdx, amountPtr uint64) error {
	if err := l.beginPromiseCall("promise_batch_action_transfer"); err != nil {
		return err
	}
	amount, err := l.memoryGetBalance(amountPtr)
	if err != nil {
		return err
	}
	receipt, receiver, err := l.receiptFor(promiseIdx)
	if err != nil {
		return err
	}
	if err := l.payActionFee(l.fees.ActionCreation.TransferCost, receiver == l.ctx.CurrentAccountID, nil, 0); err != nil {
		return err
	}
	if err := l.deductBalance(&amount); err != nil {
		return err
	}
	if err := l.ext.AppendActionTransfer(receipt, amount); err != nil {
		return externalError(err)
	}
	l.appendAction(receipt, types.TransferAction{Deposit: amount})
	return nil
}

// PromiseBatchActionStake promise_batch_action_stake(promise_index, amount_ptr, public_key_len, public_key_ptr)
func (l *VMLogic) PromiseBatchActionStake(promiseIdx, amountPtr, pkLen, pkPtr uint64) error {
	if err := l.beginPromiseCall("promise_batch_action_stake"); err != nil {
		return err
	}
	amount, err := l.memoryGetBalance(amountPtr)
	if err != nil {
		return err
	}
	pk, err := l.readPublicKey(pkLen, pkPtr)
	if err != nil {
		return err
	}
	receipt, receiver, err := l.receiptFor(promiseIdx)
	if err != nil {
		return err
	}
	if err := l.payActionFee(l.fees.ActionCreation.StakeCost, receiver == l.ctx.CurrentAccountID, nil, 0); err != nil {
		return err
	}
	if err := l.ext.AppendActionStake(receipt, amount, pk); err != nil {
		return externalError(err)
	}
	l.appendAction(receipt, types.StakeAction{Stake: amount, PublicKey: pk})
	return nil
}

// PromiseBatchActionAddKeyWithFullAccess promise_batch_action_add_key_with_full_access(promise_index,
// public_key_len, public_key_ptr, nonce)
func (l *VMLogic) PromiseBatchActionAddKeyWithFullAccess(promiseIdx, pkLen, pkPtr, nonce uint64) error {
	if err := l.beginPromiseCall("promise_batch_action_add_key_with_full_access"); err != nil {
		return err
	}
	pk, err := l.readPublicKey(pkLen, pkPtr)
	if err != nil {
		return err
	}
	receipt, receiver, err := l.receiptFor(promiseIdx)
	if err != nil {
		return err
	}
	if err := l.payActionFee(l.fees.ActionCreation.AddKeyFullAccessCost, receiver == l.ctx.CurrentAccountID, nil, 0); err != nil {
		return err
	}
	if err := l.ext.AppendActionAddKeyWithFullAccess(receipt, pk, nonce); err != nil {
		return externalError(err)
	}
	l.appendAction(receipt, types.AddKeyWithFullAccessAction{PublicKey: pk, Nonce: nonce})
	return nil
}

// PromiseBatchActionAddKeyWithFunctionCall promise_batch_action_add_key_with_function_call(promise_index,
// public_key_len, public_key_ptr, nonce, allowance_ptr, receiver_id_len, receiver_id_ptr,
// method_names_len, method_names_ptr)
//
// allowance 为 0 表示不限额度；method_names 以逗号分隔。
func (l *VMLogic) PromiseBatchActionAddKeyWithFunctionCall(promiseIdx, pkLen, pkPtr, nonce, allowancePtr,
	receiverLen, receiverPtr, namesLen, namesPtr uint64) error {
	if err := l.beginPromiseCall("promise_batch_action_add_key_with_function_call"); err != nil {
		return err
	}
	pk, err := l.readPublicKey(pkLen, pkPtr)
	if err != nil {
		return err
	}
	allowance, err := l.memoryGetBalance(allowancePtr)
	if err != nil {
		return err
	}
	keyReceiver, err := l.readAccountID(receiverLen, receiverPtr)
	if err != nil {
		return err
	}
	if namesLen > l.cfg.Limits.MaxNumberBytesMethodNames {
		return limitError(types.CodeMethodNameTooLong, "method names of %d bytes exceed %d", namesLen, l.cfg.Limits.MaxNumberBytesMethodNames)
	}
	raw, err := l.memoryGet(namesPtr, namesLen)
	if err != nil {
		return err
	}
	var names []string
	if len(raw) > 0 {
		for _, name := range bytes.Split(raw, []byte{','}) {
			if len(name) == 0 {
				return executionError(types.CodeInvalidMethodName, "empty method name in %q", raw)
			}
			if uint64(len(name)) > l.cfg.Limits.MaxLengthMethodName {
				return limitError(types.CodeMethodNameTooLong, "method name of %d bytes exceeds %d", len(name), l.cfg.Limits.MaxLengthMethodName)
			}
			names = append(names, string(name))
		}
	}
	receipt, receiver, err := l.receiptFor(promiseIdx)
	if err != nil {
		return err
	}
	cost := &l.fees.ActionCreation
	if err := l.payActionFee(cost.AddKeyFunctionCallCost, receiver == l.ctx.CurrentAccountID, &cost.AddKeyFunctionCallCostPerByte, namesLen); err != nil {
		return err
	}
	var allowancePtrValue *types.Balance
	if !allowance.IsZero() {
		allowancePtrValue = &allowance
	}
	if err := l.ext.AppendActionAddKeyWithFunctionCall(receipt, pk, nonce, allowancePtrValue, keyReceiver, names); err != nil {
		return externalError(err)
	}
	l.appendAction(receipt, types.AddKeyWithFunctionCallAction{
		PublicKey:   pk,
		Nonce:       nonce,
		Allowance:   allowancePtrValue,
		ReceiverID:  keyReceiver,
		MethodNames: names,
	})
	return nil
}

// PromiseBatchActionDeleteKey promise_batch_action_delete_key(promise_index, public_key_len, public_key_ptr)
func (l *VMLogic) PromiseBatchActionDeleteKey(promiseIdx, pkLen, pkPtr uint64) error {
	if err := l.beginPromiseCall("promise_batch_action_delete_key"); err != nil {
		return err
	}
	pk, err := l.readPublicKey(pkLen, pkPtr)
	if err != nil {
		return err
	}
	receipt, receiver, err := l.receiptFor(promiseIdx)
	if err != nil {
		return err
	}
	if err := l.payActionFee(l.fees.ActionCreation.DeleteKeyCost, receiver == l.ctx.CurrentAccountID, nil, 0); err != nil {
		return err
	}
	if err := l.ext.AppendActionDeleteKey(receipt, pk); err != nil {
		return externalError(err)
	}
	l.appendAction(receipt, types.DeleteKeyAction{PublicKey: pk})
	return nil
}

// PromiseBatchActionDeleteAccount promise_batch_action_delete_account(promise_index,
// beneficiary_id_len, beneficiary_id_ptr)
func (l *VMLogic) PromiseBatchActionDeleteAccount(promiseIdx, benLen, benPtr uint64) error {
	if err := l.beginPromiseCall("promise_batch_action_delete_account"); err != nil {
		return err
	}
	beneficiary, err := l.readAccountID(benLen, benPtr)
	if err != nil {
		return err
	}
	receipt, receiver, err := l.receiptFor(promiseIdx)
	if err != nil {
		return err
	}
	if err := l.payActionFee(l.fees.ActionCreation.DeleteAccountCost, receiver == l.ctx.CurrentAccountID, nil, 0); err != nil {
		return err
	}
	if err := l.ext.AppendActionDeleteAccount(receipt, beneficiary); err != nil {
		return externalError(err)
	}
	l.appendAction(receipt, types.DeleteAccountAction{BeneficiaryID: beneficiary})
	return nil
}

// ==================== 前序结果 ====================

// PromiseResultsCount promise_results_count()
func (l *VMLogic) PromiseResultsCount() (uint64, error) {
	if err := l.beginPromiseCall("promise_results_count"); err != nil {
		return 0, err
	}
	return uint64(len(l.promiseResults)), nil
}

// PromiseResult promise_result(result_idx, register_id)
//
// 返回 0=未就绪，1=成功（数据写入寄存器），2=失败。
func (l *VMLogic) PromiseResult(idx, reg uint64) (uint64, error) {
	if err := l.beginPromiseCall("promise_result"); err != nil {
		return 0, err
	}
	if idx >= uint64(len(l.promiseResults)) {
		return 0, executionError(types.CodeInvalidPromiseResultIndex, "promise result %d does not exist", idx)
	}
	r := l.promiseResults[idx]
	switch r.Status {
	case types.PromiseResultSuccessful:
		if err := l.writeRegister(reg, r.Data); err != nil {
			return 0, err
		}
		return 1, nil
	case types.PromiseResultFailed:
		return 2, nil
	default:
		return 0, nil
	}
}

// PromiseReturn promise_return(promise_idx)
func (l *VMLogic) PromiseReturn(promiseIdx uint64) error {
	if err := l.beginPromiseCall("promise_return"); err != nil {
		return err
	}
	if err := l.gas.PayBase(types.ExtPromiseReturn); err != nil {
		return err
	}
	if promiseIdx >= uint64(len(l.promises)) {
		return executionError(types.CodeInvalidPromiseIndex, "promise %d does not exist", promiseIdx)
	}
	p := l.promises[promiseIdx]
	if p.kind == promiseJoint {
		return executionError(types.CodeCannotReturnJointPromise, "promise %d is a joint promise", promiseIdx)
	}
	l.returnData = types.ReturnReceipt(p.receiptIndex)
	return nil
}
