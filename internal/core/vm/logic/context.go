package logic

import (
	"github.com/weisyn/vmrunner/pkg/types"
)

// ============================================================================
//                              执行环境读取
// ============================================================================

func (l *VMLogic) writeContextRegister(reg uint64, data []byte) error {
	if err := l.gas.PayBase(types.ExtBase); err != nil {
		return err
	}
	return l.writeRegister(reg, data)
}

// CurrentAccountID current_account_id(register_id)
func (l *VMLogic) CurrentAccountID(reg uint64) error {
	return l.writeContextRegister(reg, []byte(l.ctx.CurrentAccountID))
}

// SignerAccountID signer_account_id(register_id)
func (l *VMLogic) SignerAccountID(reg uint64) error {
	if l.ctx.IsView {
		return prohibitedInView("signer_account_id")
	}
	return l.writeContextRegister(reg, []byte(l.ctx.SignerAccountID))
}

// SignerAccountPK signer_account_pk(register_id)
func (l *VMLogic) SignerAccountPK(reg uint64) error {
	if l.ctx.IsView {
		return prohibitedInView("signer_account_pk")
	}
	return l.writeContextRegister(reg, l.ctx.SignerAccountPK)
}

// PredecessorAccountID predecessor_account_id(register_id)
func (l *VMLogic) PredecessorAccountID(reg uint64) error {
	if l.ctx.IsView {
		return prohibitedInView("predecessor_account_id")
	}
	return l.writeContextRegister(reg, []byte(l.ctx.PredecessorAccountID))
}

// Input input(register_id)
func (l *VMLogic) Input(reg uint64) error {
	return l.writeContextRegister(reg, l.ctx.Input)
}

// RandomSeed random_seed(register_id)
func (l *VMLogic) RandomSeed(reg uint64) error {
	return l.writeContextRegister(reg, l.ctx.RandomSeed)
}

func (l *VMLogic) contextU64(v uint64) (uint64, error) {
	if err := l.gas.PayBase(types.ExtBase); err != nil {
		return 0, err
	}
	return v, nil
}

// BlockIndex block_index()
func (l *VMLogic) BlockIndex() (uint64, error) { return l.contextU64(l.ctx.BlockIndex) }

// BlockTimestamp block_timestamp()
func (l *VMLogic) BlockTimestamp() (uint64, error) { return l.contextU64(l.ctx.BlockTimestamp) }

// EpochHeight epoch_height()
func (l *VMLogic) EpochHeight() (uint64, error) { return l.contextU64(l.ctx.EpochHeight) }

// StorageUsage storage_usage()，返回调用中实时更新的占用
func (l *VMLogic) StorageUsage() (uint64, error) { return l.contextU64(l.storageUsage) }

// ============================================================================
//                                 经济相关
// ============================================================================

// AccountBalance account_balance(balance_ptr)，返回扣除已转出金额后的余额
func (l *VMLogic) AccountBalance(ptr uint64) error {
	if err := l.gas.PayBase(types.ExtBase); err != nil {
		return err
	}
	return l.memorySetBalance(ptr, &l.balance)
}

// AccountLockedBalance account_locked_balance(balance_ptr)
func (l *VMLogic) AccountLockedBalance(ptr uint64) error {
	if err := l.gas.PayBase(types.ExtBase); err != nil {
		return err
	}
	return l.memorySetBalance(ptr, &l.ctx.AccountLockedBalance)
}

// AttachedDeposit attached_deposit(balance_ptr)
func (l *VMLogic) AttachedDeposit(ptr uint64) error {
	if err := l.gas.PayBase(types.ExtBase); err != nil {
		return err
	}
	if l.ctx.IsView {
		return prohibitedInView("attached_deposit")
	}
	return l.memorySetBalance(ptr, &l.ctx.AttachedDeposit)
}

// PrepaidGas prepaid_gas()
func (l *VMLogic) PrepaidGas() (uint64, error) {
	if err := l.gas.PayBase(types.ExtBase); err != nil {
		return 0, err
	}
	if l.ctx.IsView {
		return 0, prohibitedInView("prepaid_gas")
	}
	return l.ctx.PrepaidGas, nil
}

// UsedGas used_gas()
func (l *VMLogic) UsedGas() (uint64, error) {
	if err := l.gas.PayBase(types.ExtBase); err != nil {
		return 0, err
	}
	if l.ctx.IsView {
		return 0, prohibitedInView("used_gas")
	}
	return l.gas.Used(), nil
}

// deductBalance 从当前余额扣除转出金额
func (l *VMLogic) deductBalance(amount *types.Balance) error {
	if l.balance.Lt(amount) {
		return executionError(types.CodeBalanceExceeded, "balance %s is below %s", l.balance.Dec(), amount.Dec())
	}
	l.balance.Sub(&l.balance, amount)
	return nil
}
