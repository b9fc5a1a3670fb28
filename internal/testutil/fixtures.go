package testutil

import (
	"math/big"

	"github.com/weisyn/vmrunner/pkg/types"
)

// ==================== 测试数据创建函数 ====================

// DefaultContext 默认执行环境
//
// 当前账户 alice，签名者 bob，前序调用方 carol，预付燃料 10^14。
func DefaultContext() *types.VMContext {
	return &types.VMContext{
		CurrentAccountID:     "alice",
		SignerAccountID:      "bob",
		SignerAccountPK:      []byte{0, 1, 2},
		PredecessorAccountID: "carol",
		Input:                []byte{},
		BlockIndex:           10,
		BlockTimestamp:       42,
		EpochHeight:          1,
		AccountBalance:       types.NewBalance(2),
		AccountLockedBalance: types.NewBalance(0),
		StorageUsage:         12,
		AttachedDeposit:      types.NewBalance(2),
		PrepaidGas:           100_000_000_000_000,
		RandomSeed:           []byte{0, 1, 2},
		IsView:               false,
		OutputDataReceivers:  []types.AccountID{},
	}
}

// ViewContext 只读调用环境
func ViewContext() *types.VMContext {
	ctx := DefaultContext()
	ctx.IsView = true
	return ctx
}

// Balance 由十进制字符串构造余额，非法输入 panic
func Balance(dec string) types.Balance {
	v, ok := new(big.Int).SetString(dec, 10)
	if !ok {
		panic("testutil: invalid balance " + dec)
	}
	var b types.Balance
	b.SetFromBig(v)
	return b
}
