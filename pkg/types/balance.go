package types

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Balance 账户余额（128位无符号整数，存放在 uint256 中）
type Balance = uint256.Int

// BalanceSize 余额在合约内存中的字节长度（u128 小端序）
const BalanceSize = 16

// NewBalance 由 uint64 构造余额
func NewBalance(v uint64) Balance {
	return *uint256.NewInt(v)
}

// BalanceFromLE 从 16 字节小端序解析余额
func BalanceFromLE(b []byte) (Balance, error) {
	if len(b) != BalanceSize {
		return Balance{}, fmt.Errorf("余额长度错误: %d", len(b))
	}
	be := make([]byte, BalanceSize)
	for i := 0; i < BalanceSize; i++ {
		be[i] = b[BalanceSize-1-i]
	}
	var out Balance
	out.SetBytes(be)
	return out, nil
}

// BalanceToLE 将余额编码为 16 字节小端序
//
// ⚠️ 高于 128 位的部分会被截断，调用方需保证余额不超过 u128。
func BalanceToLE(v *Balance) []byte {
	be := v.Bytes32()
	out := make([]byte, BalanceSize)
	for i := 0; i < BalanceSize; i++ {
		out[i] = be[31-i]
	}
	return out
}

// FitsU128 余额是否在 u128 范围内
func FitsU128(v *Balance) bool {
	return v.BitLen() <= 128
}
