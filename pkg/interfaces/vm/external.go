// Package vm 定义合约执行核心的对外接口
//
// 📋 **接口清单**：
//   - External: 宿主状态接口（存储读写、迭代器、回执构造、哈希）
//   - CompiledContractCache: 编译产物缓存
//   - Backend / Module: 沙箱后端适配器
//
// 🎯 执行核心只通过这些接口与外部协作，状态存储、缓存介质和沙箱实现均可替换。
package vm

import (
	"github.com/weisyn/vmrunner/pkg/types"
)

// External 宿主状态接口
//
// 一次合约调用独占一个 External 实例（单协程使用，无需内部加锁）。
//
// 📋 **迭代器语义**：
//   - 迭代器句柄由实现方单调递增分配，永不复用
//   - 前缀迭代器遇到第一个不匹配前缀的键即结束
//   - 区间迭代器覆盖 [start, end)
//   - 已释放、未知或因删除而失效的句柄返回 types.ErrInvalidIteratorIndex
//
// 📋 **回执语义**：
//   - CreateReceipt 只能引用已创建的回执，否则返回 types.ErrInvalidReceiptIndex
//   - AppendAction* 对越界回执返回 types.ErrInvalidReceiptIndex
type External interface {
	// ==================== 存储 ====================

	// StorageSet 写入键值，返回被覆盖的旧值
	StorageSet(key, value []byte) (prev []byte, existed bool, err error)

	// StorageGet 读取键值
	StorageGet(key []byte) (value []byte, ok bool, err error)

	// StorageRemove 删除键，返回被删除的旧值
	StorageRemove(key []byte) (prev []byte, existed bool, err error)

	// StorageHasKey 检查键是否存在
	StorageHasKey(key []byte) (bool, error)

	// ==================== 迭代器 ====================

	// StorageIter 创建前缀迭代器
	StorageIter(prefix []byte) (uint64, error)

	// StorageIterRange 创建区间迭代器 [start, end)
	StorageIterRange(start, end []byte) (uint64, error)

	// StorageIterNext 前进一步；ok=false 表示已耗尽
	StorageIterNext(iter uint64) (key, value []byte, ok bool, err error)

	// StorageIterDrop 释放迭代器
	StorageIterDrop(iter uint64) error

	// ==================== 回执 ====================

	// CreateReceipt 创建回执，返回回执下标
	CreateReceipt(receiptIndices []uint64, receiverID types.AccountID) (uint64, error)

	AppendActionCreateAccount(receiptIndex uint64) error
	AppendActionDeployContract(receiptIndex uint64, code []byte) error
	AppendActionFunctionCall(receiptIndex uint64, methodName string, args []byte, attachedDeposit types.Balance, prepaidGas types.Gas) error
	AppendActionTransfer(receiptIndex uint64, amount types.Balance) error
	AppendActionStake(receiptIndex uint64, stake types.Balance, publicKey []byte) error
	AppendActionAddKeyWithFullAccess(receiptIndex uint64, publicKey []byte, nonce uint64) error
	AppendActionAddKeyWithFunctionCall(receiptIndex uint64, publicKey []byte, nonce uint64, allowance *types.Balance, receiverID types.AccountID, methodNames []string) error
	AppendActionDeleteKey(receiptIndex uint64, publicKey []byte) error
	AppendActionDeleteAccount(receiptIndex uint64, beneficiaryID types.AccountID) error

	// ==================== 工具 ====================

	// Sha256 计算 SHA-256
	Sha256(data []byte) ([]byte, error)
}
