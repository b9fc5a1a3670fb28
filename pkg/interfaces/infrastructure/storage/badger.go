package storage

import "context"

// BadgerStore 持久化有序键值存储
type BadgerStore interface {
	// Close 关闭数据库，等待进行中的写事务结束
	Close() error

	// Get 获取值，键不存在时返回 nil, nil
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Set 写入键值对
	Set(ctx context.Context, key, value []byte) error

	// Delete 删除键，键不存在不视为错误
	Delete(ctx context.Context, key []byte) error

	// Exists 检查键是否存在
	Exists(ctx context.Context, key []byte) (bool, error)

	// PrefixScan 返回所有以 prefix 开头的键值对（map 键为 string(key)）
	PrefixScan(ctx context.Context, prefix []byte) (map[string][]byte, error)

	// RangeScan 返回 [startKey, endKey) 内的键值对，endKey 为空表示不设上界
	RangeScan(ctx context.Context, startKey, endKey []byte) (map[string][]byte, error)

	// NewIterator 打开 [start, end) 内的前向只读迭代器，end 为空表示不设上界
	//
	// 迭代器读取创建时刻的快照，逐条读取，调用方用完后必须 Close。
	NewIterator(ctx context.Context, start, end []byte) (BadgerIterator, error)

	// RunInTransaction 在单个读写事务中执行 fn，fn 返回错误时回滚
	RunInTransaction(ctx context.Context, fn func(tx BadgerTransaction) error) error
}

// BadgerIterator 前向只读迭代器，非并发安全
type BadgerIterator interface {
	// Next 返回下一条记录，ok=false 表示已耗尽
	Next() (key, value []byte, ok bool, err error)

	// Close 释放底层读事务，可重复调用
	Close()
}

// BadgerTransaction 读写事务
type BadgerTransaction interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	Exists(key []byte) (bool, error)
}
