// Package storage 定义合约执行核心使用的存储接口
//
// 📋 两类存储：
//   - MemoryStore: 进程内字节缓存（BigCache），承载编译产物的内存缓存
//   - BadgerStore: 持久化键值存储（BadgerDB），承载编译产物的磁盘缓存与合约状态
package storage

import (
	"context"
	"time"
)

// MemoryStore 内存键值缓存
type MemoryStore interface {
	// Get 获取缓存值，键不存在时 exists=false 且 err=nil
	Get(ctx context.Context, key string) (value []byte, exists bool, err error)

	// Set 设置缓存值，ttl 为 0 表示使用存储的默认生命周期
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete 删除键，键不存在不视为错误
	Delete(ctx context.Context, key string) error

	// Exists 检查键是否存在
	Exists(ctx context.Context, key string) (bool, error)

	// Count 当前条目数
	Count(ctx context.Context) (int64, error)

	// Clear 清空全部条目
	Clear(ctx context.Context) error

	// Close 释放后台清理协程
	Close() error
}
