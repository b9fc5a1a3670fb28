// Package compiler 进程内已编译模块缓存
package compiler

import (
	"context"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tetratelabs/wazero"
)

// DefaultCapacity 默认缓存条目数
const DefaultCapacity = 256

// Entry 缓存中的已编译模块
//
// 📋 **引用计数**：Acquire/Release 成对调用。条目被淘汰后，最后一个持有者
// Release 时才关闭编译结果，正在使用的模块不会被提前释放。
type Entry struct {
	Compiled wazero.CompiledModule
	// Size 插桩后字节码长度，用于估算内存占用
	Size int

	mu      sync.Mutex
	refs    int
	evicted bool
	closed  bool
}

// Acquire 增加引用；条目已关闭时返回 false
func (e *Entry) Acquire() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.refs++
	return true
}

// Release 释放引用
func (e *Entry) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refs--
	e.closeIfUnused()
}

func (e *Entry) evict() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evicted = true
	e.closeIfUnused()
}

func (e *Entry) closeIfUnused() {
	if e.evicted && e.refs <= 0 && !e.closed {
		e.closed = true
		_ = e.Compiled.Close(context.Background())
	}
}

// ModuleCache 已编译模块 LRU
//
// 🎯 按缓存键（代码哈希 + 配置指纹 + 后端类型）复用 wazero.CompiledModule，
// 淘汰时关闭编译结果；正在运行的实例不受影响。
type ModuleCache struct {
	cache *lru.Cache[string, *Entry]
	bytes atomic.Int64
	hits  atomic.Uint64
	miss  atomic.Uint64
}

// CacheStats 缓存统计信息
type CacheStats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
}

// NewModuleCache 创建模块缓存，capacity ≤ 0 使用默认容量
func NewModuleCache(capacity int) (*ModuleCache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &ModuleCache{}
	inner, err := lru.NewWithEvict[string, *Entry](capacity, func(_ string, e *Entry) {
		c.bytes.Add(-int64(e.Size))
		e.evict()
	})
	if err != nil {
		return nil, err
	}
	c.cache = inner
	return c, nil
}

// Get 获取并引用已编译模块，调用方用完后必须 Release
func (c *ModuleCache) Get(key string) (*Entry, bool) {
	e, ok := c.cache.Get(key)
	if ok && e.Acquire() {
		c.hits.Add(1)
		return e, true
	}
	c.miss.Add(1)
	return nil, false
}

// Add 登记并引用已编译模块，调用方用完后必须 Release
//
// 键已存在时沿用旧条目并关闭新编译结果，返回实际持有的条目。
func (c *ModuleCache) Add(key string, e *Entry) *Entry {
	if prev, ok, _ := c.cache.PeekOrAdd(key, e); ok && prev.Acquire() {
		_ = e.Compiled.Close(context.Background())
		return prev
	} else if ok {
		// 旧条目恰好被淘汰关闭，用新条目替换
		c.cache.Add(key, e)
	}
	e.Acquire()
	c.bytes.Add(int64(e.Size))
	return e
}

// Len 条目数
func (c *ModuleCache) Len() int { return c.cache.Len() }

// Bytes 已缓存模块的字节码总长
func (c *ModuleCache) Bytes() int64 { return c.bytes.Load() }

// Stats 获取统计信息
func (c *ModuleCache) Stats() CacheStats {
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.miss.Load(),
		Entries: c.cache.Len(),
		Bytes:   c.bytes.Load(),
	}
}

// Resize 调整容量，超出部分按 LRU 顺序淘汰，返回淘汰条目数
func (c *ModuleCache) Resize(capacity int) int {
	if capacity <= 0 {
		capacity = 1
	}
	return c.cache.Resize(capacity)
}

// Purge 清空缓存并关闭全部编译结果
func (c *ModuleCache) Purge() {
	c.cache.Purge()
}
