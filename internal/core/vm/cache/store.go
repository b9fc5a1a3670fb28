package cache

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/storage"
	"github.com/weisyn/vmrunner/pkg/interfaces/vm"
)

var (
	_ vm.CompiledContractCache = (*MemoryCache)(nil)
	_ vm.CompiledContractCache = (*BadgerCache)(nil)
	_ vm.CompiledContractCache = (*MockCache)(nil)
)

// ==================== 内存缓存 ====================

// MemoryCache 基于 MemoryStore（BigCache）的产物缓存
//
// ⚠️ BigCache 会按生命周期与容量淘汰条目，命中不是保证的。
type MemoryCache struct {
	store storage.MemoryStore
}

// NewMemoryCache 创建内存产物缓存
func NewMemoryCache(store storage.MemoryStore) *MemoryCache {
	return &MemoryCache{store: store}
}

func (c *MemoryCache) Get(key []byte) ([]byte, bool, error) {
	return c.store.Get(context.Background(), hex.EncodeToString(key))
}

func (c *MemoryCache) Put(key, value []byte) error {
	return c.store.Set(context.Background(), hex.EncodeToString(key), value, 0)
}

// ==================== 磁盘缓存 ====================

// badgerPrefix 产物键前缀，与状态快照共用一个 BadgerDB 时互不干扰
var badgerPrefix = []byte("vm/artifact/")

// BadgerCache 基于 BadgerStore 的持久化产物缓存
type BadgerCache struct {
	store storage.BadgerStore
}

// NewBadgerCache 创建磁盘产物缓存
func NewBadgerCache(store storage.BadgerStore) *BadgerCache {
	return &BadgerCache{store: store}
}

func badgerKey(key []byte) []byte {
	out := make([]byte, 0, len(badgerPrefix)+len(key))
	return append(append(out, badgerPrefix...), key...)
}

func (c *BadgerCache) Get(key []byte) ([]byte, bool, error) {
	value, err := c.store.Get(context.Background(), badgerKey(key))
	if err != nil {
		return nil, false, err
	}
	return value, value != nil, nil
}

func (c *BadgerCache) Put(key, value []byte) error {
	return c.store.Set(context.Background(), badgerKey(key), value)
}

// Len 已缓存的产物数
func (c *BadgerCache) Len(ctx context.Context) (int, error) {
	entries, err := c.store.PrefixScan(ctx, badgerPrefix)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// ==================== 测试缓存 ====================

// MockCache 以 map 实现的产物缓存，记录调用次数
type MockCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	gets    int
	puts    int

	// GetErr / PutErr 非 nil 时对应操作返回该错误
	GetErr error
	PutErr error
}

// NewMockCache 创建测试缓存
func NewMockCache() *MockCache {
	return &MockCache{entries: make(map[string][]byte)}
}

func (c *MockCache) Get(key []byte) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.GetErr != nil {
		return nil, false, c.GetErr
	}
	v, ok := c.entries[string(key)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (c *MockCache) Put(key, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	if c.PutErr != nil {
		return c.PutErr
	}
	c.entries[string(key)] = append([]byte(nil), value...)
	return nil
}

// Len 条目数
func (c *MockCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Calls 返回 Get / Put 调用次数
func (c *MockCache) Calls() (gets, puts int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gets, c.puts
}

// Corrupt 把所有条目替换为无法解码的字节
func (c *MockCache) Corrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		c.entries[k] = []byte{0xff, 0x00}
	}
}
