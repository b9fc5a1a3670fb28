// Package memory 提供基于BigCache的内存缓存实现
package memory

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
	memoryconfig "github.com/weisyn/vmrunner/internal/config/storage/memory"
	"github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/log"
	storage "github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/storage"
)

var _ storage.MemoryStore = (*Store)(nil)

// expiryHeaderSize 每个条目前置 8 字节过期时间（UnixNano，0 表示只受 LifeWindow 约束）
const expiryHeaderSize = 8

// ErrStoreClosed 存储已关闭
var ErrStoreClosed = errors.New("内存存储已关闭")

// Store 实现了MemoryStore接口，基于BigCache提供内存缓存功能
type Store struct {
	cache  *bigcache.BigCache
	logger log.Logger
	mutex  sync.RWMutex
	closed bool
	now    func() time.Time
}

// New 创建一个新的BigCache内存存储实例
func New(config *memoryconfig.Config, logger log.Logger) (*Store, error) {
	bigCacheConfig := bigcache.DefaultConfig(config.GetLifeWindow())
	bigCacheConfig.Shards = config.GetShards()
	bigCacheConfig.CleanWindow = config.GetCleanWindow()
	bigCacheConfig.MaxEntriesInWindow = config.GetMaxEntriesInWindow()
	bigCacheConfig.MaxEntrySize = config.GetMaxEntrySize()
	bigCacheConfig.HardMaxCacheSize = config.GetMaxMemoryMB()
	bigCacheConfig.Verbose = false

	cache, err := bigcache.New(context.Background(), bigCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("创建BigCache实例失败: %w", err)
	}
	if logger != nil {
		logger.Debugf("内存存储已创建: shards=%d hard_max=%dMB", bigCacheConfig.Shards, bigCacheConfig.HardMaxCacheSize)
	}
	return &Store{
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Close 关闭缓存并释放资源
func (s *Store) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.cache.Close()
}

func (s *Store) expired(entry []byte) bool {
	if len(entry) < expiryHeaderSize {
		return true
	}
	deadline := int64(binary.BigEndian.Uint64(entry[:expiryHeaderSize]))
	return deadline != 0 && s.now().UnixNano() >= deadline
}

// Get 获取缓存值
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return nil, false, ErrStoreClosed
	}

	entry, err := s.cache.Get(key)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("获取缓存键[%s]失败: %w", key, err)
	}
	if s.expired(entry) {
		_ = s.cache.Delete(key)
		return nil, false, nil
	}
	value := make([]byte, len(entry)-expiryHeaderSize)
	copy(value, entry[expiryHeaderSize:])
	return value, true, nil
}

// Set 设置缓存值，可指定过期时间
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	entry := make([]byte, expiryHeaderSize+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(entry[:expiryHeaderSize], uint64(s.now().Add(ttl).UnixNano()))
	}
	copy(entry[expiryHeaderSize:], value)
	if err := s.cache.Set(key, entry); err != nil {
		return fmt.Errorf("设置缓存键[%s]失败: %w", key, err)
	}
	return nil
}

// Delete 删除指定键的缓存
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	if err := s.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return fmt.Errorf("删除缓存键[%s]失败: %w", key, err)
	}
	return nil
}

// Exists 检查键是否存在
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// Count 获取当前缓存中的键数量（含尚未清理的过期条目）
func (s *Store) Count(ctx context.Context) (int64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}
	return int64(s.cache.Len()), nil
}

// Capacity 已分配的缓存字节数
func (s *Store) Capacity() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return 0
	}
	return s.cache.Capacity()
}

// Clear 清空所有缓存
func (s *Store) Clear(ctx context.Context) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.cache.Reset()
}
