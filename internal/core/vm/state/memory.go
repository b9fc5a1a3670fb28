// Package state 提供宿主状态接口（vm.External）的实现
//
// 📋 **实现清单**：
//   - MemoryExternal: 纯内存有序字典，测试与离线工具使用
//   - BadgerExternal: 调用级写缓冲叠加在 BadgerDB 之上，Commit 时一次性落盘
package state

import (
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/weisyn/vmrunner/internal/core/infrastructure/crypto/hash"
	"github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/crypto"
	"github.com/weisyn/vmrunner/pkg/interfaces/vm"
)

var _ vm.External = (*MemoryExternal)(nil)

// MemoryExternal 内存宿主状态
type MemoryExternal struct {
	receiptWriter

	trie   *treemap.Map // string -> []byte
	iters  iteratorTable
	hasher crypto.HashManager
}

// NewMemoryExternal 创建内存宿主状态；hasher 为 nil 时使用默认哈希服务
func NewMemoryExternal(hasher crypto.HashManager) *MemoryExternal {
	if hasher == nil {
		hasher = hash.NewHashService()
	}
	return &MemoryExternal{
		trie:   treemap.NewWithStringComparator(),
		iters:  newIteratorTable(),
		hasher: hasher,
	}
}

// Seed 直接写入初始状态（不影响迭代器与回执）
func (e *MemoryExternal) Seed(entries map[string][]byte) {
	for k, v := range entries {
		e.trie.Put(k, append([]byte(nil), v...))
	}
}

// Entries 返回当前全部键值（按键有序）
func (e *MemoryExternal) Entries() map[string][]byte {
	out := make(map[string][]byte, e.trie.Size())
	it := e.trie.Iterator()
	for it.Next() {
		out[it.Key().(string)] = append([]byte(nil), it.Value().([]byte)...)
	}
	return out
}

func (e *MemoryExternal) StorageSet(key, value []byte) ([]byte, bool, error) {
	prev, existed := e.trie.Get(string(key))
	e.trie.Put(string(key), append([]byte(nil), value...))
	if !existed {
		return nil, false, nil
	}
	return prev.([]byte), true, nil
}

func (e *MemoryExternal) StorageGet(key []byte) ([]byte, bool, error) {
	v, ok := e.trie.Get(string(key))
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v.([]byte)...), true, nil
}

func (e *MemoryExternal) StorageRemove(key []byte) ([]byte, bool, error) {
	prev, existed := e.trie.Get(string(key))
	if !existed {
		return nil, false, nil
	}
	e.trie.Remove(string(key))
	e.iters.invalidateAll()
	return prev.([]byte), true, nil
}

func (e *MemoryExternal) StorageHasKey(key []byte) (bool, error) {
	_, ok := e.trie.Get(string(key))
	return ok, nil
}

func (e *MemoryExternal) StorageIter(prefix []byte) (uint64, error) {
	return e.iters.add(&treeSource{c: newPrefixCursor(prefix), tree: e.trie}), nil
}

func (e *MemoryExternal) StorageIterRange(start, end []byte) (uint64, error) {
	return e.iters.add(&treeSource{c: newRangeCursor(start, end), tree: e.trie}), nil
}

func (e *MemoryExternal) StorageIterNext(iter uint64) ([]byte, []byte, bool, error) {
	src, ok := e.iters.get(iter)
	if !ok {
		return nil, nil, false, invalidIterator(iter)
	}
	return src.next()
}

func (e *MemoryExternal) StorageIterDrop(iter uint64) error {
	if !e.iters.drop(iter) {
		return invalidIterator(iter)
	}
	return nil
}

// OpenIterators 未释放的迭代器句柄数
func (e *MemoryExternal) OpenIterators() int { return e.iters.openCount() }

func (e *MemoryExternal) Sha256(data []byte) ([]byte, error) {
	return e.hasher.SHA256(data), nil
}
