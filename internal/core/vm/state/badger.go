package state

import (
	"context"
	"fmt"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/weisyn/vmrunner/internal/core/infrastructure/crypto/hash"
	"github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/crypto"
	"github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/storage"
	"github.com/weisyn/vmrunner/pkg/interfaces/vm"
	"github.com/weisyn/vmrunner/pkg/types"
)

var _ vm.External = (*BadgerExternal)(nil)

// overlayEntry 写缓冲中的一条记录；deleted 为墓碑
type overlayEntry struct {
	value   []byte
	deleted bool
}

// BadgerExternal 以 BadgerDB 为底座的宿主状态
//
// 🎯 **调用级写缓冲**：
//   - 所有写入先进入内存 overlay，读取优先命中 overlay
//   - 迭代器逐条合并 overlay 与底层存储的只读快照，不预先加载区间
//   - Commit 在单个 Badger 事务中落盘；未 Commit 的写入不会持久化
//
// 键在底层存储中统一带上账户命名空间前缀。
type BadgerExternal struct {
	receiptWriter

	ctx       context.Context
	store     storage.BadgerStore
	namespace []byte
	overlay   *treemap.Map // string -> overlayEntry
	iters     iteratorTable
	hasher    crypto.HashManager
	logger    log.Logger
}

// NewBadgerExternal 创建账户级宿主状态
func NewBadgerExternal(ctx context.Context, store storage.BadgerStore, account types.AccountID, hasher crypto.HashManager, logger log.Logger) *BadgerExternal {
	if hasher == nil {
		hasher = hash.NewHashService()
	}
	return &BadgerExternal{
		ctx:       ctx,
		store:     store,
		namespace: []byte("state/" + account + "/"),
		overlay:   treemap.NewWithStringComparator(),
		iters:     newIteratorTable(),
		hasher:    hasher,
		logger:    logger,
	}
}

func (e *BadgerExternal) storeKey(key []byte) []byte {
	out := make([]byte, 0, len(e.namespace)+len(key))
	out = append(out, e.namespace...)
	return append(out, key...)
}

func externalError(op string, err error) error {
	return types.WrapVMError(types.ClassHostContract, types.CodeExternalError, fmt.Errorf("%s: %w", op, err))
}

func (e *BadgerExternal) read(key []byte) ([]byte, bool, error) {
	if v, ok := e.overlay.Get(string(key)); ok {
		entry := v.(overlayEntry)
		if entry.deleted {
			return nil, false, nil
		}
		return entry.value, true, nil
	}
	exists, err := e.store.Exists(e.ctx, e.storeKey(key))
	if err != nil {
		return nil, false, externalError("读取状态", err)
	}
	if !exists {
		return nil, false, nil
	}
	value, err := e.store.Get(e.ctx, e.storeKey(key))
	if err != nil {
		return nil, false, externalError("读取状态", err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, true, nil
}

func (e *BadgerExternal) StorageSet(key, value []byte) ([]byte, bool, error) {
	prev, existed, err := e.read(key)
	if err != nil {
		return nil, false, err
	}
	e.overlay.Put(string(key), overlayEntry{value: append([]byte{}, value...)})
	return prev, existed, nil
}

func (e *BadgerExternal) StorageGet(key []byte) ([]byte, bool, error) {
	v, ok, err := e.read(key)
	if err != nil || !ok {
		return nil, false, err
	}
	return append([]byte{}, v...), true, nil
}

func (e *BadgerExternal) StorageRemove(key []byte) ([]byte, bool, error) {
	prev, existed, err := e.read(key)
	if err != nil {
		return nil, false, err
	}
	if !existed {
		return nil, false, nil
	}
	e.overlay.Put(string(key), overlayEntry{deleted: true})
	e.iters.invalidateAll()
	return prev, true, nil
}

func (e *BadgerExternal) StorageHasKey(key []byte) (bool, error) {
	_, ok, err := e.read(key)
	return ok, err
}

// upperBound 返回以 key 为前缀的所有键的上界（前缀加一）
func upperBound(key []byte) []byte {
	end := append([]byte{}, key...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// mergeSource 逐条合并底层迭代器与 overlay
//
// 底层迭代器读取创建时刻的快照，overlay 按当前内容读取；同一个键以 overlay 为准，墓碑跳过。
type mergeSource struct {
	c        *cursor
	nsLen    int
	base     storage.BadgerIterator
	overlay  *treemap.Map
	baseKey  string
	baseVal  []byte
	peeked   bool
	baseDone bool
}

func (s *mergeSource) peekBase() (string, []byte, bool, error) {
	for !s.peeked && !s.baseDone {
		k, v, ok, err := s.base.Next()
		if err != nil {
			return "", nil, false, externalError("扫描状态", err)
		}
		if !ok {
			s.baseDone = true
			break
		}
		key := string(k[s.nsLen:])
		if s.c.started && key <= s.c.last {
			continue
		}
		s.baseKey, s.baseVal, s.peeked = key, v, true
	}
	return s.baseKey, s.baseVal, s.peeked, nil
}

func (s *mergeSource) peekOverlay() (string, overlayEntry, bool) {
	from := s.c.start
	if s.c.started {
		from = s.c.last + "\x00"
	}
	k, v := s.overlay.Ceiling(from)
	if k == nil {
		return "", overlayEntry{}, false
	}
	key := k.(string)
	if !s.c.accepts(key) {
		return "", overlayEntry{}, false
	}
	return key, v.(overlayEntry), true
}

func (s *mergeSource) next() ([]byte, []byte, bool, error) {
	if s.c.finished {
		return nil, nil, false, nil
	}
	for {
		baseKey, baseVal, hasBase, err := s.peekBase()
		if err != nil {
			return nil, nil, false, err
		}
		ovKey, entry, hasOverlay := s.peekOverlay()
		switch {
		case !hasBase && !hasOverlay:
			s.c.finished = true
			s.base.Close()
			return nil, nil, false, nil
		case hasOverlay && (!hasBase || ovKey <= baseKey):
			if hasBase && ovKey == baseKey {
				s.peeked = false
			}
			s.c.started, s.c.last = true, ovKey
			if entry.deleted {
				continue
			}
			return []byte(ovKey), append([]byte(nil), entry.value...), true, nil
		default:
			s.peeked = false
			s.c.started, s.c.last = true, baseKey
			return []byte(baseKey), baseVal, true, nil
		}
	}
}

func (s *mergeSource) close() { s.base.Close() }

func (e *BadgerExternal) openIterator(c *cursor, start, end []byte) (uint64, error) {
	base, err := e.store.NewIterator(e.ctx, start, end)
	if err != nil {
		return 0, externalError("打开状态迭代器", err)
	}
	return e.iters.add(&mergeSource{
		c:       c,
		nsLen:   len(e.namespace),
		base:    base,
		overlay: e.overlay,
	}), nil
}

func (e *BadgerExternal) StorageIter(prefix []byte) (uint64, error) {
	start := e.storeKey(prefix)
	return e.openIterator(newPrefixCursor(prefix), start, upperBound(start))
}

func (e *BadgerExternal) StorageIterRange(start, end []byte) (uint64, error) {
	upper := upperBound(e.namespace)
	if len(end) > 0 {
		upper = e.storeKey(end)
	}
	return e.openIterator(newRangeCursor(start, end), e.storeKey(start), upper)
}

func (e *BadgerExternal) StorageIterNext(iter uint64) ([]byte, []byte, bool, error) {
	src, ok := e.iters.get(iter)
	if !ok {
		return nil, nil, false, invalidIterator(iter)
	}
	return src.next()
}

func (e *BadgerExternal) StorageIterDrop(iter uint64) error {
	if !e.iters.drop(iter) {
		return invalidIterator(iter)
	}
	return nil
}

// OpenIterators 未释放的迭代器句柄数
func (e *BadgerExternal) OpenIterators() int { return e.iters.openCount() }

func (e *BadgerExternal) Sha256(data []byte) ([]byte, error) {
	return e.hasher.SHA256(data), nil
}

// Pending 未提交的写入条数（含删除）
func (e *BadgerExternal) Pending() int {
	return e.overlay.Size()
}

// Commit 在单个事务中落盘全部写入并清空 overlay
func (e *BadgerExternal) Commit(ctx context.Context) error {
	if e.overlay.Empty() {
		return nil
	}
	err := e.store.RunInTransaction(ctx, func(tx storage.BadgerTransaction) error {
		it := e.overlay.Iterator()
		for it.Next() {
			key := e.storeKey([]byte(it.Key().(string)))
			entry := it.Value().(overlayEntry)
			if entry.deleted {
				if err := tx.Delete(key); err != nil {
					return err
				}
				continue
			}
			if err := tx.Set(key, entry.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("提交合约状态失败: %w", err)
	}
	if e.logger != nil {
		e.logger.Debugf("合约状态已提交: namespace=%s entries=%d", e.namespace, e.overlay.Size())
	}
	e.overlay.Clear()
	return nil
}

// Discard 丢弃未提交的写入
func (e *BadgerExternal) Discard() {
	e.overlay.Clear()
	e.iters.invalidateAll()
}
