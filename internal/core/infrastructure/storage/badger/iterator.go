package badger

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"

	badgerdb "github.com/dgraph-io/badger/v3"
	interfaces "github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/storage"
)

var _ interfaces.BadgerIterator = (*Iterator)(nil)

// Iterator 基于只读事务的前向迭代器
//
// 每次 Next 只读取一条记录；持有读事务期间看到的是创建时刻的快照。
type Iterator struct {
	ctx    context.Context
	txn    *badgerdb.Txn
	it     *badgerdb.Iterator
	end    []byte
	closed bool
}

// NewIterator 打开 [start, end) 内的迭代器
func (s *Store) NewIterator(ctx context.Context, start, end []byte) (interfaces.BadgerIterator, error) {
	if atomic.LoadInt32(&s.closing) == 1 {
		return nil, ErrStoreClosing
	}
	txn := s.db.NewTransaction(false)
	opts := badgerdb.DefaultIteratorOptions
	// 逐条读取，不预取 value
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	it.Seek(start)
	return &Iterator{
		ctx: ctx,
		txn: txn,
		it:  it,
		end: append([]byte(nil), end...),
	}, nil
}

// Next 返回下一条记录
func (i *Iterator) Next() ([]byte, []byte, bool, error) {
	if i.closed {
		return nil, nil, false, nil
	}
	if err := i.ctx.Err(); err != nil {
		return nil, nil, false, err
	}
	if !i.it.Valid() {
		i.Close()
		return nil, nil, false, nil
	}
	item := i.it.Item()
	if len(i.end) > 0 && bytes.Compare(item.Key(), i.end) >= 0 {
		i.Close()
		return nil, nil, false, nil
	}
	key := item.KeyCopy(nil)
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, nil, false, fmt.Errorf("badger读取迭代值失败: %w", err)
	}
	i.it.Next()
	return key, value, true, nil
}

// Close 关闭迭代器与读事务
func (i *Iterator) Close() {
	if i.closed {
		return
	}
	i.closed = true
	i.it.Close()
	i.txn.Discard()
}
