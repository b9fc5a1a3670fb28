package state

import (
	"strings"

	"github.com/emirpasic/gods/maps/treemap"
)

// cursor 有序键空间上的前向游标
//
// 前缀游标：start = prefix，遇到第一个不以 prefix 开头的键即结束；
// 区间游标：覆盖 [start, end)，end 为空表示不设上界。
type cursor struct {
	prefix   []byte
	start    string
	end      string
	hasEnd   bool
	last     string
	started  bool
	finished bool
}

func newPrefixCursor(prefix []byte) *cursor {
	return &cursor{prefix: append([]byte{}, prefix...), start: string(prefix)}
}

func newRangeCursor(start, end []byte) *cursor {
	return &cursor{start: string(start), end: string(end), hasEnd: len(end) > 0}
}

// next 在 tree（string -> []byte）上前进一步
func (c *cursor) next(tree *treemap.Map) (key, value []byte, ok bool) {
	if c.finished {
		return nil, nil, false
	}
	from := c.start
	if c.started {
		// 严格大于上一次返回的键
		from = c.last + "\x00"
	}
	k, v := tree.Ceiling(from)
	if k == nil {
		c.finished = true
		return nil, nil, false
	}
	ks := k.(string)
	if !c.accepts(ks) {
		c.finished = true
		return nil, nil, false
	}
	c.started = true
	c.last = ks
	val := v.([]byte)
	return []byte(ks), append([]byte(nil), val...), true
}

func (c *cursor) accepts(key string) bool {
	if c.prefix != nil && !strings.HasPrefix(key, string(c.prefix)) {
		return false
	}
	if c.hasEnd && strings.Compare(key, c.end) >= 0 {
		return false
	}
	return true
}

// source 迭代器句柄背后的数据源
type source interface {
	next() (key, value []byte, ok bool, err error)
	close()
}

// treeSource 直接在有序字典上前进的游标
type treeSource struct {
	c    *cursor
	tree *treemap.Map
}

func (s *treeSource) next() ([]byte, []byte, bool, error) {
	k, v, ok := s.c.next(s.tree)
	return k, v, ok, nil
}

func (s *treeSource) close() {}

// iteratorTable 迭代器句柄分配与回收
//
// 句柄单调递增，永不复用；删除键时关闭全部已打开的迭代器。
type iteratorTable struct {
	next uint64
	open map[uint64]source
}

func newIteratorTable() iteratorTable {
	return iteratorTable{open: make(map[uint64]source)}
}

func (t *iteratorTable) add(src source) uint64 {
	id := t.next
	t.next++
	t.open[id] = src
	return id
}

func (t *iteratorTable) get(id uint64) (source, bool) {
	src, ok := t.open[id]
	return src, ok
}

func (t *iteratorTable) drop(id uint64) bool {
	src, ok := t.open[id]
	if !ok {
		return false
	}
	src.close()
	delete(t.open, id)
	return true
}

func (t *iteratorTable) invalidateAll() {
	for id, src := range t.open {
		src.close()
		delete(t.open, id)
	}
}

// openCount 未释放的句柄数
func (t *iteratorTable) openCount() int { return len(t.open) }
