package logic

import (
	"errors"
	"maps"
	"math/bits"
	"slices"

	"github.com/weisyn/vmrunner/pkg/types"
)

// ============================================================================
//                                 存储
// ============================================================================

func (l *VMLogic) checkKey(n uint64) error {
	if n > l.cfg.Limits.MaxLengthStorageKey {
		return limitError(types.CodeKeyLengthExceeded, "storage key of %d bytes exceeds %d", n, l.cfg.Limits.MaxLengthStorageKey)
	}
	return nil
}

// invalidateIterators 写入或删除前调用：已打开的迭代器全部失效并在宿主状态中释放
func (l *VMLogic) invalidateIterators() error {
	for id := range l.validIterators {
		l.invalidIterators[id] = struct{}{}
	}
	return l.ReleaseIterators()
}

// ReleaseIterators 释放仍打开的迭代器句柄，按句柄顺序执行，可重复调用
//
// 调用结束时由后端执行；宿主状态已失效的句柄视为已释放，返回第一个其它释放错误。
func (l *VMLogic) ReleaseIterators() error {
	var first error
	for _, id := range slices.Sorted(maps.Keys(l.validIterators)) {
		delete(l.validIterators, id)
		err := l.ext.StorageIterDrop(id)
		if err == nil || errors.Is(err, types.ErrInvalidIteratorIndex) {
			continue
		}
		if first == nil {
			first = externalError(err)
		}
	}
	return first
}

func (l *VMLogic) addStorageUsage(n uint64) error {
	sum, carry := bits.Add64(l.storageUsage, n, 0)
	if carry != 0 {
		return overflowError("storage usage")
	}
	l.storageUsage = sum
	return nil
}

func (l *VMLogic) subStorageUsage(n uint64) error {
	diff, borrow := bits.Sub64(l.storageUsage, n, 0)
	if borrow != 0 {
		return overflowError("storage usage")
	}
	l.storageUsage = diff
	return nil
}

// StorageWrite storage_write(key_len, key_ptr, value_len, value_ptr, register_id)
//
// 返回 1 表示覆盖了旧值（旧值写入寄存器），0 表示新建记录。
func (l *VMLogic) StorageWrite(keyLen, keyPtr, valueLen, valuePtr, reg uint64) (uint64, error) {
	if l.ctx.IsView {
		return 0, prohibitedInView("storage_write")
	}
	if err := l.gas.PayBase(types.ExtStorageWriteBase); err != nil {
		return 0, err
	}
	if err := l.checkKey(keyLen); err != nil {
		return 0, err
	}
	if valueLen > l.cfg.Limits.MaxLengthStorageValue {
		return 0, limitError(types.CodeValueLengthExceeded, "storage value of %d bytes exceeds %d", valueLen, l.cfg.Limits.MaxLengthStorageValue)
	}
	key, err := l.memoryGet(keyPtr, keyLen)
	if err != nil {
		return 0, err
	}
	value, err := l.memoryGet(valuePtr, valueLen)
	if err != nil {
		return 0, err
	}
	if err := l.gas.PayPerByte(types.ExtStorageWriteKeyByte, keyLen); err != nil {
		return 0, err
	}
	if err := l.gas.PayPerByte(types.ExtStorageWriteValueByte, valueLen); err != nil {
		return 0, err
	}

	if err := l.invalidateIterators(); err != nil {
		return 0, err
	}
	prev, existed, err := l.ext.StorageSet(key, value)
	if err != nil {
		return 0, externalError(err)
	}
	if !existed {
		if err := l.addStorageUsage(keyLen + valueLen + StorageNumExtraBytesRecord); err != nil {
			return 0, err
		}
		return 0, nil
	}

	if valueLen >= uint64(len(prev)) {
		err = l.addStorageUsage(valueLen - uint64(len(prev)))
	} else {
		err = l.subStorageUsage(uint64(len(prev)) - valueLen)
	}
	if err != nil {
		return 0, err
	}
	if err := l.gas.PayPerByte(types.ExtStorageWriteEvictedByte, uint64(len(prev))); err != nil {
		return 0, err
	}
	if err := l.writeRegister(reg, prev); err != nil {
		return 0, err
	}
	return 1, nil
}

// StorageRead storage_read(key_len, key_ptr, register_id)
func (l *VMLogic) StorageRead(keyLen, keyPtr, reg uint64) (uint64, error) {
	if err := l.gas.PayBase(types.ExtStorageReadBase); err != nil {
		return 0, err
	}
	if err := l.checkKey(keyLen); err != nil {
		return 0, err
	}
	key, err := l.memoryGet(keyPtr, keyLen)
	if err != nil {
		return 0, err
	}
	if err := l.gas.PayPerByte(types.ExtStorageReadKeyByte, keyLen); err != nil {
		return 0, err
	}
	value, ok, err := l.ext.StorageGet(key)
	if err != nil {
		return 0, externalError(err)
	}
	if !ok {
		return 0, nil
	}
	if err := l.gas.PayPerByte(types.ExtStorageReadValueByte, uint64(len(value))); err != nil {
		return 0, err
	}
	if err := l.writeRegister(reg, value); err != nil {
		return 0, err
	}
	return 1, nil
}

// StorageRemove storage_remove(key_len, key_ptr, register_id)
func (l *VMLogic) StorageRemove(keyLen, keyPtr, reg uint64) (uint64, error) {
	if l.ctx.IsView {
		return 0, prohibitedInView("storage_remove")
	}
	if err := l.gas.PayBase(types.ExtStorageRemoveBase); err != nil {
		return 0, err
	}
	if err := l.checkKey(keyLen); err != nil {
		return 0, err
	}
	key, err := l.memoryGet(keyPtr, keyLen)
	if err != nil {
		return 0, err
	}
	if err := l.gas.PayPerByte(types.ExtStorageRemoveKeyByte, keyLen); err != nil {
		return 0, err
	}

	if err := l.invalidateIterators(); err != nil {
		return 0, err
	}
	prev, existed, err := l.ext.StorageRemove(key)
	if err != nil {
		return 0, externalError(err)
	}
	if !existed {
		return 0, nil
	}
	if err := l.gas.PayPerByte(types.ExtStorageRemoveRetValueByte, uint64(len(prev))); err != nil {
		return 0, err
	}
	if err := l.subStorageUsage(keyLen + uint64(len(prev)) + StorageNumExtraBytesRecord); err != nil {
		return 0, err
	}
	if err := l.writeRegister(reg, prev); err != nil {
		return 0, err
	}
	return 1, nil
}

// StorageHasKey storage_has_key(key_len, key_ptr)
func (l *VMLogic) StorageHasKey(keyLen, keyPtr uint64) (uint64, error) {
	if err := l.gas.PayBase(types.ExtStorageHasKeyBase); err != nil {
		return 0, err
	}
	if err := l.checkKey(keyLen); err != nil {
		return 0, err
	}
	key, err := l.memoryGet(keyPtr, keyLen)
	if err != nil {
		return 0, err
	}
	if err := l.gas.PayPerByte(types.ExtStorageHasKeyByte, keyLen); err != nil {
		return 0, err
	}
	ok, err := l.ext.StorageHasKey(key)
	if err != nil {
		return 0, externalError(err)
	}
	if ok {
		return 1, nil
	}
	return 0, nil
}

// StorageIterPrefix storage_iter_prefix(prefix_len, prefix_ptr)
func (l *VMLogic) StorageIterPrefix(prefixLen, prefixPtr uint64) (uint64, error) {
	if err := l.gas.PayBase(types.ExtStorageIterCreatePrefixBase); err != nil {
		return 0, err
	}
	if err := l.checkKey(prefixLen); err != nil {
		return 0, err
	}
	prefix, err := l.memoryGet(prefixPtr, prefixLen)
	if err != nil {
		return 0, err
	}
	if err := l.gas.PayPerByte(types.ExtStorageIterCreatePrefixByte, prefixLen); err != nil {
		return 0, err
	}
	id, err := l.ext.StorageIter(prefix)
	if err != nil {
		return 0, externalError(err)
	}
	l.validIterators[id] = struct{}{}
	return id, nil
}

// StorageIterRange storage_iter_range(start_len, start_ptr, end_len, end_ptr)
func (l *VMLogic) StorageIterRange(startLen, startPtr, endLen, endPtr uint64) (uint64, error) {
	if err := l.gas.PayBase(types.ExtStorageIterCreateRangeBase); err != nil {
		return 0, err
	}
	if err := l.checkKey(startLen); err != nil {
		return 0, err
	}
	if err := l.checkKey(endLen); err != nil {
		return 0, err
	}
	start, err := l.memoryGet(startPtr, startLen)
	if err != nil {
		return 0, err
	}
	end, err := l.memoryGet(endPtr, endLen)
	if err != nil {
		return 0, err
	}
	if err := l.gas.PayPerByte(types.ExtStorageIterCreateFromByte, startLen); err != nil {
		return 0, err
	}
	if err := l.gas.PayPerByte(types.ExtStorageIterCreateToByte, endLen); err != nil {
		return 0, err
	}
	id, err := l.ext.StorageIterRange(start, end)
	if err != nil {
		return 0, externalError(err)
	}
	l.validIterators[id] = struct{}{}
	return id, nil
}

// StorageIterNext storage_iter_next(iterator_id, key_register_id, value_register_id)
//
// 返回 1 表示读到一条记录，0 表示迭代器已耗尽。
func (l *VMLogic) StorageIterNext(iter, keyReg, valueReg uint64) (uint64, error) {
	if err := l.gas.PayBase(types.ExtStorageIterNextBase); err != nil {
		return 0, err
	}
	if _, ok := l.invalidIterators[iter]; ok {
		return 0, executionError(types.CodeIteratorWasInvalidated, "iterator %d was invalidated by a write", iter)
	}
	if _, ok := l.validIterators[iter]; !ok {
		return 0, executionError(types.CodeInvalidGuestIteratorIndex, "iterator %d does not exist", iter)
	}
	key, value, ok, err := l.ext.StorageIterNext(iter)
	if err != nil {
		return 0, externalError(err)
	}
	if !ok {
		return 0, nil
	}
	if err := l.gas.PayPerByte(types.ExtStorageIterNextKeyByte, uint64(len(key))); err != nil {
		return 0, err
	}
	if err := l.gas.PayPerByte(types.ExtStorageIterNextValueByte, uint64(len(value))); err != nil {
		return 0, err
	}
	if err := l.writeRegister(keyReg, key); err != nil {
		return 0, err
	}
	if err := l.writeRegister(valueReg, value); err != nil {
		return 0, err
	}
	return 1, nil
}
