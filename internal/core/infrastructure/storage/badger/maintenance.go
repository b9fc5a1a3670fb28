package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
)

// valueLogGCInterval 值日志回收周期
const valueLogGCInterval = 30 * time.Minute

// RunValueLogGC 执行一轮值日志垃圾回收
//
// 编译产物以覆盖写为主，旧版本在 value log 中累积，需要定期回收。
func (s *Store) RunValueLogGC(discardRatio float64) error {
	if s.config.IsInMemory() {
		return nil
	}
	err := s.db.RunValueLogGC(discardRatio)
	if err != nil && !errors.Is(err, badgerdb.ErrNoRewrite) && !errors.Is(err, badgerdb.ErrRejected) {
		return fmt.Errorf("值日志垃圾回收失败: %w", err)
	}
	return nil
}

// StartMaintenanceRoutines 启动定期维护任务
func (s *Store) StartMaintenanceRoutines(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(valueLogGCInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.RunValueLogGC(0.5); err != nil {
					s.logger.Warnf("定期值日志垃圾回收失败: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
