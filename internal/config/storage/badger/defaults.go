package badger

import (
	"github.com/weisyn/vmrunner/pkg/utils"
)

// getDefaultPath 获取默认数据库路径
func getDefaultPath() string {
	return utils.ResolveDataPath("./data/badger")
}

const (
	// defaultSyncWrites 编译产物可随时重建，默认异步写入
	defaultSyncWrites = false

	// defaultMemTableSize 默认内存表大小为64MB
	defaultMemTableSize = 64 << 20

	// defaultValueLogFileSize 降低 mmap 虚拟地址占用
	defaultValueLogFileSize = 256 << 20

	// defaultBlockCacheSize / defaultIndexCacheSize 块与索引缓存
	defaultBlockCacheSize = 64 << 20
	defaultIndexCacheSize = 32 << 20
)
