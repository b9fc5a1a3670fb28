package memory

import "time"

// 内存存储默认配置值
const (
	// defaultMaxMemoryMB 编译产物缓存上限 256MB
	defaultMaxMemoryMB = 256

	// defaultShards BigCache 分片数
	defaultShards = 16

	// defaultLifeWindow 编译产物按内容寻址，生命周期只用于回收冷数据
	defaultLifeWindow = 24 * time.Hour

	// defaultCleanWindow 过期清理间隔
	defaultCleanWindow = 10 * time.Minute

	// defaultMaxEntrySize 预分配按该值计算，超出的条目由 BigCache 动态扩容
	defaultMaxEntrySize = 64 * 1024

	// defaultMaxEntries 生命周期内预估条目数
	defaultMaxEntries = 160
)
