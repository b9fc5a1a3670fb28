package vm

// CompiledContractCache 编译产物缓存
//
// 键由运行器计算（代码哈希 + 配置指纹 + 后端类型），值为不透明的产物字节。
// 实现必须允许并发调用。Get/Put 的错误只会被记录，不会让合约调用失败。
type CompiledContractCache interface {
	// Get 读取产物，不存在时返回 ok=false
	Get(key []byte) (value []byte, ok bool, err error)

	// Put 写入产物，同键覆盖
	Put(key, value []byte) error
}
