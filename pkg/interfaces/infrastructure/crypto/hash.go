// Package crypto 定义哈希计算接口
//
// 宿主层的 sha256 导入函数、宿主状态实现的 Sha256 以及编译缓存键都通过
// HashManager 计算，不直接依赖具体算法实现。
package crypto

// HashManager 哈希计算接口
type HashManager interface {
	// SHA256 计算SHA-256哈希
	SHA256(data []byte) []byte

	// Keccak256 计算Keccak-256哈希
	Keccak256(data []byte) []byte

	// RIPEMD160 计算RIPEMD-160哈希
	RIPEMD160(data []byte) []byte

	// DoubleSHA256 计算双重SHA-256哈希
	DoubleSHA256(data []byte) []byte
}
