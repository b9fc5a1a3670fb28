// Package hash 提供 HashManager 的标准实现
package hash

import (
	"crypto/sha256"
	"crypto/subtle"

	lru "github.com/hashicorp/golang-lru/v2"
	cryptointf "github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/crypto"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck
	"golang.org/x/crypto/sha3"
)

// 确保HashService实现了cryptointf.HashManager接口
var _ cryptointf.HashManager = (*HashService)(nil)

// defaultDerivedCacheSize 派生哈希缓存容量
const defaultDerivedCacheSize = 4096

type algo uint8

const (
	algoKeccak256 algo = iota + 1
	algoRIPEMD160
	algoDoubleSHA256
)

type derivedKey struct {
	algo   algo
	digest [sha256.Size]byte
}

// HashService 提供哈希计算功能
//
// SHA256 直接计算；其余算法以输入的 SHA-256 摘要为键缓存最近的结果。
type HashService struct {
	derived *lru.Cache[derivedKey, []byte]
}

// NewHashService 创建新的哈希服务
func NewHashService() *HashService {
	cache, err := lru.New[derivedKey, []byte](defaultDerivedCacheSize)
	if err != nil {
		// 只有容量非正时才会失败
		panic(err)
	}
	return &HashService{derived: cache}
}

// SHA256 计算SHA-256哈希
func (s *HashService) SHA256(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// Keccak256 计算Keccak-256哈希
func (s *HashService) Keccak256(data []byte) []byte {
	return s.cached(algoKeccak256, data, func() []byte {
		hasher := sha3.NewLegacyKeccak256()
		hasher.Write(data)
		return hasher.Sum(nil)
	})
}

// RIPEMD160 计算RIPEMD-160哈希
func (s *HashService) RIPEMD160(data []byte) []byte {
	return s.cached(algoRIPEMD160, data, func() []byte {
		hasher := ripemd160.New()
		hasher.Write(data)
		return hasher.Sum(nil)
	})
}

// DoubleSHA256 计算双重SHA-256哈希
func (s *HashService) DoubleSHA256(data []byte) []byte {
	return s.cached(algoDoubleSHA256, data, func() []byte {
		first := sha256.Sum256(data)
		second := sha256.Sum256(first[:])
		return second[:]
	})
}

func (s *HashService) cached(a algo, data []byte, compute func() []byte) []byte {
	key := derivedKey{algo: a, digest: sha256.Sum256(data)}
	if v, ok := s.derived.Get(key); ok {
		return append([]byte(nil), v...)
	}
	result := compute()
	s.derived.Add(key, append([]byte(nil), result...))
	return result
}

// ConstantTimeCompare 在常量时间内比较两个哈希值是否相等
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
