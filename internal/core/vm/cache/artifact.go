// Package cache 编译产物缓存
//
// 🎯 **组成**：
//   - Key: 由代码哈希、配置指纹和后端类型派生缓存键
//   - Artifact: 缓存值的信封格式（确定性 CBOR + snappy）
//   - MemoryCache / BadgerCache / MockCache: vm.CompiledContractCache 的三种实现
//
// 产物保存的是插桩后的字节码，读取方仍需交给后端编译；编译失败同样会被缓存，
// 重放时得到与首次编译相同的错误归类。
package cache

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/golang/snappy"

	"github.com/weisyn/vmrunner/pkg/types"
)

// ArtifactVersion 信封格式版本，格式变化时递增使旧条目失效
const ArtifactVersion uint16 = 1

var (
	// ErrCorruptArtifact 缓存值无法解码
	ErrCorruptArtifact = errors.New("corrupt compiled artifact")
	// ErrArtifactMismatch 缓存值与请求的版本/后端/配置不一致
	ErrArtifactMismatch = errors.New("compiled artifact does not match request")
)

// CachedError 缓存的编译失败
type CachedError struct {
	Class   types.ErrorClass `cbor:"1,keyasint"`
	Code    types.ErrorCode  `cbor:"2,keyasint"`
	Message string           `cbor:"3,keyasint,omitempty"`
}

// Artifact 编译产物
//
// Code 与 Error 恰好一个有效。
type Artifact struct {
	Version     uint16            `cbor:"1,keyasint"`
	Kind        types.VMKind      `cbor:"2,keyasint"`
	Fingerprint types.Fingerprint `cbor:"3,keyasint"`
	Code        []byte            `cbor:"4,keyasint,omitempty"`
	Error       *CachedError      `cbor:"5,keyasint,omitempty"`
}

// NewCodeArtifact 成功编译的产物
func NewCodeArtifact(kind types.VMKind, fp types.Fingerprint, prepared []byte) *Artifact {
	return &Artifact{Version: ArtifactVersion, Kind: kind, Fingerprint: fp, Code: prepared}
}

// NewErrorArtifact 编译失败的产物
func NewErrorArtifact(kind types.VMKind, fp types.Fingerprint, err *types.VMError) *Artifact {
	msg := err.Message
	if msg == "" && err.Err != nil {
		msg = err.Err.Error()
	}
	return &Artifact{
		Version:     ArtifactVersion,
		Kind:        kind,
		Fingerprint: fp,
		Error:       &CachedError{Class: err.Class, Code: err.Code, Message: msg},
	}
}

// VMError 还原缓存的编译错误；成功产物返回 nil
func (a *Artifact) VMError() *types.VMError {
	if a.Error == nil {
		return nil
	}
	return types.NewVMError(a.Error.Class, a.Error.Code, "%s", a.Error.Message)
}

// Encode 编码为缓存值
func (a *Artifact) Encode() ([]byte, error) {
	raw, err := types.DeterministicCBOR(a)
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return snappy.Encode(nil, raw), nil
}

// DecodeArtifact 解码缓存值，并校验版本、后端与配置指纹
func DecodeArtifact(value []byte, kind types.VMKind, fp types.Fingerprint) (*Artifact, error) {
	raw, err := snappy.Decode(nil, value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
	}
	var a Artifact
	if err := cbor.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
	}
	switch {
	case a.Version != ArtifactVersion:
		return nil, fmt.Errorf("%w: version %d", ErrArtifactMismatch, a.Version)
	case a.Kind != kind:
		return nil, fmt.Errorf("%w: kind %s", ErrArtifactMismatch, a.Kind)
	case a.Fingerprint != fp:
		return nil, fmt.Errorf("%w: fingerprint %s", ErrArtifactMismatch, a.Fingerprint)
	case (a.Error == nil) == (len(a.Code) == 0):
		return nil, fmt.Errorf("%w: exactly one of code and error must be set", ErrCorruptArtifact)
	}
	return &a, nil
}
