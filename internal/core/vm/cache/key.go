package cache

import (
	"fmt"

	"github.com/weisyn/vmrunner/pkg/interfaces/infrastructure/crypto"
	"github.com/weisyn/vmrunner/pkg/types"
)

type keyMaterial struct {
	Version     uint16            `cbor:"1,keyasint"`
	CodeHash    []byte            `cbor:"2,keyasint"`
	Fingerprint types.Fingerprint `cbor:"3,keyasint"`
	Kind        types.VMKind      `cbor:"4,keyasint"`
}

// Key 派生缓存键
//
// 📋 SHA-256(CBOR{Version, CodeHash, Fingerprint, Kind})：代码、配置或后端
// 任一不同，键即不同。
func Key(hasher crypto.HashManager, codeHash []byte, fp types.Fingerprint, kind types.VMKind) ([]byte, error) {
	raw, err := types.DeterministicCBOR(keyMaterial{
		Version:     ArtifactVersion,
		CodeHash:    codeHash,
		Fingerprint: fp,
		Kind:        kind,
	})
	if err != nil {
		return nil, fmt.Errorf("encode cache key: %w", err)
	}
	return hasher.SHA256(raw), nil
}
