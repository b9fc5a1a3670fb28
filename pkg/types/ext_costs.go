package types

import (
	"encoding/json"
	"fmt"
)

// ExtCost 宿主函数计费项
type ExtCost uint8

const (
	ExtBase ExtCost = iota
	ExtContractCompileBase
	ExtContractCompileBytes
	ExtReadMemoryBase
	ExtReadMemoryByte
	ExtWriteMemoryBase
	ExtWriteMemoryByte
	ExtReadRegisterBase
	ExtReadRegisterByte
	ExtWriteRegisterBase
	ExtWriteRegisterByte
	ExtUTF8DecodingBase
	ExtUTF8DecodingByte
	ExtLogBase
	ExtLogByte
	ExtStorageWriteBase
	ExtStorageWriteKeyByte
	ExtStorageWriteValueByte
	ExtStorageWriteEvictedByte
	ExtStorageReadBase
	ExtStorageReadKeyByte
	ExtStorageReadValueByte
	ExtStorageRemoveBase
	ExtStorageRemoveKeyByte
	ExtStorageRemoveRetValueByte
	ExtStorageHasKeyBase
	ExtStorageHasKeyByte
	ExtStorageIterCreatePrefixBase
	ExtStorageIterCreatePrefixByte
	ExtStorageIterCreateRangeBase
	ExtStorageIterCreateFromByte
	ExtStorageIterCreateToByte
	ExtStorageIterNextBase
	ExtStorageIterNextKeyByte
	ExtStorageIterNextValueByte
	ExtSha256Base
	ExtSha256Byte
	ExtKeccak256Base
	ExtKeccak256Byte
	ExtRipemd160Base
	ExtRipemd160Block
	ExtPromiseReturn

	// ExtCostCount 计费项数量，必须位于最后
	ExtCostCount
)

var extCostNames = [ExtCostCount]string{
	"base",
	"contract_compile_base",
	"contract_compile_bytes",
	"read_memory_base",
	"read_memory_byte",
	"write_memory_base",
	"write_memory_byte",
	"read_register_base",
	"read_register_byte",
	"write_register_base",
	"write_register_byte",
	"utf8_decoding_base",
	"utf8_decoding_byte",
	"log_base",
	"log_byte",
	"storage_write_base",
	"storage_write_key_byte",
	"storage_write_value_byte",
	"storage_write_evicted_byte",
	"storage_read_base",
	"storage_read_key_byte",
	"storage_read_value_byte",
	"storage_remove_base",
	"storage_remove_key_byte",
	"storage_remove_ret_value_byte",
	"storage_has_key_base",
	"storage_has_key_byte",
	"storage_iter_create_prefix_base",
	"storage_iter_create_prefix_byte",
	"storage_iter_create_range_base",
	"storage_iter_create_from_byte",
	"storage_iter_create_to_byte",
	"storage_iter_next_base",
	"storage_iter_next_key_byte",
	"storage_iter_next_value_byte",
	"sha256_base",
	"sha256_byte",
	"keccak256_base",
	"keccak256_byte",
	"ripemd160_base",
	"ripemd160_block",
	"promise_return",
}

// String 返回计费项名称
func (c ExtCost) String() string {
	if c < ExtCostCount {
		return extCostNames[c]
	}
	return fmt.Sprintf("ext_cost(%d)", uint8(c))
}

// ExtCostsConfig 宿主函数计费表（按 ExtCost 下标）
//
// 以数组形式存储，CBOR 编码顺序固定，保证配置指纹确定。
type ExtCostsConfig [ExtCostCount]Gas

// Cost 返回某计费项单价
func (c ExtCostsConfig) Cost(item ExtCost) Gas {
	return c[item]
}

// MarshalJSON 以名称为键输出
func (c ExtCostsConfig) MarshalJSON() ([]byte, error) {
	m := make(map[string]Gas, ExtCostCount)
	for i, v := range c {
		m[extCostNames[i]] = v
	}
	return json.Marshal(m)
}

// UnmarshalJSON 按名称覆盖，未出现的计费项保持原值
func (c *ExtCostsConfig) UnmarshalJSON(data []byte) error {
	var m map[string]Gas
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	for name, v := range m {
		found := false
		for i, n := range extCostNames {
			if n == name {
				c[i] = v
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("未知的计费项: %q", name)
		}
	}
	return nil
}

// DefaultExtCosts 默认计费表
func DefaultExtCosts() ExtCostsConfig {
	var c ExtCostsConfig
	c[ExtBase] = 264768111
	c[ExtContractCompileBase] = 35445963
	c[ExtContractCompileBytes] = 216750
	c[ExtReadMemoryBase] = 2609863200
	c[ExtReadMemoryByte] = 3801333
	c[ExtWriteMemoryBase] = 2803794861
	c[ExtWriteMemoryByte] = 2723772
	c[ExtReadRegisterBase] = 2517165186
	c[ExtReadRegisterByte] = 98562
	c[ExtWriteRegisterBase] = 2865522486
	c[ExtWriteRegisterByte] = 3801564
	c[ExtUTF8DecodingBase] = 3111779061
	c[ExtUTF8DecodingByte] = 291580479
	c[ExtLogBase] = 3543313050
	c[ExtLogByte] = 13198791
	c[ExtStorageWriteBase] = 64196736000
	c[ExtStorageWriteKeyByte] = 70482867
	c[ExtStorageWriteValueByte] = 31018539
	c[ExtStorageWriteEvictedByte] = 32117307
	c[ExtStorageReadBase] = 56356845750
	c[ExtStorageReadKeyByte] = 30952533
	c[ExtStorageReadValueByte] = 5611005
	c[ExtStorageRemoveBase] = 53473030500
	c[ExtStorageRemoveKeyByte] = 38220384
	c[ExtStorageRemoveRetValueByte] = 11531556
	c[ExtStorageHasKeyBase] = 54039896625
	c[ExtStorageHasKeyByte] = 30790845
	c[ExtStorageIterCreatePrefixBase] = 0
	c[ExtStorageIterCreatePrefixByte] = 0
	c[ExtStorageIterCreateRangeBase] = 0
	c[ExtStorageIterCreateFromByte] = 0
	c[ExtStorageIterCreateToByte] = 0
	c[ExtStorageIterNextBase] = 0
	c[ExtStorageIterNextKeyByte] = 0
	c[ExtStorageIterNextValueByte] = 0
	c[ExtSha256Base] = 4540970250
	c[ExtSha256Byte] = 24117351
	c[ExtKeccak256Base] = 5879491275
	c[ExtKeccak256Byte] = 21471105
	c[ExtRipemd160Base] = 853675086
	c[ExtRipemd160Block] = 680107584
	c[ExtPromiseReturn] = 560152386
	return c
}
