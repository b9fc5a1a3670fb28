package types

import "encoding/json"

// ReturnDataKind 返回数据类型
type ReturnDataKind uint8

const (
	// ReturnDataNone 无返回值
	ReturnDataNone ReturnDataKind = iota
	// ReturnDataValue 直接返回字节
	ReturnDataValue
	// ReturnDataReceiptIndex 返回值由另一个回执的执行结果提供
	ReturnDataReceiptIndex
)

// ReturnData 合约返回数据
type ReturnData struct {
	Kind         ReturnDataKind `json:"kind"`
	Value        []byte         `json:"value,omitempty"`
	ReceiptIndex uint64         `json:"receipt_index,omitempty"`
}

// ReturnNone 构造空返回值
func ReturnNone() ReturnData { return ReturnData{Kind: ReturnDataNone} }

// ReturnValue 构造字节返回值
func ReturnValue(v []byte) ReturnData { return ReturnData{Kind: ReturnDataValue, Value: v} }

// ReturnReceipt 构造回执引用返回值
func ReturnReceipt(idx uint64) ReturnData {
	return ReturnData{Kind: ReturnDataReceiptIndex, ReceiptIndex: idx}
}

// VMOutcome 一次合约调用的执行结果
//
// 🎯 每次成功调用产生一次，此后不可变。
type VMOutcome struct {
	BurntGas Gas `json:"burnt_gas"`
	UsedGas  Gas `json:"used_gas"`

	Logs       []string   `json:"logs"`
	ReturnData ReturnData `json:"return_data"`

	// StorageUsageDelta 本次调用引起的存储占用变化（字节）
	StorageUsageDelta int64 `json:"storage_usage_delta"`
	// StorageUsage 调用结束后的存储占用
	StorageUsage uint64 `json:"storage_usage"`
	// Balance 调用结束后的账户余额（已扣除转出）
	Balance Balance `json:"balance"`

	// Receipts 本次调用新创建的回执（按创建顺序，下标即回执索引）
	Receipts []Receipt `json:"receipts"`
}

// String 以JSON形式输出，便于日志和CLI展示
func (o *VMOutcome) String() string {
	b, err := json.Marshal(o)
	if err != nil {
		return "<invalid outcome>"
	}
	return string(b)
}
