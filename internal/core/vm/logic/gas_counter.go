package logic

import (
	"math/bits"

	"github.com/weisyn/vmrunner/pkg/types"
)

// GasCounter 单次调用的燃料计数器
//
// 📋 **计量规则**：
//   - burnt: 本次调用实际燃烧的燃料
//   - used: burnt 加上为回执预留的燃料（动作执行费、附带的调用燃料）
//   - 非只读调用要求 used ≤ prepaid；任何调用都要求 burnt ≤ maxGasBurnt
//
// ⚠️ 超限时计数器被截断到上限（burnt ≤ min(maxGasBurnt, prepaid)），随后返回错误。
type GasCounter struct {
	burnt       types.Gas
	used        types.Gas
	prepaid     types.Gas
	maxGasBurnt types.Gas
	isView      bool

	extCosts *types.ExtCostsConfig
	opCost   types.Gas
	profile  *types.ProfileData
}

// NewGasCounter 创建计数器
func NewGasCounter(cfg *types.VMConfig, prepaid types.Gas, isView bool, profile *types.ProfileData) *GasCounter {
	return &GasCounter{
		prepaid:     prepaid,
		maxGasBurnt: cfg.Limits.MaxGasBurnt,
		isView:      isView,
		extCosts:    &cfg.ExtCosts,
		opCost:      types.Gas(cfg.RegularOpCost),
		profile:     profile,
	}
}

// Burnt 已燃烧燃料
func (g *GasCounter) Burnt() types.Gas { return g.burnt }

// Used 已使用燃料
func (g *GasCounter) Used() types.Gas { return g.used }

func (g *GasCounter) deduct(burn, use types.Gas) error {
	newBurnt, c1 := bits.Add64(g.burnt, burn, 0)
	newUsed, c2 := bits.Add64(g.used, use, 0)
	if c1 != 0 || c2 != 0 {
		return overflowError("gas counter")
	}
	if newBurnt <= g.maxGasBurnt && (g.isView || newUsed <= g.prepaid) {
		g.burnt = newBurnt
		g.used = newUsed
		return nil
	}

	var err error
	if newBurnt > g.maxGasBurnt {
		err = types.ErrGasLimitExceeded
	} else {
		err = types.ErrGasExceeded
	}
	maxBurnt := g.maxGasBurnt
	if g.prepaid < maxBurnt {
		maxBurnt = g.prepaid
	}
	g.burnt = minGas(newBurnt, maxBurnt)
	g.used = minGas(newUsed, g.prepaid)
	return err
}

// Burn 燃烧燃料（burnt 与 used 同时增加）
func (g *GasCounter) Burn(amount types.Gas) error {
	return g.deduct(amount, amount)
}

// PayBase 收取一次计费项基础费用
func (g *GasCounter) PayBase(item types.ExtCost) error {
	cost := g.extCosts.Cost(item)
	if g.profile != nil {
		g.profile.AddExtCost(item, cost)
	}
	return g.Burn(cost)
}

// PayPerByte 按字节数收取计费项费用
func (g *GasCounter) PayPerByte(item types.ExtCost, n uint64) error {
	hi, cost := bits.Mul64(g.extCosts.Cost(item), n)
	if hi != 0 {
		return overflowError(item.String())
	}
	if g.profile != nil {
		g.profile.AddExtCost(item, cost)
	}
	return g.Burn(cost)
}

// PayWasmOps 收取插桩上报的指令燃料
func (g *GasCounter) PayWasmOps(count uint32) error {
	cost := g.opCost * types.Gas(count)
	if g.profile != nil {
		g.profile.AddWasmGas(cost)
	}
	return g.Burn(cost)
}

// PayAction 收取动作费用：燃烧发送部分，预留执行部分
func (g *GasCounter) PayAction(burn, use types.Gas) error {
	if g.profile != nil {
		g.profile.AddActionGas(use)
	}
	return g.deduct(burn, use)
}

// Prepay 为回执预留燃料（只增加 used）
func (g *GasCounter) Prepay(amount types.Gas) error {
	return g.deduct(0, amount)
}

func minGas(a, b types.Gas) types.Gas {
	if a < b {
		return a
	}
	return b
}
