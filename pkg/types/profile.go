package types

import (
	"encoding/json"
	"sync"
)

// ProfileData 单次调用的燃料剖析数据
//
// 🎯 由运行器在调用结束后（无论成功与否）写入 BurntGas；
// 宿主层在执行过程中累加各计费项与动作费用。可被多个调用共享累加。
type ProfileData struct {
	mu sync.Mutex

	burntGas  Gas
	wasmGas   Gas
	actionGas Gas
	extCosts  [ExtCostCount]Gas
}

// NewProfileData 创建空剖析数据
func NewProfileData() *ProfileData {
	return &ProfileData{}
}

// SetBurntGas 记录调用燃烧的总燃料
func (p *ProfileData) SetBurntGas(g Gas) {
	p.mu.Lock()
	p.burntGas = g
	p.mu.Unlock()
}

// AddExtCost 累加宿主函数计费项
func (p *ProfileData) AddExtCost(item ExtCost, g Gas) {
	p.mu.Lock()
	p.extCosts[item] += g
	p.mu.Unlock()
}

// AddWasmGas 累加指令计费
func (p *ProfileData) AddWasmGas(g Gas) {
	p.mu.Lock()
	p.wasmGas += g
	p.mu.Unlock()
}

// AddActionGas 累加动作费用
func (p *ProfileData) AddActionGas(g Gas) {
	p.mu.Lock()
	p.actionGas += g
	p.mu.Unlock()
}

// BurntGas 总燃烧燃料
func (p *ProfileData) BurntGas() Gas {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.burntGas
}

// WasmGas 指令计费合计
func (p *ProfileData) WasmGas() Gas {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wasmGas
}

// ActionGas 动作费用合计
func (p *ProfileData) ActionGas() Gas {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.actionGas
}

// ExtCost 某计费项合计
func (p *ProfileData) ExtCost(item ExtCost) Gas {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.extCosts[item]
}

// HostGas 全部宿主计费项合计
func (p *ProfileData) HostGas() Gas {
	p.mu.Lock()
	defer p.mu.Unlock()
	var total Gas
	for _, g := range p.extCosts {
		total += g
	}
	return total
}

// MarshalJSON 输出非零计费项
func (p *ProfileData) MarshalJSON() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ext := make(map[string]Gas)
	for i, g := range p.extCosts {
		if g != 0 {
			ext[ExtCost(i).String()] = g
		}
	}
	return json.Marshal(struct {
		BurntGas  Gas            `json:"burnt_gas"`
		WasmGas   Gas            `json:"wasm_gas"`
		ActionGas Gas            `json:"action_gas"`
		ExtCosts  map[string]Gas `json:"ext_costs"`
	}{p.burntGas, p.wasmGas, p.actionGas, ext})
}
