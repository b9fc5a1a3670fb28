package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pterm/pterm"

	"github.com/weisyn/vmrunner/pkg/types"
)

// showSection 显示区块标题
func showSection(title string) {
	if globalFlags.JSON {
		return
	}
	pterm.DefaultSection.Println(title)
}

// showTable 显示带表头的表格
func showTable(header []string, rows [][]string) {
	data := pterm.TableData{header}
	data = append(data, rows...)
	_ = pterm.DefaultTable.WithHasHeader(true).WithData(data).Render()
}

// showKeyValue 显示无表头的键值表格
func showKeyValue(rows [][]string) {
	_ = pterm.DefaultTable.WithHasHeader(false).WithData(rows).Render()
}

func showSuccess(message string) {
	if !globalFlags.JSON {
		pterm.Success.Println(message)
	}
}

func showWarning(message string) {
	pterm.Warning.Println(message)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// showOutcome 输出一次调用的结果
func showOutcome(out *types.VMOutcome) error {
	if globalFlags.JSON {
		return printJSON(out)
	}

	showSection("执行结果")
	showKeyValue([][]string{
		{"burnt_gas", fmt.Sprintf("%d", out.BurntGas)},
		{"used_gas", fmt.Sprintf("%d", out.UsedGas)},
		{"return", formatReturn(out.ReturnData)},
		{"storage_usage", fmt.Sprintf("%d (%+d)", out.StorageUsage, out.StorageUsageDelta)},
		{"balance", out.Balance.Dec()},
	})

	if len(out.Logs) > 0 {
		showSection("日志")
		rows := make([][]string, 0, len(out.Logs))
		for i, l := range out.Logs {
			rows = append(rows, []string{fmt.Sprintf("%d", i), l})
		}
		showTable([]string{"#", "message"}, rows)
	}

	if len(out.Receipts) > 0 {
		showSection("回执")
		rows := make([][]string, 0, len(out.Receipts))
		for i, r := range out.Receipts {
			actions, err := json.Marshal(r)
			if err != nil {
				return err
			}
			rows = append(rows, []string{fmt.Sprintf("%d", i), r.ReceiverID, string(actions)})
		}
		showTable([]string{"#", "receiver", "receipt"}, rows)
	}
	return nil
}

// showVMError 输出失败调用的错误类别与燃料报告
func showVMError(err error) error {
	vmErr, ok := types.AsVMError(err)
	if !ok {
		return err
	}
	if globalFlags.JSON {
		_ = printJSON(map[string]interface{}{
			"error": map[string]interface{}{
				"class":   vmErr.Class.String(),
				"code":    string(vmErr.Code),
				"message": vmErr.Error(),
			},
			"gas": vmErr.Gas,
		})
		return err
	}
	showSection("执行失败")
	rows := [][]string{
		{"class", vmErr.Class.String()},
		{"code", string(vmErr.Code)},
	}
	// 编译类错误不携带燃料报告
	if vmErr.Gas != nil {
		rows = append(rows,
			[]string{"burnt_gas", fmt.Sprintf("%d", vmErr.Gas.BurntGas)},
			[]string{"used_gas", fmt.Sprintf("%d", vmErr.Gas.UsedGas)},
		)
	}
	showKeyValue(rows)
	return err
}

func formatReturn(r types.ReturnData) string {
	switch r.Kind {
	case types.ReturnDataValue:
		return fmt.Sprintf("%q", r.Value)
	case types.ReturnDataReceiptIndex:
		return fmt.Sprintf("receipt #%d", r.ReceiptIndex)
	default:
		return "none"
	}
}

// showProfile 输出燃料剖析，只列出非零的宿主计费项
func showProfile(p *types.ProfileData) {
	if globalFlags.JSON {
		_ = printJSON(p)
		return
	}
	showSection("燃料剖析")
	rows := [][]string{
		{"wasm", fmt.Sprintf("%d", p.WasmGas())},
		{"host", fmt.Sprintf("%d", p.HostGas())},
		{"actions", fmt.Sprintf("%d", p.ActionGas())},
	}
	for i := types.ExtCost(0); i < types.ExtCostCount; i++ {
		if g := p.ExtCost(i); g != 0 {
			rows = append(rows, []string{"  " + i.String(), fmt.Sprintf("%d", g)})
		}
	}
	showKeyValue(rows)
}
