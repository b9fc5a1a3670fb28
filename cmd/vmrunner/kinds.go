package main

import (
	"github.com/spf13/cobra"

	"github.com/weisyn/vmrunner/internal/core/engines"
	_ "github.com/weisyn/vmrunner/internal/core/engines/wasm" // 注册 wazero 后端
	"github.com/weisyn/vmrunner/pkg/types"
)

// kindsCmd 列出后端
var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "列出已知后端及其在当前二进制中是否可用",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		type kindInfo struct {
			Kind      string `json:"kind"`
			Available bool   `json:"available"`
			Default   bool   `json:"default"`
		}
		infos := make([]kindInfo, 0, len(types.AllVMKinds()))
		rows := make([][]string, 0, len(types.AllVMKinds()))
		for _, kind := range types.AllVMKinds() {
			info := kindInfo{
				Kind:      kind.String(),
				Available: engines.IsRegistered(kind),
				Default:   kind == types.DefaultVMKind,
			}
			infos = append(infos, info)
			rows = append(rows, []string{info.Kind, yesNo(info.Available), yesNo(info.Default)})
		}
		if globalFlags.JSON {
			return printJSON(infos)
		}
		showTable([]string{"kind", "available", "default"}, rows)
		return nil
	},
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
