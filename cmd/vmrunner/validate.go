package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// validateCmd 校验合约
var validateCmd = &cobra.Command{
	Use:   "validate <wasm-file>",
	Short: "检查合约能否通过预处理与编译",
	Long:  "执行与 run 相同的预处理（导入白名单、结构上限、燃料与栈插桩）和编译，不读写编译产物缓存。",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := readWasm(args[0])
		if err != nil {
			return err
		}

		a, err := startApp(cmd.Context())
		if err != nil {
			return err
		}
		defer stopApp(a)

		kind, err := resolveKind(a)
		if err != nil {
			return err
		}
		cfg := a.Config().GetVM().VMConfig

		ok, err := a.Runner().CompileModule(cmd.Context(), kind, code, cfg)
		if err != nil {
			return showVMError(err)
		}
		if !ok {
			return fmt.Errorf("合约未能编译")
		}

		module, err := a.Runner().Compile(cmd.Context(), kind, code, nil, cfg, nil)
		if err != nil {
			return showVMError(err)
		}
		defer module.Close(cmd.Context())

		var exports []string
		if m, ok := module.(interface{ Exports() []string }); ok {
			exports = m.Exports()
			sort.Strings(exports)
		}

		if globalFlags.JSON {
			return printJSON(map[string]interface{}{"kind": kind.String(), "exports": exports})
		}
		showSuccess(fmt.Sprintf("%s 可由 %s 执行", args[0], kind))
		rows := make([][]string, 0, len(exports))
		for _, name := range exports {
			rows = append(rows, []string{name})
		}
		if len(rows) > 0 {
			showSection("导出方法")
			showTable([]string{"method"}, rows)
		}
		return nil
	},
}
