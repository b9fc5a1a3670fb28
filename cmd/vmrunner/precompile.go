package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weisyn/vmrunner/internal/core/vm/runner"
)

var precompileParallel int

// precompileCmd 预编译合约
var precompileCmd = &cobra.Command{
	Use:   "precompile <wasm-file>...",
	Short: "预编译合约并写入编译产物缓存",
	Long: `对每个合约执行预处理与编译，把产物（或编译错误）写入配置的编译产物缓存。
vm.artifact_cache=none 时只验证能否编译。`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reqs := make([]runner.PrecompileRequest, 0, len(args))
		for _, path := range args {
			code, err := readWasm(path)
			if err != nil {
				return err
			}
			reqs = append(reqs, runner.PrecompileRequest{Code: code})
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
		if a.Cache() == nil {
			showWarning("未配置编译产物缓存，结果不会被保存")
		}

		errs := a.Runner().PrecompileAll(cmd.Context(), kind, reqs, a.Config().GetVM().VMConfig, a.Cache(), precompileParallel)

		failed := 0
		rows := make([][]string, 0, len(args))
		results := make([]map[string]string, 0, len(args))
		for i, path := range args {
			status := "ok"
			if errs[i] != nil {
				status = errs[i].Error()
				failed++
			}
			codeHash := hex.EncodeToString(a.Runner().Hasher().SHA256(reqs[i].Code))
			rows = append(rows, []string{path, codeHash[:16], status})
			results = append(results, map[string]string{"file": path, "code_hash": codeHash, "status": status})
		}

		if globalFlags.JSON {
			if err := printJSON(results); err != nil {
				return err
			}
		} else {
			showSection(fmt.Sprintf("预编译 (%s)", kind))
			showTable([]string{"file", "code_hash", "status"}, rows)
		}
		if failed > 0 {
			return fmt.Errorf("%d/%d 个合约预编译失败", failed, len(args))
		}
		showSuccess(fmt.Sprintf("%d 个合约预编译完成", len(args)))
		return nil
	},
}

func init() {
	precompileCmd.Flags().IntVarP(&precompileParallel, "parallel", "p", 4, "并行度")
}
