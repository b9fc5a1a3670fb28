package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weisyn/vmrunner/internal/app"
	"github.com/weisyn/vmrunner/pkg/types"
)

// GlobalFlags 全局标志
type GlobalFlags struct {
	ConfigFile string // 配置文件
	Kind       string // 后端，空表示使用配置中的 default_kind
	JSON       bool   // 以 JSON 输出
}

var globalFlags GlobalFlags

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "vmrunner",
	Short: "合约执行核心命令行",
	Long: `vmrunner - 确定性合约执行核心

在本地沙箱中执行、预编译和校验 WebAssembly 合约。
编译产物缓存、日志和执行参数由配置文件决定（--config 或 VMRUNNER_CONFIG_PATH）。`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigFile, "config", "c", "", "配置文件路径 (JSON)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.Kind, "kind", "", "后端: wazero-compiler|wazero-interpreter")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.JSON, "json", false, "以 JSON 输出结果")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(precompileCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(kindsCmd)
	rootCmd.AddCommand(versionCmd)
}

// startApp 装配执行核心，调用方负责 Stop
func startApp(ctx context.Context) (*app.App, error) {
	return app.Start(ctx, app.WithConfigFile(globalFlags.ConfigFile), app.WithoutMemoryDoctor())
}

// resolveKind --kind 优先，其次使用配置
func resolveKind(a *app.App) (types.VMKind, error) {
	if globalFlags.Kind == "" {
		return a.Config().GetVM().DefaultKind, nil
	}
	return types.ParseVMKind(globalFlags.Kind)
}

func readWasm(path string) ([]byte, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取合约文件失败: %w", err)
	}
	return code, nil
}

func stopApp(a *app.App) {
	if err := a.Stop(); err != nil {
		showWarning(fmt.Sprintf("停止执行核心失败: %v", err))
	}
}
