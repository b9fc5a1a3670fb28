// vmrunner 合约执行核心命令行
//
// 子命令：
//   - run: 执行合约方法并输出结果
//   - precompile: 预编译合约并写入编译产物缓存
//   - validate: 检查合约能否通过预处理与编译
//   - kinds: 列出当前二进制可用的后端
//   - version: 构建信息
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		pterm.Error.Println(err.Error())
		os.Exit(1)
	}
}
