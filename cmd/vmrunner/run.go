package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weisyn/vmrunner/internal/app"
	"github.com/weisyn/vmrunner/internal/core/vm/runner"
	"github.com/weisyn/vmrunner/internal/core/vm/state"
	"github.com/weisyn/vmrunner/pkg/interfaces/vm"
	"github.com/weisyn/vmrunner/pkg/types"
)

var (
	runMethod     string
	runInput      string
	runInputHex   string
	runAccount    string
	runSigner     string
	runPrepaidGas uint64
	runDeposit    uint64
	runBalance    uint64
	runView       bool
	runCommit     bool
	runProfile    bool
)

// runCmd 执行合约方法
var runCmd = &cobra.Command{
	Use:   "run <wasm-file>",
	Short: "执行合约方法",
	Long: `在本地沙箱中执行合约导出方法，输出燃料消耗、日志、返回值和回执。

配置中 vm.artifact_cache=badger 时，合约存储落在 BadgerDB 中；
加 --commit 后成功调用的写入会被持久化，否则调用结束即丢弃。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := readWasm(args[0])
		if err != nil {
			return err
		}
		input := []byte(runInput)
		if runInputHex != "" {
			if input, err = hex.DecodeString(runInputHex); err != nil {
				return fmt.Errorf("解析 --input-hex 失败: %w", err)
			}
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
		ext, commit := newExternal(cmd, a)

		opts := a.Config().GetVM()
		req := &runner.Request{
			Code:    code,
			Method:  runMethod,
			Ext:     ext,
			Context: callContext(input),
			Config:  opts.VMConfig,
			Fees:    opts.Fees,
			Cache:   a.Cache(),
		}

		profile := types.NewProfileData()
		out, err := a.Runner().RunProfiled(cmd.Context(), kind, req, profile)
		if err != nil {
			return showVMError(err)
		}
		if err := commit(); err != nil {
			return err
		}
		if err := showOutcome(out); err != nil {
			return err
		}
		if runProfile {
			showProfile(profile)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runMethod, "method", "m", "", "导出方法名")
	runCmd.Flags().StringVar(&runInput, "input", "", "方法参数（原样字节）")
	runCmd.Flags().StringVar(&runInputHex, "input-hex", "", "方法参数（十六进制，优先于 --input）")
	runCmd.Flags().StringVar(&runAccount, "account", "alice", "当前合约账户")
	runCmd.Flags().StringVar(&runSigner, "signer", "bob", "签名者与直接调用方")
	runCmd.Flags().Uint64Var(&runPrepaidGas, "prepaid-gas", 300_000_000_000_000, "预付燃料")
	runCmd.Flags().Uint64Var(&runDeposit, "deposit", 0, "附带存款")
	runCmd.Flags().Uint64Var(&runBalance, "balance", 0, "账户余额")
	runCmd.Flags().BoolVar(&runView, "view", false, "只读调用")
	runCmd.Flags().BoolVar(&runCommit, "commit", false, "成功后持久化合约存储写入（需 badger）")
	runCmd.Flags().BoolVar(&runProfile, "profile", false, "输出按宿主函数拆分的燃料剖析")
	_ = runCmd.MarkFlagRequired("method")
}

func callContext(input []byte) *types.VMContext {
	return &types.VMContext{
		CurrentAccountID:     runAccount,
		SignerAccountID:      runSigner,
		SignerAccountPK:      []byte{},
		PredecessorAccountID: runSigner,
		Input:                input,
		AccountBalance:       types.NewBalance(runBalance),
		AttachedDeposit:      types.NewBalance(runDeposit),
		PrepaidGas:           runPrepaidGas,
		RandomSeed:           []byte{},
		IsView:               runView,
	}
}

// newExternal 有 BadgerDB 时使用持久化状态，否则使用内存状态
func newExternal(cmd *cobra.Command, a *app.App) (vm.External, func() error) {
	store := a.BadgerStore()
	if store == nil {
		if runCommit {
			showWarning("未启用 badger 存储，--commit 被忽略")
		}
		return state.NewMemoryExternal(a.Runner().Hasher()), func() error { return nil }
	}
	ext := state.NewBadgerExternal(cmd.Context(), store, runAccount, a.Runner().Hasher(), a.Logger())
	return ext, func() error {
		if !runCommit {
			ext.Discard()
			return nil
		}
		pending := ext.Pending()
		if err := ext.Commit(cmd.Context()); err != nil {
			return err
		}
		showSuccess(fmt.Sprintf("已提交 %d 条存储写入", pending))
		return nil
	}
}
