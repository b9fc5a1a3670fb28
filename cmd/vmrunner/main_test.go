package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wt "github.com/weisyn/vmrunner/internal/testutil/wasmtest"
	"github.com/weisyn/vmrunner/pkg/types"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// execute 运行根命令；配置文件只开启 error 级日志并关闭产物缓存
func execute(t *testing.T, args ...string) error {
	t.Helper()
	cfg := writeFile(t, "config.json", []byte(`{"log":{"level":"error"},"vm":{"artifact_cache":"none"}}`))
	t.Cleanup(func() {
		globalFlags = GlobalFlags{}
		runMethod, runInput, runInputHex = "", "", ""
		runCommit, runProfile, runView = false, false, false
	})
	rootCmd.SetArgs(append([]string{"--config", cfg, "--json"}, args...))
	return rootCmd.ExecuteContext(context.Background())
}

func TestRunCommand(t *testing.T) {
	path := writeFile(t, "contract.wasm", wt.Contract())
	require.NoError(t, execute(t, "run", path, "-m", wt.MethodLog, "--profile"))
}

func TestRunCommandReportsVMError(t *testing.T) {
	path := writeFile(t, "contract.wasm", wt.Contract())
	err := execute(t, "run", path, "-m", wt.MethodTrap)
	require.Error(t, err)
	assert.Equal(t, types.ClassExecution, types.ErrorClassOf(err))
}

func TestValidateCommand(t *testing.T) {
	good := writeFile(t, "good.wasm", wt.Contract())
	require.NoError(t, execute(t, "validate", good))

	bad := writeFile(t, "bad.wasm", []byte("not wasm"))
	err := execute(t, "validate", bad)
	assert.Equal(t, types.ClassCompilation, types.ErrorClassOf(err))
}

func TestPrecompileCommand(t *testing.T) {
	good := writeFile(t, "good.wasm", wt.Noop("main"))
	require.NoError(t, execute(t, "precompile", good))

	bad := writeFile(t, "bad.wasm", []byte{0x00, 0x61, 0x73, 0x6d})
	assert.Error(t, execute(t, "precompile", good, bad))
}

func TestKindsAndVersion(t *testing.T) {
	require.NoError(t, execute(t, "kinds"))
	require.NoError(t, execute(t, "version"))
}

func TestCallContextFromFlags(t *testing.T) {
	runAccount, runSigner, runPrepaidGas, runView = "counter", "dave", 42, true
	t.Cleanup(func() { runAccount, runSigner, runPrepaidGas, runView = "alice", "bob", 300_000_000_000_000, false })

	ctx := callContext([]byte("in"))
	assert.Equal(t, "counter", ctx.CurrentAccountID)
	assert.Equal(t, "dave", ctx.PredecessorAccountID)
	assert.Equal(t, types.Gas(42), ctx.PrepaidGas)
	assert.True(t, ctx.IsView)
	assert.Equal(t, []byte("in"), ctx.Input)
}

func TestFormatReturn(t *testing.T) {
	assert.Equal(t, "none", formatReturn(types.ReturnNone()))
	assert.Equal(t, `"hi"`, formatReturn(types.ReturnValue([]byte("hi"))))
	assert.Equal(t, "receipt #3", formatReturn(types.ReturnReceipt(3)))
}
