package runtime

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tetratelabs/wazero/sys"

	"github.com/weisyn/vmrunner/pkg/types"
)

func TestClassifyTrap(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		class types.ErrorClass
		code  types.ErrorCode
	}{
		{"unreachable", errors.New("wasm error: unreachable\nwasm stack trace:\n\t.$0()"), types.ClassExecution, types.CodeWasmUnreachable},
		{"oob", errors.New("wasm error: out of bounds memory access"), types.ClassExecution, types.CodeWasmMemoryOutOfBounds},
		{"div zero", errors.New("wasm error: integer divide by zero"), types.ClassExecution, types.CodeWasmIllegalArithmetic},
		{"overflow", errors.New("wasm error: integer overflow"), types.ClassExecution, types.CodeWasmIllegalArithmetic},
		{"indirect", errors.New("wasm error: indirect call type mismatch"), types.ClassExecution, types.CodeWasmIndirectCall},
		{"table", errors.New("wasm error: invalid table access"), types.ClassExecution, types.CodeWasmTableOutOfBounds},
		{"stack", errors.New("wasm error: stack overflow"), types.ClassResourceLimit, types.CodeStackHeightExceeded},
		{"unknown trap", errors.New("wasm error: something new"), types.ClassExecution, types.CodeWasmGenericTrap},
		{"plain", errors.New("boom"), types.ClassExecution, types.CodeWasmGenericTrap},
		{"canceled", sys.NewExitError(sys.ExitCodeContextCanceled), types.ClassHostContract, types.CodeInterrupted},
		{"deadline", fmt.Errorf("call: %w", sys.NewExitError(sys.ExitCodeDeadlineExceeded)), types.ClassHostContract, types.CodeInterrupted},
		{"exit", sys.NewExitError(3), types.ClassExecution, types.CodeWasmGenericTrap},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyTrap(nil, tc.err)
			assert.Equal(t, tc.class, got.Class)
			assert.Equal(t, tc.code, got.Code)
		})
	}
}

func TestAbortTakesPrecedence(t *testing.T) {
	trap := errors.New("wasm error: unreachable")
	got := ClassifyTrap(types.ErrGasExceeded, trap)
	assert.ErrorIs(t, got, types.ErrGasExceeded)

	got = ClassifyTrap(errors.New("disk gone"), trap)
	assert.Equal(t, types.ClassHostContract, got.Class)
	assert.Equal(t, types.CodeExternalError, got.Code)

	assert.Nil(t, ClassifyTrap(nil, nil))
}

func TestClassifyInstantiate(t *testing.T) {
	got := ClassifyInstantiate(nil, errors.New(`"foo" is not exported in module "env"`))
	assert.Equal(t, types.ClassCompilation, got.Class)
	assert.Equal(t, types.CodeInstantiate, got.Code)

	got = ClassifyInstantiate(nil, errors.New("start function[0] failed: wasm error: unreachable"))
	assert.Equal(t, types.CodeWasmUnreachable, got.Code)

	got = ClassifyInstantiate(types.ErrStackHeightExceeded, errors.New("start function failed"))
	assert.ErrorIs(t, got, types.ErrStackHeightExceeded)
}
