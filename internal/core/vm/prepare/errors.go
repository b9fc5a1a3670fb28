package prepare

import (
	"errors"

	"github.com/weisyn/vmrunner/internal/core/vm/wasm"
	"github.com/weisyn/vmrunner/pkg/types"
)

func deserializationError(format string, args ...interface{}) error {
	return types.NewVMError(types.ClassCompilation, types.CodeDeserialization, format, args...)
}

func unsupportedError(format string, args ...interface{}) error {
	return types.NewVMError(types.ClassCompilation, types.CodeUnsupportedFeature, format, args...)
}

// wrapDecode 将字节码层错误映射为编译错误
func wrapDecode(err error) error {
	var unsupported *wasm.UnsupportedError
	if errors.As(err, &unsupported) {
		return types.WrapVMError(types.ClassCompilation, types.CodeUnsupportedFeature, err)
	}
	return types.WrapVMError(types.ClassCompilation, types.CodeDeserialization, err)
}
