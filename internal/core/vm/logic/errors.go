package logic

import (
	"github.com/weisyn/vmrunner/pkg/types"
)

func executionError(code types.ErrorCode, format string, args ...interface{}) error {
	return types.NewVMError(types.ClassExecution, code, format, args...)
}

func limitError(code types.ErrorCode, format string, args ...interface{}) error {
	return types.NewVMError(types.ClassResourceLimit, code, format, args...)
}

func overflowError(what string) error {
	return executionError(types.CodeIntegerOverflow, "%s overflows", what)
}

func prohibitedInView(method string) error {
	return executionError(types.CodeProhibitedInView, "%s is not allowed in view calls", method)
}

// externalError 包装宿主状态接口返回的错误，已分类的错误原样返回
func externalError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := types.AsVMError(err); ok {
		return err
	}
	return types.WrapVMError(types.ClassHostContract, types.CodeExternalError, err)
}
