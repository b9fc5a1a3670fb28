package config

import (
	"errors"
	"fmt"

	vmconfig "github.com/weisyn/vmrunner/internal/config/vm"
	"github.com/weisyn/vmrunner/pkg/types"
)

// ValidationError 配置验证错误
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("配置验证失败 [%s]: %s", e.Field, e.Message)
}

// ValidateAppConfig 验证用户配置
//
// 🎯 启动时 fail-fast：取值非法直接返回错误，而不是静默回退默认值。
//
// 📋 **检查项**：
//   - log.level: debug | info | warn | error | fatal
//   - vm.default_kind: 已识别的后端名称
//   - vm.artifact_cache: memory | badger | none
//   - vm.preload_workers / vm.module_cache_size: 正数
//   - storage.memory_cache_mb: 正数
func ValidateAppConfig(appConfig *types.AppConfig) error {
	if appConfig == nil {
		return nil
	}

	var errs []error

	if appConfig.Log != nil && appConfig.Log.Level != nil {
		if !types.LogLevel(*appConfig.Log.Level).Valid() {
			errs = append(errs, &ValidationError{
				Field:   "log.level",
				Message: fmt.Sprintf("未知的日志级别 %q", *appConfig.Log.Level),
			})
		}
	}

	if s := appConfig.Storage; s != nil && s.MemoryCacheMB != nil && *s.MemoryCacheMB <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "storage.memory_cache_mb",
			Message: "必须为正数",
		})
	}

	if v := appConfig.VM; v != nil {
		if v.DefaultKind != nil {
			if _, err := types.ParseVMKind(*v.DefaultKind); err != nil {
				errs = append(errs, &ValidationError{Field: "vm.default_kind", Message: err.Error()})
			}
		}
		if v.PreloadWorkers != nil && *v.PreloadWorkers <= 0 {
			errs = append(errs, &ValidationError{Field: "vm.preload_workers", Message: "必须为正数"})
		}
		if v.ModuleCacheSize != nil && *v.ModuleCacheSize <= 0 {
			errs = append(errs, &ValidationError{Field: "vm.module_cache_size", Message: "必须为正数"})
		}
		if err := vmconfig.New(v).Validate(); err != nil {
			errs = append(errs, &ValidationError{Field: "vm", Message: err.Error()})
		}
	}

	return errors.Join(errs...)
}
