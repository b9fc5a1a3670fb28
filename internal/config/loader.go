package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/weisyn/vmrunner/pkg/interfaces/config"
	"github.com/weisyn/vmrunner/pkg/types"
)

// appOptions 实现 config.AppOptions
type appOptions struct {
	appConfig *types.AppConfig
}

// NewAppOptions 包装已解析的应用配置
func NewAppOptions(appConfig *types.AppConfig) config.AppOptions {
	return &appOptions{appConfig: appConfig}
}

func (o *appOptions) GetAppConfig() *types.AppConfig {
	return o.appConfig
}

// LoadAppConfig 从 JSON 文件加载应用配置；path 为空时返回空配置（全部使用默认值）
func LoadAppConfig(path string) (*types.AppConfig, error) {
	if path == "" {
		return &types.AppConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var appConfig types.AppConfig
	if err := json.Unmarshal(data, &appConfig); err != nil {
		return nil, fmt.Errorf("解析配置文件失败 %s: %w", path, err)
	}
	if err := ValidateAppConfig(&appConfig); err != nil {
		return nil, err
	}
	return &appConfig, nil
}
