// Package utils provides path manipulation utility functions.
package utils

import (
	"os"
	"path/filepath"
)

// GetProjectRoot 获取数据路径的解析基准目录
//
// 优先使用 VMRUNNER_HOME；否则自当前目录向上查找 go.mod；都找不到时返回当前目录。
func GetProjectRoot() string {
	if root := os.Getenv("VMRUNNER_HOME"); root != "" {
		return root
	}

	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	for dir := wd; ; {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return wd
}

// ResolveDataPath 解析数据目录路径为绝对路径
// 如果path已经是绝对路径，直接返回；相对路径基于 GetProjectRoot 解析
func ResolveDataPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(GetProjectRoot(), path)
}

// EnsureDir 确保目录存在，如果不存在则创建
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0700)
}
