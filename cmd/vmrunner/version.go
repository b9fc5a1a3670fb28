package main

import (
	"github.com/spf13/cobra"

	"github.com/weisyn/vmrunner/internal/app/version"
)

// versionCmd 构建信息
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示构建信息",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.GetBuildInfo()
		if globalFlags.JSON {
			return printJSON(info)
		}
		showKeyValue([][]string{
			{"version", info.Version},
			{"build_time", info.BuildTime},
			{"build_env", info.BuildEnv},
			{"go", info.GoVersion},
			{"platform", info.GoOS + "/" + info.GoArch},
		})
		return nil
	},
}
