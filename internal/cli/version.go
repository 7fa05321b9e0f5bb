package cli

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version, GitCommit, and BuildDate are normally set via -ldflags at build
// time; they fall back to Go's embedded build info otherwise.
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

func resolvedVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return "dev"
}

func resolvedCommit() string {
	if GitCommit != "none" {
		return GitCommit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				if len(setting.Value) > 7 {
					return setting.Value[:7]
				}
				return setting.Value
			}
		}
	}
	return "none"
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print codesearchd's version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("codesearchd %s (%s)\n", resolvedVersion(), resolvedCommit())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
