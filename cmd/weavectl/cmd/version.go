package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// set by the release build
var version = "dev"

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints client version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("weavectl %s (%s, %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
