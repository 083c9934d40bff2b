package main

import (
	"os"

	"github.com/weaveproject/weaveio/cmd/weavectl/cmd"
	"github.com/weaveproject/weaveio/internal/common"
)

func main() {
	common.ConfigureCommandLineLogging()
	root := cmd.RootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
