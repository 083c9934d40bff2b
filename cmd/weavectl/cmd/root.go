package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/weaveproject/weaveio/pkg/client"
)

var cfgFile string

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weavectl",
		Short: "weavectl controls the weaveio ingest job queue.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return client.LoadCommandlineArgsFromConfigFile(cfgFile)
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.weavectl.yaml)")
	client.AddApiConnectionCommandlineArgs(cmd)

	cmd.AddCommand(
		submitCmd(),
		statusCmd(),
		jobsCmd(),
		watchCmd(),
		cancelCmd(),
		versionCmd(),
	)
	return cmd
}

func apiClient() *client.Client {
	return client.New(client.ExtractCommandlineApiConnectionDetails())
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
