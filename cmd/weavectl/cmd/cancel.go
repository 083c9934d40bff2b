package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel jobId",
		Short: "Cancels a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()
			job, err := apiClient().CancelJob(ctx, args[0])
			if err != nil {
				return err
			}
			log.Infof("Cancelled job %s", job.Id)
			return nil
		},
	}
}
