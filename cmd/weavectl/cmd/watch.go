package cmd

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/weaveproject/weaveio/pkg/api"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch jobId",
		Short: "Follows a job until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// watching can outlive the ordinary request timeout
			job, err := apiClient().WatchJob(context.Background(), args[0], func(event *api.JobEvent) {
				log.Infof("Job %s is %s", event.JobId, event.State)
			})
			if err != nil {
				return err
			}
			if job.State != api.JobSucceeded {
				if job.Error != "" {
					return fmt.Errorf("job finished %s: %s", job.State, job.Error)
				}
				return fmt.Errorf("job finished %s", job.State)
			}
			return nil
		},
	}
}
