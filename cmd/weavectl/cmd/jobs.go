package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weaveproject/weaveio/pkg/api"
)

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Lists jobs in the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			state, _ := cmd.Flags().GetString("state")

			ctx, cancel := commandContext()
			defer cancel()
			jobs, err := apiClient().ListJobs(ctx, &api.JobListRequest{
				Queue: queue,
				State: api.JobState(state),
			})
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("no jobs found")
				return nil
			}
			fmt.Printf("%-28s %-10s %-10s %-9s %-10s %s\n", "JOB", "QUEUE", "KIND", "NIGHT", "STATE", "SUBMITTED")
			for _, job := range jobs {
				fmt.Printf("%-28s %-10s %-10s %-9s %-10s %s\n",
					job.Id, job.Queue, job.Kind, job.Night, job.State,
					job.Submitted.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().String("queue", "", "only show jobs in this queue")
	cmd.Flags().String("state", "", "only show jobs in this state (QUEUED, LEASED, RUNNING, SUCCEEDED, FAILED, CANCELLED)")
	return cmd
}
