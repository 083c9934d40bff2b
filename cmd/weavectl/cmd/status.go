package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weaveproject/weaveio/pkg/api"
)

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status jobId",
		Short: "Shows the current state of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()
			job, err := apiClient().GetJob(ctx, args[0])
			if err != nil {
				return err
			}
			printJob(job)

			showEvents, _ := cmd.Flags().GetBool("events")
			if !showEvents {
				return nil
			}
			events, err := apiClient().GetJobEvents(ctx, args[0])
			if err != nil {
				return err
			}
			for _, event := range events {
				fmt.Printf("%s  %-10s %s %s\n",
					event.Created.Format("2006-01-02 15:04:05"), event.State, event.Node, event.Error)
			}
			return nil
		},
	}
	cmd.Flags().Bool("events", false, "also print the job's state transition history")
	return cmd
}

func printJob(job *api.Job) {
	fmt.Printf("job:       %s\n", job.Id)
	fmt.Printf("queue:     %s\n", job.Queue)
	fmt.Printf("kind:      %s\n", job.Kind)
	if job.Night != "" {
		fmt.Printf("night:     %s\n", job.Night)
	}
	fmt.Printf("state:     %s\n", job.State)
	fmt.Printf("wall time: %s\n", job.WallTime)
	if job.Node != "" {
		fmt.Printf("node:      %s\n", job.Node)
	}
	if job.Error != "" {
		fmt.Printf("error:     %s\n", job.Error)
	}
}
