package cmd

import (
	"errors"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/weaveproject/weaveio/pkg/api"
)

func submitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submits a job to the queue",
	}
	cmd.AddCommand(submitIngestCmd(), submitValidateCmd())
	return cmd
}

func submitIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Submits an ingest job for one night of observations",
		RunE: func(cmd *cobra.Command, args []string) error {
			night, _ := cmd.Flags().GetString("night")
			if night == "" {
				return errors.New("no night given, set --night or the NIGHT environment variable")
			}
			return submit(cmd, &api.JobSubmitRequest{Kind: api.JobKindIngest, Night: night})
		},
	}
	cmd.Flags().String("night", os.Getenv("NIGHT"), "night to ingest, formatted YYYYMMDD (defaults to $NIGHT)")
	addSubmitFlags(cmd)
	return cmd
}

func submitValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Submits a job that checks the archive for consistency",
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(cmd, &api.JobSubmitRequest{Kind: api.JobKindValidate})
		},
	}
	addSubmitFlags(cmd)
	return cmd
}

func addSubmitFlags(cmd *cobra.Command) {
	cmd.Flags().String("queue", "", "queue to submit to (defaults to the server's default queue)")
	cmd.Flags().Float64("priority", 0, "job priority, higher runs first")
	cmd.Flags().Duration("wall-time", 0, "wall time limit, for example 12h (defaults to the server's limit)")
}

func submit(cmd *cobra.Command, request *api.JobSubmitRequest) error {
	request.Queue, _ = cmd.Flags().GetString("queue")
	request.Priority, _ = cmd.Flags().GetFloat64("priority")
	wallTime, _ := cmd.Flags().GetDuration("wall-time")
	request.WallTime = time.Duration(wallTime)

	ctx, cancel := commandContext()
	defer cancel()
	response, err := apiClient().SubmitJob(ctx, request)
	if err != nil {
		return err
	}
	log.Infof("Submitted %s job %s", request.Kind, response.JobId)
	return nil
}
