package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mizuno-h/cardwatch/internal/cli"
	"github.com/mizuno-h/cardwatch/internal/job"
)

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [job-id]",
		Short: "Cancel a running scan",
		Long: `Cancel a scan job. With no argument, cancels the account's active job.
Results already recorded by the job are kept.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCancel,
	}
}

func runCancel(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var jobID string
	if len(args) == 1 {
		jobID = args[0]
	} else {
		active, aErr := store.ActiveJobForUser(ctx, userID())
		if aErr != nil {
			return aErr
		}
		if active == nil {
			slog.Info(cli.FormatInfo("No active scan to cancel."))
			return nil
		}
		jobID = active.ID
	}

	if err := job.Cancel(ctx, store, jobID); err != nil {
		return err
	}

	slog.Info(cli.FormatSuccess(fmt.Sprintf("Cancelled job %s", jobID)))
	return nil
}
