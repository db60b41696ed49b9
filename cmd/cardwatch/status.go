package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/mizuno-h/cardwatch/internal/cli"
	"github.com/mizuno-h/cardwatch/internal/model"
)

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show scan job status",
		Long: `Show the status of a scan job. With no argument, shows the account's
active job; pass a job ID to inspect a specific one.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runStatus,
	}

	cmd.Flags().BoolP("watch", "w", false, "Poll the job until it reaches a terminal state")

	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	watch, _ := cmd.Flags().GetBool("watch")

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var jb *model.ProcessingJob
	if len(args) == 1 {
		jb, err = store.GetJob(ctx, args[0])
		if err != nil {
			return err
		}
	} else {
		jb, err = store.ActiveJobForUser(ctx, userID())
		if err != nil {
			return err
		}
		if jb == nil {
			slog.Info(cli.FormatInfo("No active scan. Start one with 'cardwatch scan'."))
			return nil
		}
	}

	if !watch || jb.Status.Terminal() {
		printJobSummary(jb)
		return nil
	}

	bar := progressbar.NewOptions(jb.TotalEmails,
		progressbar.OptionSetDescription("scanning"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
	)
	_ = bar.Set(jb.Processed)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		jb, err = store.GetJob(ctx, jb.ID)
		if err != nil {
			return err
		}
		_ = bar.Set(jb.Processed)
		if jb.Status.Terminal() {
			_ = bar.Finish()
			fmt.Println()
			printJobSummary(jb)
			return nil
		}
	}
}
