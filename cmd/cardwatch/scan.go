package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mizuno-h/cardwatch/internal/cli"
	"github.com/mizuno-h/cardwatch/internal/common"
	"github.com/mizuno-h/cardwatch/internal/job"
	"github.com/mizuno-h/cardwatch/internal/model"
	"github.com/mizuno-h/cardwatch/internal/service"
)

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the mailbox for card usage notifications",
		Long: `Search the mailbox for credit card usage and subscription billing
notifications, classify each message, and record the results.

The scan runs as a resumable job: it checkpoints under a time budget and
continues automatically until every candidate message is processed. Only
one scan may be active per account at a time.`,
		RunE: runScan,
	}

	cmd.Flags().StringP("query", "q", "", "Override the mailbox search query")
	cmd.Flags().String("after", "", "Only scan messages after this date (format: 2024-01-31)")
	cmd.Flags().String("before", "", "Only scan messages before this date (format: 2024-01-31)")
	cmd.Flags().IntP("max", "n", 0, "Maximum number of messages to scan")
	cmd.Flags().Float64P("threshold", "t", 0.7, "Confidence threshold for auto-saving results")
	cmd.Flags().Bool("save", false, "Persist confident results as transactions and subscriptions")

	_ = viper.BindPFlag("scan.threshold", cmd.Flags().Lookup("threshold"))
	_ = viper.BindPFlag("scan.save", cmd.Flags().Lookup("save"))

	return cmd
}

func runScan(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	query, _ := cmd.Flags().GetString("query")
	after, _ := cmd.Flags().GetString("after")
	before, _ := cmd.Flags().GetString("before")
	maxEmails, _ := cmd.Flags().GetInt("max")

	opts := service.ScanOptions{
		Query:               query,
		MaxEmails:           maxEmails,
		ConfidenceThreshold: viper.GetFloat64("scan.threshold"),
		AutoSave:            viper.GetBool("scan.save"),
	}
	var err error
	if opts.DateStart, err = parseDateFlag(after); err != nil {
		return fmt.Errorf("invalid --after date: %w", err)
	}
	if opts.DateEnd, err = parseDateFlag(before); err != nil {
		return fmt.Errorf("invalid --before date: %w", err)
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	source, err := openSource(ctx)
	if err != nil {
		return err
	}

	controller, err := buildController(store, source)
	if err != nil {
		return err
	}
	// The CLI drives the job to a terminal state before exiting; detached
	// continuations would die with the process.
	controller.SetScheduler(&job.SyncScheduler{Controller: controller})

	slog.Info(cli.FormatTitle("Scanning mailbox for card notifications..."))

	jb, err := controller.StartScan(ctx, userID(), opts)
	if errors.Is(err, common.ErrActiveJobExists) {
		active, aErr := store.ActiveJobForUser(ctx, userID())
		if aErr == nil && active != nil {
			slog.Warn(cli.FormatWarning(fmt.Sprintf(
				"A scan is already running (job %s, %d%% done). Use 'cardwatch status' to watch it or 'cardwatch cancel' to stop it.",
				active.ID, active.Progress)))
			return nil
		}
		return err
	}
	if err != nil {
		return err
	}

	final, gErr := store.GetJob(ctx, jb.ID)
	if gErr != nil {
		return gErr
	}
	printJobSummary(final)
	if final.Status == model.JobFailed {
		return fmt.Errorf("scan failed: %v", final.Errors)
	}
	return nil
}

func printJobSummary(jb *model.ProcessingJob) {
	content := fmt.Sprintf("Status: %s\nProcessed: %d / %d\nErrors: %d",
		jb.Status, jb.Processed, jb.TotalEmails, len(jb.Errors))
	slog.Info(cli.RenderBox("Scan Summary", content))
}

func parseDateFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}
