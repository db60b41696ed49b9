package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/mizuno-h/cardwatch/internal/cli"
	"github.com/mizuno-h/cardwatch/internal/faults"
	"github.com/mizuno-h/cardwatch/internal/service"
)

func errorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Inspect processing errors",
		Long: `List recent processing errors or show aggregate statistics: counts by
type and severity, recurring error patterns, and an hourly trend.`,
		RunE: runErrors,
	}

	cmd.Flags().BoolP("stats", "s", false, "Show aggregate statistics instead of a list")
	cmd.Flags().StringP("job", "j", "", "Only show errors from a specific job")
	cmd.Flags().Duration("since", 0, "Only show errors newer than this (e.g. 24h)")
	cmd.Flags().IntP("limit", "n", 20, "Maximum errors to list")

	return cmd
}

func runErrors(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	stats, _ := cmd.Flags().GetBool("stats")
	jobID, _ := cmd.Flags().GetString("job")
	since, _ := cmd.Flags().GetDuration("since")
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	filter := service.ErrorFilter{UserID: userID(), JobID: jobID}
	if since > 0 {
		filter.Since = time.Now().Add(-since)
	}

	fm := faults.NewManager(store)

	if stats {
		return printErrorStats(cmd, fm, filter)
	}

	filter.Limit = limit
	errs, err := store.ProcessingErrors(ctx, filter)
	if err != nil {
		return err
	}
	if len(errs) == 0 {
		slog.Info(cli.FormatSuccess("No processing errors recorded."))
		return nil
	}

	headers := []string{"When", "Type", "Severity", "Message"}
	rows := make([][]string, 0, len(errs))
	for i := range errs {
		e := &errs[i]
		msg := e.Message
		if len(msg) > 60 {
			msg = msg[:57] + "..."
		}
		rows = append(rows, []string{
			e.CreatedAt.Format("2006-01-02 15:04"),
			string(e.Type),
			string(e.Severity),
			msg,
		})
	}
	fmt.Print(cli.RenderTable(headers, rows))
	return nil
}

func printErrorStats(cmd *cobra.Command, fm *faults.Manager, filter service.ErrorFilter) error {
	stats, err := fm.Statistics(cmd.Context(), filter, 5)
	if err != nil {
		return err
	}
	if stats.Total == 0 {
		slog.Info(cli.FormatSuccess("No processing errors recorded."))
		return nil
	}

	content := fmt.Sprintf("Total errors: %d\n\nBy severity:\n", stats.Total)
	for sev, n := range stats.BySeverity {
		content += fmt.Sprintf("  %-10s %d\n", sev, n)
	}
	content += "\nBy type:\n"
	for typ, n := range stats.ByType {
		content += fmt.Sprintf("  %-25s %d\n", typ, n)
	}
	if len(stats.Patterns) > 0 {
		content += "\nTop patterns:\n"
		for _, p := range stats.Patterns {
			content += fmt.Sprintf("  %3dx %s\n", p.Count, p.Pattern)
		}
	}

	slog.Info(cli.RenderBox("Error Statistics", content))
	return nil
}
