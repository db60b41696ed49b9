package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mizuno-h/cardwatch/internal/aggregate"
	"github.com/mizuno-h/cardwatch/internal/cli"
	"github.com/mizuno-h/cardwatch/internal/pattern"
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "View monthly spending reports",
		Long: `Aggregate scan results into per-month, per-issuer spending summaries
broken down by category (Transport, Food, Subscription, Other).

By default the report covers the most recent scan; pass --job to report
on a specific one.`,
		RunE: runReport,
	}

	cmd.Flags().StringP("job", "j", "", "Report on a specific job ID")
	cmd.Flags().StringP("month", "m", "", "Only show one month (format: 2024-01)")
	cmd.Flags().String("format", "table", "Output format (table, json)")

	return cmd
}

func runReport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	jobID, _ := cmd.Flags().GetString("job")
	month, _ := cmd.Flags().GetString("month")
	format, _ := cmd.Flags().GetString("format")

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if jobID == "" {
		latest, lErr := store.LatestJobForUser(ctx, userID())
		if lErr != nil {
			return lErr
		}
		if latest == nil {
			slog.Info(cli.FormatInfo("No scans yet. Run 'cardwatch scan' first."))
			return nil
		}
		jobID = latest.ID
	}

	results, err := store.JobResults(ctx, jobID)
	if err != nil {
		return err
	}

	summaries := aggregate.Aggregate(results, pattern.DefaultKeywords())
	if month != "" {
		filtered := summaries[:0]
		for _, s := range summaries {
			if s.Month == month {
				filtered = append(filtered, s)
			}
		}
		summaries = filtered
	}

	if len(summaries) == 0 {
		slog.Info(cli.FormatInfo("No classified spending in this period."))
		return nil
	}

	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	slog.Info(cli.FormatTitle("Monthly Spending"))
	headers := []string{"Month", "Issuer", "Transport", "Food", "Subscription", "Other", "Total", "Count"}
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		m := s.Month
		if m == "" {
			m = "(undated)"
		}
		rows = append(rows, []string{
			m,
			s.Issuer,
			cli.FormatAmount(s.Categories[aggregate.CategoryTransport], "JPY"),
			cli.FormatAmount(s.Categories[aggregate.CategoryFood], "JPY"),
			cli.FormatAmount(s.Categories[aggregate.CategorySubscription], "JPY"),
			cli.FormatAmount(s.Categories[aggregate.CategoryOther], "JPY"),
			cli.FormatAmount(s.Total, "JPY"),
			fmt.Sprintf("%d", s.Count),
		})
	}
	fmt.Print(cli.RenderTable(headers, rows))
	return nil
}
