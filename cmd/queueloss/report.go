package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"queueloss/internal/reporting"
)

func (a *app) reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render stored insights",
	}
	cmd.AddCommand(a.reportDailyCmd())
	cmd.AddCommand(a.reportSummaryCmd())
	return cmd
}

func (a *app) reportDailyCmd() *cobra.Command {
	var day, format, out string

	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Render one day's insight and per-location losses",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format, formatMarkdown, formatJSON, formatCSV); err != nil {
				return err
			}
			d, _, err := parseRange(day, "", "", time.Now())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			svc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer svc.close()

			r, err := svc.reports.Daily(ctx, d)
			if err != nil {
				return fmt.Errorf("report %s: %w", d.Format(time.DateOnly), err)
			}

			w, closeOut, err := output(out)
			if err != nil {
				return err
			}
			if err := renderDaily(w, format, []*reporting.DailyReport{r}); err != nil {
				closeOut()
				return err
			}
			return closeOut()
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "UTC day (default: yesterday)")
	cmd.Flags().StringVar(&format, "format", formatMarkdown, "output format: markdown, json, csv")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: stdout)")
	return cmd
}

func (a *app) reportSummaryCmd() *cobra.Command {
	var end, format, out string
	var trendDays int

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Weekly summary, loss trend and cumulative ROI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format, formatMarkdown, formatJSON, formatCSV); err != nil {
				return err
			}
			endDay, _, err := parseRange(end, "", "", time.Now())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			svc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer svc.close()

			s, err := svc.reports.Summary(ctx, endDay, trendDays)
			if err != nil {
				return err
			}

			w, closeOut, err := output(out)
			if err != nil {
				return err
			}
			switch format {
			case formatJSON:
				err = writeJSON(w, s)
			case formatCSV:
				_, err = io.WriteString(w, reporting.RenderDailyCSV(s.Weekly.Daily))
			default:
				_, err = io.WriteString(w, reporting.RenderSummaryMarkdown(s))
			}
			if err != nil {
				closeOut()
				return err
			}
			return closeOut()
		},
	}
	cmd.Flags().StringVar(&end, "end", "", "last UTC day of the period (default: yesterday)")
	cmd.Flags().IntVar(&trendDays, "trend-days", 30, "days in the trend window")
	cmd.Flags().StringVar(&format, "format", formatMarkdown, "output format: markdown, json, csv")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: stdout)")
	return cmd
}
