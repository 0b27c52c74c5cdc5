package main

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"queueloss/internal/domain"
	"queueloss/internal/queueing"
	"queueloss/internal/reporting"
)

func (a *app) analyzeCmd() *cobra.Command {
	var day, from, to, format, out string
	var resume bool

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze days, store insights and print one recommendation per day",
		Long: `Runs the daily pipeline for each UTC day in the range: Little's Law and
Erlang C per location, entropy scaling, the five conservative loss
components, and one ranked action. Days that already have an insight are
reported from storage, not recomputed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format, formatMarkdown, formatJSON, formatCSV); err != nil {
				return err
			}
			start, end, err := parseRange(day, from, to, time.Now())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			svc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer svc.close()

			run := svc.orch.Run
			if resume {
				run = svc.orch.Resume
			}
			result, err := run(ctx, start, end)
			if err != nil {
				return err
			}
			a.logger.Info("analysis finished",
				"processed", result.DaysProcessed, "skipped", result.DaysSkipped, "errors", len(result.Errors))

			reports := make([]*reporting.DailyReport, 0, len(result.Days))
			for _, d := range result.Days {
				r, err := svc.reports.Daily(ctx, d.Day)
				if err != nil {
					return fmt.Errorf("load report %s: %w", d.Day.Format(time.DateOnly), err)
				}
				reports = append(reports, r)
			}

			w, closeOut, err := output(out)
			if err != nil {
				return err
			}
			if err := renderDaily(w, format, reports); err != nil {
				closeOut()
				return err
			}
			if err := closeOut(); err != nil {
				return err
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d day(s) failed: %s", len(result.Errors), strings.Join(result.Errors, "; "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&day, "day", "", "single UTC day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&from, "from", "", "first UTC day (default: yesterday)")
	cmd.Flags().StringVar(&to, "to", "", "last UTC day, inclusive (default: --from)")
	cmd.Flags().StringVar(&format, "format", formatMarkdown, "output format: markdown, json, csv")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&resume, "resume", false, "start after the last completed day")
	return cmd
}

func renderDaily(w io.Writer, format string, reports []*reporting.DailyReport) error {
	switch format {
	case formatJSON:
		return writeJSON(w, reports)
	case formatCSV:
		for i, r := range reports {
			csv := reporting.RenderLocationsCSV(r.Date, r.Locations)
			if i > 0 {
				// header only once
				_, csv, _ = strings.Cut(csv, "\n")
			}
			if _, err := io.WriteString(w, csv); err != nil {
				return err
			}
		}
		return nil
	default:
		for _, r := range reports {
			if _, err := io.WriteString(w, reporting.RenderDailyMarkdown(r)+"\n"); err != nil {
				return err
			}
		}
		return nil
	}
}

func (a *app) compareCmd() *cobra.Command {
	var location, before, after string

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare a location's loss between two periods",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if location == "" {
				return fmt.Errorf("--location is required")
			}
			bp, err := parsePeriod(before)
			if err != nil {
				return fmt.Errorf("--before: %w", err)
			}
			ap, err := parsePeriod(after)
			if err != nil {
				return fmt.Errorf("--after: %w", err)
			}

			ctx := cmd.Context()
			svc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer svc.close()

			bms, err := svc.stores.measurements.GetByLocationRange(ctx, location, bp.Start, bp.End.AddDate(0, 0, 1))
			if err != nil {
				return err
			}
			ams, err := svc.stores.measurements.GetByLocationRange(ctx, location, ap.Start, ap.End.AddDate(0, 0, 1))
			if err != nil {
				return err
			}
			capacity := capacityOf(a, location, bms, ams)

			cmp, err := svc.engine.CompareBeforeAfter(bms, ams, capacity)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), cmp)
		},
	}

	cmd.Flags().StringVar(&location, "location", "", "location id")
	cmd.Flags().StringVar(&before, "before", "", "before period YYYY-MM-DD:YYYY-MM-DD")
	cmd.Flags().StringVar(&after, "after", "", "after period YYYY-MM-DD:YYYY-MM-DD")
	return cmd
}

func capacityOf(a *app, location string, batches ...[]domain.FlowMeasurement) *domain.CapacityConstraint {
	for _, b := range batches {
		if len(b) > 0 {
			return a.cfg.CapacityLookup()(location, b[0].LocationType)
		}
	}
	return nil
}

func (a *app) qualityCmd() *cobra.Command {
	var location, from, to string

	cmd := &cobra.Command{
		Use:   "quality",
		Short: "Score completeness and consistency of a location's measurements",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if location == "" {
				return fmt.Errorf("--location is required")
			}
			start, end, err := parseRange("", from, to, time.Now())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			svc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer svc.close()

			ms, err := svc.stores.measurements.GetByLocationRange(ctx, location, start, end.AddDate(0, 0, 1))
			if err != nil {
				return err
			}
			days := int(end.Sub(start).Hours()/24) + 1
			return writeJSON(cmd.OutOrStdout(), svc.engine.CheckDataQuality(ms, days))
		},
	}

	cmd.Flags().StringVar(&location, "location", "", "location id")
	cmd.Flags().StringVar(&from, "from", "", "first UTC day (default: yesterday)")
	cmd.Flags().StringVar(&to, "to", "", "last UTC day, inclusive")
	return cmd
}

func (a *app) sizeCmd() *cobra.Command {
	var arrivalsPerHour, serviceMinutes, targetWaitMinutes float64
	var maxServers int

	cmd := &cobra.Command{
		Use:   "size",
		Short: "Find the fewest servers that keep the M/M/c wait under a target",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if serviceMinutes <= 0 {
				return fmt.Errorf("--service-minutes must be > 0")
			}
			q, err := queueing.NewMultiServer(1, 1/(serviceMinutes*60))
			if err != nil {
				return err
			}
			lambda := arrivalsPerHour / 3600
			sizing := q.FindOptimalServers(lambda, targetWaitMinutes*60, maxServers)
			return writeJSON(cmd.OutOrStdout(), struct {
				Sizing  queueing.ServerSizing `json:"sizing"`
				WqCurve []float64             `json:"wq_curve_seconds"`
			}{sizing, finiteCurve(q.WqCurve(lambda, maxServers))})
		},
	}

	cmd.Flags().Float64Var(&arrivalsPerHour, "arrivals-per-hour", 0, "arrival rate λ")
	cmd.Flags().Float64Var(&serviceMinutes, "service-minutes", 3, "mean service time per customer")
	cmd.Flags().Float64Var(&targetWaitMinutes, "target-wait-minutes", 5, "target mean queue wait Wq")
	cmd.Flags().IntVar(&maxServers, "max-servers", 20, "largest server count considered")
	return cmd
}

// finiteCurve maps unstable (+Inf) entries to -1 so the curve encodes as JSON.
func finiteCurve(curve []float64) []float64 {
	out := make([]float64, len(curve))
	for i, v := range curve {
		if math.IsInf(v, 1) {
			out[i] = -1
			continue
		}
		out[i] = reporting.Rate(v)
	}
	return out
}
